package vulkan

import "sync"

// LockGroup names a class of Vulkan objects the API requires the host to
// synchronize externally.
type LockGroup string

const (
	CommandPoolManagement    LockGroup = "command_pool_management"
	DescriptorPoolManagement LockGroup = "descriptor_pool_management"
	QueueManagement          LockGroup = "queue_management"
)

// VulkanLockPool hands out one mutex per lock group. The runtime records
// from a single thread; the pool keeps the native calls safe when a
// second goroutine (a loader, a watcher callback) touches the device.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

// Get or create a mutex for a specific group
func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	return vs.locks[group]
}

// SafeCall runs fn holding the group's mutex.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}
