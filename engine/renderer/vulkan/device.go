package vulkan

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanDevice struct {
	Instance           vk.Instance
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	Allocator *vk.AllocationCallbacks
}

// loadVulkan resolves vkGetInstanceProcAddr through GLFW when a display is
// available and falls back to the system loader otherwise.
func loadVulkan() error {
	if err := glfw.Init(); err == nil {
		if procAddr := glfw.GetVulkanGetInstanceProcAddress(); procAddr != nil {
			vk.SetGetInstanceProcAddr(procAddr)
			return errors.Wrap(vk.Init(), "vk.Init")
		}
		core.LogDebug("GLFW has no Vulkan loader, using the system library")
	} else {
		core.LogDebug("GLFW unavailable (%v), using the system Vulkan library", err)
	}
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "loading the Vulkan library")
	}
	return errors.Wrap(vk.Init(), "vk.Init")
}

// NewHeadlessDevice brings up an instance and a logical device with one
// graphics queue. No surface or swapchain is created.
func NewHeadlessDevice(appName string, debug bool) (*NativeDriver, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}

	device := &VulkanDevice{}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Runtime"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	layers := []string{}
	if debug {
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		core.LogInfo("Validation layers enabled.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := checkResult("vkCreateInstance", vk.CreateInstance(&createInfo, device.Allocator, &device.Instance)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(device.Instance); err != nil {
		return nil, errors.Wrap(err, "vk.InitInstance")
	}
	core.LogInfo("Vulkan Instance created.")

	if err := selectPhysicalDevice(device); err != nil {
		vk.DestroyInstance(device.Instance, device.Allocator)
		return nil, err
	}
	if err := createLogicalDevice(device); err != nil {
		vk.DestroyInstance(device.Instance, device.Allocator)
		return nil, err
	}
	return newNativeDriver(device), nil
}

func selectPhysicalDevice(device *VulkanDevice) error {
	var physicalDeviceCount uint32
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(device.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(device.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	for _, candidate := range physicalDevices {
		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(candidate, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(candidate, &queueFamilyCount, queueFamilies)

		for i := range queueFamilies {
			queueFamilies[i].Deref()
			if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
				continue
			}

			properties := vk.PhysicalDeviceProperties{}
			vk.GetPhysicalDeviceProperties(candidate, &properties)
			properties.Deref()
			properties.Limits.Deref()

			memory := vk.PhysicalDeviceMemoryProperties{}
			vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
			memory.Deref()

			core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
			switch properties.DeviceType {
			case vk.PhysicalDeviceTypeIntegratedGpu:
				core.LogInfo("GPU type is Integrated.")
			case vk.PhysicalDeviceTypeDiscreteGpu:
				core.LogInfo("GPU type is Discrete.")
			case vk.PhysicalDeviceTypeVirtualGpu:
				core.LogInfo("GPU type is Virtual.")
			case vk.PhysicalDeviceTypeCpu:
				core.LogInfo("GPU type is CPU.")
			default:
				core.LogInfo("GPU type is Unknown.")
			}
			core.LogInfo(
				"Vulkan API version: %d.%d.%d",
				vk.Version.Major(vk.Version(properties.ApiVersion)),
				vk.Version.Minor(vk.Version(properties.ApiVersion)),
				vk.Version.Patch(vk.Version(properties.ApiVersion)),
			)
			for j := 0; j < int(memory.MemoryHeapCount); j++ {
				memory.MemoryHeaps[j].Deref()
				memorySizeMib := memory.MemoryHeaps[j].Size / 1024 / 1024
				if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
					core.LogInfo("Local GPU memory: %d MiB", memorySizeMib)
				} else {
					core.LogInfo("Shared System memory: %d MiB", memorySizeMib)
				}
			}

			device.PhysicalDevice = candidate
			device.GraphicsQueueIndex = uint32(i)
			device.Properties = properties
			device.Memory = memory
			return nil
		}
	}
	return errors.New("no suitable GPU with a graphics queue found")
}

func createLogicalDevice(device *VulkanDevice) error {
	core.LogInfo("Creating logical device...")

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	if err := checkResult("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, device.Allocator, &device.LogicalDevice)); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &queue)
	device.GraphicsQueue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := checkResult("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, device.Allocator, &device.GraphicsCommandPool)); err != nil {
		vk.DestroyDevice(device.LogicalDevice, device.Allocator)
		return err
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (d *VulkanDevice) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.Memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (d.Memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %#x with properties %#x", typeFilter, uint32(propertyFlags))
}

// Destroy releases the command pool, the logical device and the instance.
func (d *VulkanDevice) Destroy() {
	if d.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.Allocator)
		d.GraphicsCommandPool = vk.NullCommandPool
	}
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, d.Allocator)
		d.LogicalDevice = nil
	}
	if d.Instance != nil {
		vk.DestroyInstance(d.Instance, d.Allocator)
		d.Instance = nil
	}
	core.LogInfo("Vulkan device destroyed.")
}
