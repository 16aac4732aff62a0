package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

func TestReleasedSetIsFreedAfterAFullFlightCycle(t *testing.T) {
	d := newFakeDriver()
	cfg := testConfig()
	a := NewDescriptorSetAllocator(d, cfg)
	layout := vk.DescriptorSetLayout(d.next())

	set, err := a.Allocate(layout)
	require.NoError(t, err)
	a.Release(set)

	for i := 1; i < cfg.MaxFlightCount; i++ {
		a.Tick()
		require.Zero(t, d.freed[set.Handle], "freed while its frame may still be in flight")
	}
	a.Tick()
	require.Equal(t, 1, d.freed[set.Handle])

	for i := 0; i < 2*cfg.MaxFlightCount; i++ {
		a.Tick()
	}
	require.Equal(t, 1, d.freed[set.Handle], "a set is freed exactly once")

	stats := a.Stats()
	require.Equal(t, 0, stats.Live)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, uint64(1), stats.Freed)
}

func TestReleaseIgnoresNullSets(t *testing.T) {
	d := newFakeDriver()
	a := NewDescriptorSetAllocator(d, testConfig())
	a.Release(DescriptorSet{})
	require.Zero(t, a.Stats().Pending)
}

func TestExhaustedPoolsGrowTheList(t *testing.T) {
	d := newFakeDriver()
	d.poolCapacity = 2
	a := NewDescriptorSetAllocator(d, testConfig())
	layout := vk.DescriptorSetLayout(d.next())

	var sets []DescriptorSet
	for i := 0; i < 5; i++ {
		set, err := a.Allocate(layout)
		require.NoError(t, err)
		sets = append(sets, set)
	}
	require.Equal(t, 3, a.Stats().Pools)
	require.Equal(t, 3, d.calls["CreateDescriptorPool"])
	require.Equal(t, 0, sets[0].pool)
	require.Equal(t, 2, sets[4].pool)

	// Space freed in the first pool is reused once every pool was tried.
	a.Release(sets[0])
	a.Release(sets[1])
	for i := 0; i < testConfig().MaxFlightCount; i++ {
		a.Tick()
	}
	_, err := a.Allocate(layout)
	require.NoError(t, err)
	_, err = a.Allocate(layout)
	require.NoError(t, err)
	require.Equal(t, 3, a.Stats().Pools)
}

func TestAllocatorPropagatesOtherFailures(t *testing.T) {
	d := newFakeDriver()
	d.failCreate["CreateDescriptorPool"] = vk.ErrorOutOfDeviceMemory
	a := NewDescriptorSetAllocator(d, testConfig())

	_, err := a.Allocate(vk.DescriptorSetLayout(d.next()))
	require.Error(t, err)
	res, ok := ResultOf(err)
	require.True(t, ok)
	require.Equal(t, vk.ErrorOutOfDeviceMemory, res)
	require.Zero(t, a.Stats().Pools)
}

func TestAllocatorDestroyFreesPendingSets(t *testing.T) {
	d := newFakeDriver()
	a := NewDescriptorSetAllocator(d, testConfig())
	set, err := a.Allocate(vk.DescriptorSetLayout(d.next()))
	require.NoError(t, err)
	a.Release(set)

	a.Destroy()
	require.Equal(t, 1, d.freed[set.Handle])
	require.Equal(t, 1, d.calls["DestroyDescriptorPool"])
	require.Zero(t, a.Stats().Pools)
}

func TestFailedFreeKeepsSetsPending(t *testing.T) {
	d := newFakeDriver()
	cfg := testConfig()
	a := NewDescriptorSetAllocator(d, cfg)
	set, err := a.Allocate(vk.DescriptorSetLayout(d.next()))
	require.NoError(t, err)
	a.Release(set)

	d.failCreate["FreeDescriptorSets"] = vk.ErrorOutOfHostMemory
	for i := 0; i < cfg.MaxFlightCount; i++ {
		a.Tick()
	}
	stats := a.Stats()
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 1, stats.Live)
	require.Zero(t, stats.Freed)

	delete(d.failCreate, "FreeDescriptorSets")
	for i := 0; i < cfg.MaxFlightCount; i++ {
		a.Tick()
	}
	require.Equal(t, 1, d.freed[set.Handle])
	stats = a.Stats()
	require.Zero(t, stats.Pending)
	require.Zero(t, stats.Live)
}

func TestDestroyReclaimsSetsThatFailedToFree(t *testing.T) {
	d := newFakeDriver()
	a := NewDescriptorSetAllocator(d, testConfig())
	set, err := a.Allocate(vk.DescriptorSetLayout(d.next()))
	require.NoError(t, err)
	a.Release(set)

	d.failCreate["FreeDescriptorSets"] = vk.ErrorOutOfHostMemory
	a.Destroy()
	stats := a.Stats()
	require.Zero(t, stats.Pending)
	require.Zero(t, stats.Live)
	require.Equal(t, 1, d.calls["DestroyDescriptorPool"])
}
