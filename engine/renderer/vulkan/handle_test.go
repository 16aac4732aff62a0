package vulkan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceHandleRoundTrip(t *testing.T) {
	fields := ResourceHandleFields{
		Set:            3,
		Binding:        63,
		Ordinal:        17,
		WriteIndex:     1023,
		Kind:           SpecifiedImage,
		SpecifiedIndex: 15,
	}
	h := EncodeResourceHandle(fields)
	require.True(t, h.IsValid())
	require.Equal(t, fields, h.Decode())
	require.Equal(t, uint32(3), h.Set())
	require.Equal(t, uint32(63), h.Binding())
	require.Equal(t, uint32(1023), h.WriteIndex())
	require.Zero(t, uint32(h)>>31, "bit 31 is reserved")
}

func TestResourceHandleBitLayout(t *testing.T) {
	h := EncodeResourceHandle(ResourceHandleFields{Set: 1, Binding: 2, Ordinal: 3, WriteIndex: 4, Kind: SpecifiedDynamicBuffer, SpecifiedIndex: 5})
	want := uint32(1) | 2<<2 | 3<<8 | 4<<14 | 1<<24 | 5<<26 | 1<<30
	require.Equal(t, want, uint32(h))
}

func TestZeroHandleIsInvalid(t *testing.T) {
	var h ResourceHandle
	require.False(t, h.IsValid())
	require.Equal(t, "ResourceHandle(invalid)", h.String())
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	require.Panics(t, func() {
		EncodeResourceHandle(ResourceHandleFields{Set: MaxDescriptorSets})
	})
	require.Panics(t, func() {
		EncodeResourceHandle(ResourceHandleFields{WriteIndex: MaxDescriptorWrites})
	})
}
