package vulkan

import "fmt"

// ResourceHandle addresses one descriptor of a MaterialLayout. It is stable
// for a (layout, name) pair, so re-resolving a name always yields the same
// write slot and never grows the material's tables.
//
// Bit layout, least significant first:
//
//	bits  0-1   set index             (MaxDescriptorSets = 4)
//	bits  2-7   binding               (MaxBindingsPerSet = 64)
//	bits  8-13  ordinal within set    (position after sorting by binding)
//	bits 14-23  global write index    (MaxDescriptorWrites = 1024)
//	bits 24-25  specified kind        (SpecifiedNone, SpecifiedDynamicBuffer, SpecifiedImage)
//	bits 26-29  specified index       (MaxDynamicBuffers = MaxImageDescriptors = 16)
//	bit  30     valid
//	bit  31     reserved, always zero
type ResourceHandle uint32

const (
	MaxDescriptorSets   = 4
	MaxBindingsPerSet   = 64
	MaxDescriptorWrites = 1024
	MaxDynamicBuffers   = 16
	MaxImageDescriptors = 16
)

const (
	handleSetShift       = 0
	handleSetBits        = 2
	handleBindingShift   = handleSetShift + handleSetBits
	handleBindingBits    = 6
	handleOrdinalShift   = handleBindingShift + handleBindingBits
	handleOrdinalBits    = 6
	handleWriteShift     = handleOrdinalShift + handleOrdinalBits
	handleWriteBits      = 10
	handleKindShift      = handleWriteShift + handleWriteBits
	handleKindBits       = 2
	handleSpecifiedShift = handleKindShift + handleKindBits
	handleSpecifiedBits  = 4
	handleValidBit       = handleSpecifiedShift + handleSpecifiedBits
)

type SpecifiedKind uint8

const (
	SpecifiedNone SpecifiedKind = iota
	SpecifiedDynamicBuffer
	SpecifiedImage
)

type ResourceHandleFields struct {
	Set            uint32
	Binding        uint32
	Ordinal        uint32
	WriteIndex     uint32
	Kind           SpecifiedKind
	SpecifiedIndex uint32
}

func mask(bits uint) uint32 {
	return (1 << bits) - 1
}

// EncodeResourceHandle packs f. Fields wider than their slot are a
// programming error in the layout builder, which checks limits first.
func EncodeResourceHandle(f ResourceHandleFields) ResourceHandle {
	if f.Set > mask(handleSetBits) || f.Binding > mask(handleBindingBits) ||
		f.Ordinal > mask(handleOrdinalBits) || f.WriteIndex > mask(handleWriteBits) ||
		uint32(f.Kind) > mask(handleKindBits) || f.SpecifiedIndex > mask(handleSpecifiedBits) {
		panic(fmt.Sprintf("resource handle field out of range: %+v", f))
	}
	v := f.Set<<handleSetShift |
		f.Binding<<handleBindingShift |
		f.Ordinal<<handleOrdinalShift |
		f.WriteIndex<<handleWriteShift |
		uint32(f.Kind)<<handleKindShift |
		f.SpecifiedIndex<<handleSpecifiedShift |
		1<<handleValidBit
	return ResourceHandle(v)
}

func (h ResourceHandle) Decode() ResourceHandleFields {
	v := uint32(h)
	return ResourceHandleFields{
		Set:            (v >> handleSetShift) & mask(handleSetBits),
		Binding:        (v >> handleBindingShift) & mask(handleBindingBits),
		Ordinal:        (v >> handleOrdinalShift) & mask(handleOrdinalBits),
		WriteIndex:     (v >> handleWriteShift) & mask(handleWriteBits),
		Kind:           SpecifiedKind((v >> handleKindShift) & mask(handleKindBits)),
		SpecifiedIndex: (v >> handleSpecifiedShift) & mask(handleSpecifiedBits),
	}
}

func (h ResourceHandle) IsValid() bool {
	return uint32(h)&(1<<handleValidBit) != 0
}

func (h ResourceHandle) Set() uint32 {
	return h.Decode().Set
}

func (h ResourceHandle) Binding() uint32 {
	return h.Decode().Binding
}

func (h ResourceHandle) WriteIndex() uint32 {
	return h.Decode().WriteIndex
}

func (h ResourceHandle) String() string {
	if !h.IsValid() {
		return "ResourceHandle(invalid)"
	}
	f := h.Decode()
	return fmt.Sprintf("ResourceHandle(set=%d binding=%d ordinal=%d write=%d kind=%d index=%d)",
		f.Set, f.Binding, f.Ordinal, f.WriteIndex, f.Kind, f.SpecifiedIndex)
}
