package vulkan

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// hasher accumulates an FNV-1a digest over fixed-width little endian fields.
// Variable length fields are prefixed with their length so adjacent fields
// can never alias.
type hasher struct {
	h   hash.Hash64
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{h: fnv.New64a()}
}

func (h *hasher) u32(v uint32) *hasher {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.h.Write(h.buf[:4]) // fnv.Write never returns an error
	return h
}

func (h *hasher) u64(v uint64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.h.Write(h.buf[:])
	return h
}

func (h *hasher) i32(v int32) *hasher {
	return h.u32(uint32(v))
}

func (h *hasher) f32(v float32) *hasher {
	return h.u32(math.Float32bits(v))
}

func (h *hasher) boolean(v bool) *hasher {
	if v {
		return h.u32(1)
	}
	return h.u32(0)
}

func (h *hasher) str(s string) *hasher {
	h.u32(uint32(len(s)))
	_, _ = h.h.Write([]byte(s))
	return h
}

func (h *hasher) bytes(b []byte) *hasher {
	h.u32(uint32(len(b)))
	_, _ = h.h.Write(b)
	return h
}

func (h *hasher) sum() uint64 {
	return h.h.Sum64()
}
