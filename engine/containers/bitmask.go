package containers

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// BitMask is a fixed-width set of small indices backed by one unsigned word.
type BitMask[T constraints.Unsigned] struct {
	bits T
}

func MaskOf[T constraints.Unsigned](v T) BitMask[T] {
	return BitMask[T]{bits: v}
}

func (m *BitMask[T]) Set(i uint) {
	m.bits |= T(1) << i
}

func (m *BitMask[T]) Clear(i uint) {
	m.bits &^= T(1) << i
}

func (m BitMask[T]) Has(i uint) bool {
	return m.bits&(T(1)<<i) != 0
}

// Covers reports whether every bit of other is also set in m.
func (m BitMask[T]) Covers(other BitMask[T]) bool {
	return m.bits&other.bits == other.bits
}

func (m BitMask[T]) Missing(other BitMask[T]) BitMask[T] {
	return BitMask[T]{bits: other.bits &^ m.bits}
}

func (m BitMask[T]) Empty() bool {
	return m.bits == 0
}

func (m BitMask[T]) Count() int {
	return bits.OnesCount64(uint64(m.bits))
}

func (m BitMask[T]) Value() T {
	return m.bits
}

func (m *BitMask[T]) Reset() {
	m.bits = 0
}

// ForEach visits set bits from lowest to highest.
func (m BitMask[T]) ForEach(fn func(i uint)) {
	v := uint64(m.bits)
	for v != 0 {
		i := bits.TrailingZeros64(v)
		fn(uint(i))
		v &= v - 1
	}
}
