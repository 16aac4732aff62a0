package core

import "github.com/cockroachdb/errors"

// Handle addresses an arena slot. The generation makes handles to released
// slots detectably stale instead of aliasing whatever took the slot next.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Zero handles never resolve because live slots start at generation 1.
func (h Handle) IsZero() bool {
	return h.Generation == 0
}

type arenaSlot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena owns values of T. The creator holds the Handle; consumers borrow the
// value through Get for as long as they need it within a frame.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	count int
}

func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots: make([]arenaSlot[T], 0, capacity),
	}
}

func (a *Arena[T]) Insert(value T) Handle {
	// Existing free spot. Take it.
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		slot := &a.slots[index]
		slot.value = value
		slot.occupied = true
		a.count++
		return Handle{Index: index, Generation: slot.generation}
	}

	a.slots = append(a.slots, arenaSlot[T]{value: value, generation: 1, occupied: true})
	a.count++
	return Handle{Index: uint32(len(a.slots) - 1), Generation: 1}
}

func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if int(h.Index) >= len(a.slots) {
		return zero, false
	}
	slot := &a.slots[h.Index]
	if !slot.occupied || slot.generation != h.Generation {
		return zero, false
	}
	return slot.value, true
}

// Remove releases the slot and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, error) {
	var zero T
	if int(h.Index) >= len(a.slots) {
		return zero, errors.Mark(errors.Newf("arena handle %d out of range (max=%d)", h.Index, len(a.slots)), ErrStaleHandle)
	}
	slot := &a.slots[h.Index]
	if !slot.occupied || slot.generation != h.Generation {
		return zero, errors.Mark(errors.Newf("arena handle %d generation %d is stale", h.Index, h.Generation), ErrStaleHandle)
	}
	value := slot.value
	slot.value = zero
	slot.occupied = false
	slot.generation++
	a.free = append(a.free, h.Index)
	a.count--
	return value, nil
}

func (a *Arena[T]) Len() int {
	return a.count
}

// Each visits live values in slot order. Returning false stops the walk.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		slot := &a.slots[i]
		if !slot.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: slot.generation}, slot.value) {
			return
		}
	}
}
