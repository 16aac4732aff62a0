package vulkan

import (
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// FramePacer defers work until the GPU can no longer be using what the work
// releases. Callables posted during a frame run the next time that frame's
// slot comes around, which is after its fence has been waited on.
type FramePacer struct {
	index int
	slots [][]func()
}

func NewFramePacer(flightCount int) *FramePacer {
	return &FramePacer{
		slots: make([][]func(), flightCount),
	}
}

// PostCallable queues fn on the current slot.
func (p *FramePacer) PostCallable(fn func()) {
	p.slots[p.index] = append(p.slots[p.index], fn)
}

// Tick moves to the next slot and runs what was queued there. The caller
// must already have waited on the fence guarding that slot.
func (p *FramePacer) Tick() {
	p.index = (p.index + 1) % len(p.slots)
	p.drain(p.index)
}

// InvokeAllNow runs every queued callable regardless of slot. Only valid once
// the device is idle.
func (p *FramePacer) InvokeAllNow() {
	for p.Pending() > 0 {
		for i := range p.slots {
			p.drain((p.index + 1 + i) % len(p.slots))
		}
	}
}

func (p *FramePacer) drain(slot int) {
	queue := p.slots[slot]
	if len(queue) == 0 {
		return
	}
	// Callables may post more work; it lands in a fresh queue.
	p.slots[slot] = nil
	for _, fn := range queue {
		fn()
	}
	core.LogDebug("frame pacer: ran %d deferred calls for slot %d", len(queue), slot)
}

func (p *FramePacer) Index() int {
	return p.index
}

// Pending counts queued callables across all slots.
func (p *FramePacer) Pending() int {
	n := 0
	for _, q := range p.slots {
		n += len(q)
	}
	return n
}
