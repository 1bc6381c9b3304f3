package power

import (
	"sync/atomic"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// Bridge turns wake-on-motion interrupts into MotionDetected events.
// It runs in the interrupt source's context, so it only enqueues: no I/O,
// no locks, no blocking.
type Bridge struct {
	machine *Machine
	fired   atomic.Uint64
	dropped atomic.Uint64
}

// NewBridge connects src to m.
func NewBridge(m *Machine, src sensor.InterruptSource) *Bridge {
	b := &Bridge{machine: m}
	src.OnMotion(b.Motion)
	return b
}

// Motion is the interrupt callback.
func (b *Bridge) Motion() {
	b.fired.Add(1)
	if !b.machine.Post(logic.EventMotionDetected) {
		b.dropped.Add(1)
	}
}

// Stats returns how many interrupts fired and how many were dropped because
// the event queue was full.
func (b *Bridge) Stats() (fired, dropped uint64) {
	return b.fired.Load(), b.dropped.Load()
}
