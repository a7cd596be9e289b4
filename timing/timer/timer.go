// Package timer provides the global clock. Each tick updates every attached
// processor in registration order and then drains the bus.
package timer

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
)

// Tickable is updated once per cycle. It reports whether it still has work.
type Tickable interface {
	Update(now uint64) (bool, error)
}

// Bus is drained after every tickable has been updated.
type Bus interface {
	DrainRequests(now uint64) error
	DrainReplies(now uint64) error
	Pending() bool
}

// Timer drives a simulation cycle by cycle.
type Timer struct {
	*sim.TickingComponent

	engine    sim.Engine
	tickables []Tickable
	bus       Bus

	now uint64
	err error
}

// New creates a timer ticking on engine at freq.
func New(engine sim.Engine, freq sim.Freq, bus Bus) *Timer {
	t := &Timer{
		engine: engine,
		bus:    bus,
	}
	t.TickingComponent = sim.NewTickingComponent("Timer", engine, freq, t)
	return t
}

// Attach registers a tickable. Tickables are updated in the order they are
// attached.
func (t *Timer) Attach(tickable Tickable) {
	t.tickables = append(t.tickables, tickable)
}

// Now returns the current cycle.
func (t *Timer) Now() uint64 {
	return t.now
}

// Err returns the error that stopped the timer, if any.
func (t *Timer) Err() error {
	return t.err
}

// Tick advances the simulation by one cycle. It returns false once nothing
// is left to do or an error occurred.
func (t *Timer) Tick() bool {
	if t.err != nil {
		return false
	}

	t.now++

	active := false
	for _, tickable := range t.tickables {
		busy, err := tickable.Update(t.now)
		if err != nil {
			t.err = err
			return false
		}
		active = active || busy
	}

	if err := t.bus.DrainRequests(t.now); err != nil {
		t.err = err
		return false
	}
	if err := t.bus.DrainReplies(t.now); err != nil {
		t.err = err
		return false
	}

	return active || t.bus.Pending()
}

// Run ticks until no progress is made.
func (t *Timer) Run() error {
	logrus.Debugf("timer starting with %d tickables", len(t.tickables))

	t.TickLater()
	if err := t.engine.Run(); err != nil {
		return err
	}

	return t.err
}
