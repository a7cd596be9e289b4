package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// State is the coherence state of a cache line.
type State uint8

// States shared by the supported protocols. Owned is only reachable under
// Dragon, where it stands for the shared-modified owner of a block.
const (
	Invalid State = iota
	Shared
	Exclusive
	Modified
	Owned
)

var stateNames = [...]string{
	Invalid:   "Invalid",
	Shared:    "Shared",
	Exclusive: "Exclusive",
	Modified:  "Modified",
	Owned:     "Owned",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Short returns the one-letter mnemonic used in trace output.
func (s State) Short() string {
	return s.String()[:1]
}

// IsPrivate reports whether a holder in this state is the only holder.
func (s State) IsPrivate() bool {
	return s == Exclusive || s == Modified
}

// Line is one slot of a set. Tag, valid and dirty bits live in the
// underlying directory block; the line adds the coherence state.
type Line struct {
	block    *akitacache.Block
	state    State
	tagShift uint
}

// Tag returns the tag of the block held in the slot.
func (l *Line) Tag() uint64 {
	return l.block.Tag >> l.tagShift
}

// Valid reports whether the slot holds a block.
func (l *Line) Valid() bool {
	return l.block.IsValid
}

// Dirty reports whether the block differs from memory.
func (l *Line) Dirty() bool {
	return l.block.IsDirty
}

// SetDirty sets the dirty bit.
func (l *Line) SetDirty(dirty bool) {
	l.block.IsDirty = dirty
}

// State returns the coherence state of the line.
func (l *Line) State() State {
	return l.state
}

// SetState changes the coherence state. Moving to Invalid drops the block.
func (l *Line) SetState(s State) {
	if s == Invalid {
		l.Invalidate()
		return
	}
	l.state = s
}

// Invalidate drops the block held in the slot.
func (l *Line) Invalidate() {
	l.block.IsValid = false
	l.block.IsDirty = false
	l.state = Invalid
}

// Way returns the way index of the slot within its set.
func (l *Line) Way() int {
	return l.block.WayID
}
