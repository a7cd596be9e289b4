// Package coherence implements the snooping protocols that decide how a bus
// transaction changes the lines of every cache holding the block.
//
// A Protocol is handed the requester's request and a snapshot of the line
// each cache holds for the block. It updates peer lines in place, sets the
// requester's line when it is already present, and returns the requester's
// resulting state with the cost of the transaction.
package coherence

import (
	"fmt"
	"strings"

	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/latency"
)

// RequestType is the kind of bus request.
type RequestType uint8

const (
	// Read asks for a readable copy of an absent block.
	Read RequestType = iota
	// Write asks for a writable copy of a block.
	Write
)

func (t RequestType) String() string {
	if t == Write {
		return "Write"
	}
	return "Read"
}

// Request is what a controller puts on the bus.
type Request struct {
	Sender  int
	Address cache.Address
	Type    RequestType
}

// Snapshot holds, per core id, the valid line holding the requested block,
// or nil when that core does not hold it.
type Snapshot []*cache.Line

// States returns the per-core states of the snapshot.
func (s Snapshot) States() []cache.State {
	states := make([]cache.State, len(s))
	for i, line := range s {
		if line != nil {
			states[i] = line.State()
		}
	}
	return states
}

// Outcome is the effect of one transaction on the requester and the bus
// statistics.
type Outcome struct {
	// State is the requester's state once the reply is installed.
	State cache.State
	// ExtraCycles is the cost beyond the base cache-hit residency.
	ExtraCycles uint64
	// Traffic is the number of bytes moved over the bus.
	Traffic uint64
	// Invalidations counts invalidation broadcasts.
	Invalidations uint64
	// Updates counts update broadcasts.
	Updates uint64
}

// Protocol decides the effect of bus transactions.
type Protocol interface {
	Name() string
	Process(req Request, snapshot Snapshot) (Outcome, error)
}

// Names of the supported protocols.
const (
	NameMESI   = "MESI"
	NameDragon = "Dragon"
)

// Names returns the names accepted by New.
func Names() []string {
	return []string{NameMESI, NameDragon}
}

// New creates the protocol with the given name. Names are matched
// case-insensitively.
func New(name string, table *latency.Table) (Protocol, error) {
	switch strings.ToLower(name) {
	case strings.ToLower(NameMESI):
		return NewMESI(table), nil
	case strings.ToLower(NameDragon):
		return NewDragon(table), nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (valid: %s)",
			name, strings.Join(Names(), ", "))
	}
}

// census summarizes the holders of a block.
type census struct {
	own          *cache.Line
	peers        int
	holders      int
	modified     int
	owned        int
	exclusive    int
	invalid      int
	peerModified bool
}

func takeCensus(req Request, snapshot Snapshot) census {
	c := census{own: snapshot[req.Sender]}
	for id, line := range snapshot {
		if line == nil {
			continue
		}

		c.holders++
		if id != req.Sender {
			c.peers++
		}

		switch line.State() {
		case cache.Modified:
			c.modified++
			if id != req.Sender {
				c.peerModified = true
			}
		case cache.Owned:
			c.owned++
		case cache.Exclusive:
			c.exclusive++
		case cache.Invalid:
			c.invalid++
		}
	}
	return c
}

// forEachPeer calls f on every peer line holding the block.
func forEachPeer(req Request, snapshot Snapshot, f func(line *cache.Line)) {
	for id, line := range snapshot {
		if line == nil || id == req.Sender {
			continue
		}
		f(line)
	}
}
