package coherence

import (
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/latency"
)

// wordSize is the number of bytes in one update broadcast.
const wordSize = 4

// Dragon is the write-update protocol. Owned plays the role of
// shared-modified and Shared the role of shared-clean; no line is ever
// invalidated by a peer.
type Dragon struct {
	table *latency.Table
}

// NewDragon creates a Dragon protocol charging costs from table.
func NewDragon(table *latency.Table) *Dragon {
	return &Dragon{table: table}
}

// Name returns "Dragon".
func (p *Dragon) Name() string {
	return NameDragon
}

// Process applies a bus transaction.
func (p *Dragon) Process(req Request, snapshot Snapshot) (Outcome, error) {
	c := takeCensus(req, snapshot)
	if err := p.check(req, snapshot, c); err != nil {
		return Outcome{}, err
	}

	if c.own == nil {
		if req.Type == Read {
			return p.readMiss(req, snapshot, c), nil
		}
		return p.writeMiss(req, snapshot, c), nil
	}

	return p.update(req, snapshot, c), nil
}

func (p *Dragon) check(req Request, snapshot Snapshot, c census) error {
	switch {
	case c.invalid > 0:
		return violation(p.Name(), req, snapshot, "valid line in Invalid state")
	case c.modified+c.owned > 1:
		return violation(p.Name(), req, snapshot, "more than one owner")
	case c.modified+c.exclusive > 1:
		return violation(p.Name(), req, snapshot, "more than one private copy")
	case c.modified+c.exclusive == 1 && c.holders > 1:
		return violation(p.Name(), req, snapshot, "private copy held alongside other copies")
	case c.own != nil && req.Type == Read:
		return violation(p.Name(), req, snapshot, "read request for a present block")
	case c.own != nil && c.own.State().IsPrivate():
		return violation(p.Name(), req, snapshot, "write request for a block that needs no bus")
	}
	return nil
}

func (p *Dragon) readMiss(req Request, snapshot Snapshot, c census) Outcome {
	if c.peers == 0 {
		return Outcome{
			State:       cache.Exclusive,
			ExtraCycles: p.table.MemoryFetch(),
			Traffic:     p.table.BlockSize(),
		}
	}

	forEachPeer(req, snapshot, func(line *cache.Line) {
		switch line.State() {
		case cache.Modified:
			line.SetState(cache.Owned)
		case cache.Exclusive:
			line.SetState(cache.Shared)
		}
	})

	return Outcome{
		State:       cache.Shared,
		ExtraCycles: p.table.CacheToCache(),
		Traffic:     p.table.BlockSize(),
	}
}

func (p *Dragon) writeMiss(req Request, snapshot Snapshot, c census) Outcome {
	if c.peers == 0 {
		return Outcome{
			State:       cache.Modified,
			ExtraCycles: p.table.MemoryFetch(),
			Traffic:     p.table.BlockSize(),
		}
	}

	p.demotePeers(req, snapshot)

	return Outcome{
		State:       cache.Owned,
		ExtraCycles: p.table.BusUpdate(),
		Traffic:     p.table.BlockSize() + wordSize*uint64(c.peers),
		Updates:     1,
	}
}

// update handles a write to a Shared or Owned block. With no peers left the
// writer becomes the only holder.
func (p *Dragon) update(req Request, snapshot Snapshot, c census) Outcome {
	if c.peers == 0 {
		c.own.SetState(cache.Modified)
		return Outcome{State: cache.Modified}
	}

	c.own.SetState(cache.Owned)
	p.demotePeers(req, snapshot)

	return Outcome{
		State:       cache.Owned,
		ExtraCycles: p.table.BusUpdate(),
		Traffic:     wordSize * uint64(c.peers),
		Updates:     1,
	}
}

// demotePeers makes every peer a clean sharer of the block the requester
// now owns.
func (p *Dragon) demotePeers(req Request, snapshot Snapshot) {
	forEachPeer(req, snapshot, func(line *cache.Line) {
		line.SetState(cache.Shared)
		line.SetDirty(false)
	})
}
