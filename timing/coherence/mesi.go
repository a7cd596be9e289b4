package coherence

import (
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/latency"
)

// MESI is the write-invalidate protocol with Modified, Exclusive, Shared and
// Invalid states.
type MESI struct {
	table *latency.Table
}

// NewMESI creates a MESI protocol charging costs from table.
func NewMESI(table *latency.Table) *MESI {
	return &MESI{table: table}
}

// Name returns "MESI".
func (p *MESI) Name() string {
	return NameMESI
}

// Process applies a bus transaction.
func (p *MESI) Process(req Request, snapshot Snapshot) (Outcome, error) {
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

	return p.upgrade(req, snapshot, c), nil
}

func (p *MESI) check(req Request, snapshot Snapshot, c census) error {
	switch {
	case c.invalid > 0:
		return violation(p.Name(), req, snapshot, "valid line in Invalid state")
	case c.owned > 0:
		return violation(p.Name(), req, snapshot, "Owned state is not part of MESI")
	case c.modified+c.exclusive > 1:
		return violation(p.Name(), req, snapshot, "more than one private copy")
	case c.modified+c.exclusive == 1 && c.holders > 1:
		return violation(p.Name(), req, snapshot, "private copy held alongside other copies")
	case c.own != nil && req.Type == Read:
		return violation(p.Name(), req, snapshot, "read request for a present block")
	case c.own != nil && c.own.State() != cache.Shared:
		return violation(p.Name(), req, snapshot, "write request for a block that needs no bus")
	}
	return nil
}

func (p *MESI) readMiss(req Request, snapshot Snapshot, c census) Outcome {
	if c.peers == 0 {
		return Outcome{
			State:       cache.Exclusive,
			ExtraCycles: p.table.MemoryFetch(),
			Traffic:     p.table.BlockSize(),
		}
	}

	extra := p.table.CacheToCache()
	if c.peerModified {
		extra = p.table.FlushAndTransfer()
	}

	forEachPeer(req, snapshot, func(line *cache.Line) {
		line.SetState(cache.Shared)
		line.SetDirty(false)
	})

	return Outcome{
		State:       cache.Shared,
		ExtraCycles: extra,
		Traffic:     p.table.BlockSize(),
	}
}

func (p *MESI) writeMiss(req Request, snapshot Snapshot, c census) Outcome {
	if c.peers == 0 {
		return Outcome{
			State:       cache.Modified,
			ExtraCycles: p.table.MemoryFetch(),
			Traffic:     p.table.BlockSize(),
		}
	}

	extra := p.table.CacheToCache()
	if c.peerModified {
		extra = p.table.FlushAndTransfer()
	}

	forEachPeer(req, snapshot, func(line *cache.Line) {
		line.Invalidate()
	})

	return Outcome{
		State:         cache.Modified,
		ExtraCycles:   extra,
		Traffic:       p.table.BlockSize(),
		Invalidations: 1,
	}
}

// upgrade handles a write to a Shared block. With no peers left the write
// proceeds silently.
func (p *MESI) upgrade(req Request, snapshot Snapshot, c census) Outcome {
	c.own.SetState(cache.Modified)
	if c.peers == 0 {
		return Outcome{State: cache.Modified}
	}

	forEachPeer(req, snapshot, func(line *cache.Line) {
		line.Invalidate()
	})

	return Outcome{
		State:         cache.Modified,
		Invalidations: 1,
	}
}
