// Package core provides the trace-driven processor model. Each processor
// executes one instruction at a time and stalls on memory accesses until
// its cache controller completes them.
package core

import (
	"fmt"

	"github.com/sarchlab/snoopsim/insts"
	"github.com/sarchlab/snoopsim/timing/cache"
)

// Trace supplies the instructions of one core.
type Trace interface {
	Next() (insts.Instruction, bool, error)
}

// Memory is the cache controller as seen by the processor.
type Memory interface {
	ParseAddress(addr uint64) cache.Address
	Detect(now uint64, addr cache.Address, isWrite bool) cache.AccessResult
}

// Stats holds performance statistics for one processor.
type Stats struct {
	// FinishedAt is the cycle of the last commit.
	FinishedAt uint64 `yaml:"finished_at"`
	// Instructions is the number of instructions committed.
	Instructions uint64 `yaml:"instructions"`
	Loads        uint64 `yaml:"loads"`
	Stores       uint64 `yaml:"stores"`
	// ComputeCycles counts cycles spent in compute blocks.
	ComputeCycles uint64 `yaml:"compute_cycles"`
	// IdleCycles counts cycles spent waiting on memory.
	IdleCycles uint64 `yaml:"idle_cycles"`
	Hits       uint64 `yaml:"hits"`
	Misses     uint64 `yaml:"misses"`
	// Upgrades counts writes to present blocks that needed the bus.
	Upgrades uint64 `yaml:"upgrades"`
	// Hazards counts issue attempts blocked by an in-flight address.
	Hazards uint64 `yaml:"hazards"`
	// PrivateAccesses and SharedAccesses split committed memory accesses by
	// whether the line was held alone.
	PrivateAccesses uint64 `yaml:"private_accesses"`
	SharedAccesses  uint64 `yaml:"shared_accesses"`
}

// Accesses returns the number of committed loads and stores.
func (s Stats) Accesses() uint64 {
	return s.Loads + s.Stores
}

// MissRate returns the fraction of accesses that missed.
func (s Stats) MissRate() float64 {
	if s.Hits+s.Misses+s.Upgrades == 0 {
		return 0
	}
	return float64(s.Misses) / float64(s.Hits+s.Misses+s.Upgrades)
}

// Processor executes a trace against a cache controller.
type Processor struct {
	id     int
	trace  Trace
	memory Memory

	now      uint64
	current  *insts.Instruction
	addr     cache.Address
	state    cache.State
	halt     uint64
	awaiting bool
	finished bool

	// inFlight holds the addresses with an uncommitted access.
	inFlight map[cache.Address]struct{}

	stats Stats
}

// NewProcessor creates processor id running trace against memory.
func NewProcessor(id int, trace Trace, memory Memory) *Processor {
	return &Processor{
		id:       id,
		trace:    trace,
		memory:   memory,
		inFlight: make(map[cache.Address]struct{}),
	}
}

// ID returns the core id.
func (p *Processor) ID() int {
	return p.id
}

// Finished reports whether the trace has been fully executed.
func (p *Processor) Finished() bool {
	return p.finished
}

// Stats returns performance statistics.
func (p *Processor) Stats() Stats {
	return p.stats
}

// Update advances the processor by one cycle. It returns false once the
// processor has finished.
func (p *Processor) Update(now uint64) (bool, error) {
	p.now = now

	switch {
	case p.finished:
		return false, nil
	case p.awaiting:
		p.stats.IdleCycles++
		return true, nil
	case p.halt > 0:
		p.countStall()
		p.halt--
		if p.halt == 0 {
			p.commit()
		}
		return true, nil
	}

	if p.current == nil {
		inst, ok, err := p.trace.Next()
		if err != nil {
			return false, fmt.Errorf("core %d: %w", p.id, err)
		}
		if !ok {
			p.finished = true
			return false, nil
		}
		p.current = &inst
	}

	p.issue()
	return true, nil
}

func (p *Processor) countStall() {
	if p.current.Op == insts.OpCompute {
		p.stats.ComputeCycles++
	} else {
		p.stats.IdleCycles++
	}
}

// issue starts the current instruction. The issuing cycle counts as the
// instruction's first cycle.
func (p *Processor) issue() {
	inst := p.current

	if inst.Op == insts.OpCompute {
		if inst.Value == 0 {
			p.commit()
			return
		}
		p.stats.ComputeCycles++
		p.stallFor(inst.Value)
		return
	}

	addr := p.memory.ParseAddress(inst.Value)
	p.stats.IdleCycles++
	if _, busy := p.inFlight[addr]; busy {
		p.stats.Hazards++
		return
	}

	p.addr = addr
	p.inFlight[addr] = struct{}{}

	result := p.memory.Detect(p.now, addr, inst.IsWrite())
	switch result.Kind {
	case cache.AccessMiss:
		p.stats.Misses++
	case cache.AccessUpgrade:
		p.stats.Upgrades++
	default:
		p.stats.Hits++
	}

	if !result.Hit {
		p.awaiting = true
		return
	}

	p.state = result.State
	p.stallFor(result.Latency)
}

// stallFor holds the current instruction for cycles cycles, the current
// one included.
func (p *Processor) stallFor(cycles uint64) {
	if cycles <= 1 {
		p.commit()
		return
	}
	p.halt = cycles - 1
}

// ReplyReceived completes the outstanding access to addr. A non-zero halt
// delays the commit by that many cycles.
func (p *Processor) ReplyReceived(addr cache.Address, state cache.State, halt uint64) error {
	if !p.awaiting || addr != p.addr {
		return fmt.Errorf("core %d: unexpected reply for %s", p.id, addr)
	}

	p.awaiting = false
	p.state = state

	if halt == 0 {
		p.commit()
		return nil
	}
	p.halt = halt
	return nil
}

func (p *Processor) commit() {
	inst := p.current

	if inst.IsMemory() {
		if inst.IsWrite() {
			p.stats.Stores++
		} else {
			p.stats.Loads++
		}

		if p.state.IsPrivate() {
			p.stats.PrivateAccesses++
		} else {
			p.stats.SharedAccesses++
		}

		delete(p.inFlight, p.addr)
	}

	p.stats.Instructions++
	p.stats.FinishedAt = p.now
	p.current = nil
}
