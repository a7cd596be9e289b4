// Package controller provides the per-core cache controller that sits
// between a processor, its private cache and the bus.
package controller

import (
	"fmt"

	"github.com/sarchlab/snoopsim/timing/bus"
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
)

// Core is the processor side of a controller.
type Core interface {
	ReplyReceived(addr cache.Address, state cache.State, haltCycles uint64) error
}

// Submitter accepts bus requests.
type Submitter interface {
	SubmitRequest(msg *bus.Message)
}

// Controller owns one private cache.
type Controller struct {
	id    int
	cache *cache.Cache
	bus   Submitter
	core  Core

	hitLatency       uint64
	writeBackLatency uint64
}

// New creates a controller for core id.
func New(
	id int,
	c *cache.Cache,
	b Submitter,
	hitLatency, writeBackLatency uint64,
) *Controller {
	return &Controller{
		id:               id,
		cache:            c,
		bus:              b,
		hitLatency:       hitLatency,
		writeBackLatency: writeBackLatency,
	}
}

// SetCore binds the processor that receives replies.
func (c *Controller) SetCore(core Core) {
	c.core = core
}

// ID returns the core id.
func (c *Controller) ID() int {
	return c.id
}

// Cache returns the private cache.
func (c *Controller) Cache() *cache.Cache {
	return c.cache
}

// ParseAddress splits a byte address for this cache.
func (c *Controller) ParseAddress(addr uint64) cache.Address {
	return c.cache.ParseAddress(addr)
}

// LineIfPresent returns the valid line holding addr without touching the
// LRU order.
func (c *Controller) LineIfPresent(addr cache.Address) *cache.Line {
	return c.cache.Line(addr)
}

// SendRequest puts a message on the bus.
func (c *Controller) SendRequest(msg *bus.Message) {
	c.bus.SubmitRequest(msg)
}

// Detect performs an access. Local accesses complete immediately; the rest
// are sent to the bus and reported as not hit.
func (c *Controller) Detect(now uint64, addr cache.Address, isWrite bool) cache.AccessResult {
	kind := c.cache.Probe(addr, isWrite)

	if !kind.NeedsBus() {
		set := c.cache.Set(addr.SetIndex)
		set.IsHit(addr.Tag, isWrite)

		line := set.FindLineReadOnly(addr.Tag)
		if kind == cache.AccessLocalUpgrade {
			line.SetState(cache.Modified)
		}

		return cache.AccessResult{
			Kind:    kind,
			Hit:     true,
			Latency: c.hitLatency,
			State:   line.State(),
		}
	}

	t := coherence.Read
	if isWrite {
		t = coherence.Write
	}
	c.SendRequest(bus.NewMessage(c.id, addr, t, now))

	return cache.AccessResult{Kind: kind}
}

// ReceiveReply installs the block of a completed transaction and wakes the
// processor. Evicting a dirty block halts the processor for the write-back.
func (c *Controller) ReceiveReply(msg *bus.Message) error {
	if msg.Sender != c.id {
		return fmt.Errorf("core %d received reply %s for core %d",
			c.id, msg.ID, msg.Sender)
	}

	tag := msg.Address.Tag
	isWrite := msg.Type == coherence.Write
	set := c.cache.Set(msg.Address.SetIndex)

	var halt uint64
	if set.NeedWriteBack(tag) {
		halt = c.writeBackLatency
	}

	line := set.FindLineReadOnly(tag)
	if line == nil {
		line, _ = set.LoadLine(tag, isWrite)
	} else {
		set.IsHit(tag, isWrite)
	}
	line.SetState(msg.State)

	if c.core == nil {
		return nil
	}
	return c.core.ReplyReceived(msg.Address, msg.State, halt)
}
