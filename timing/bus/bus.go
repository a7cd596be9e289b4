// Package bus models the shared snooping bus. Messages are costed by the
// coherence protocol when they first reach the head of the request queue and
// then bounce between the request and reply queues, one cycle per drain,
// until their residency runs out.
package bus

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
)

// Endpoint is a cache controller attached to the bus.
type Endpoint interface {
	ID() int
	LineIfPresent(addr cache.Address) *cache.Line
	ReceiveReply(msg *Message) error
}

// Transaction is the record of one delivered message.
type Transaction struct {
	ID          string
	Sender      int
	Address     uint64
	Type        string
	State       string
	ExtraCycles uint64
	IssuedAt    uint64
	CostedAt    uint64
	DeliveredAt uint64
}

// Recorder receives every delivered transaction.
type Recorder interface {
	Record(txn Transaction)
}

// Stats holds the aggregate bus counters. They only grow.
type Stats struct {
	DataTraffic   uint64 `yaml:"data_traffic"`
	Invalidations uint64 `yaml:"invalidations"`
	Updates       uint64 `yaml:"updates"`
	Transactions  uint64 `yaml:"transactions"`
}

func (s *Stats) add(o coherence.Outcome) {
	s.DataTraffic += o.Traffic
	s.Invalidations += o.Invalidations
	s.Updates += o.Updates
}

// Bus serializes coherence transactions between controllers.
type Bus struct {
	protocol   coherence.Protocol
	hitLatency uint64
	blockAddr  func(cache.Address) uint64

	endpoints []Endpoint
	requests  []*Message
	replies   []*Message

	// busy maps an address to the sender of its costed, undelivered
	// message.
	busy map[cache.Address]int

	stats    Stats
	recorder Recorder
}

// New creates a bus that costs messages with protocol. Every transaction
// occupies the bus for hitLatency cycles plus the protocol's extra cycles.
func New(protocol coherence.Protocol, hitLatency uint64) *Bus {
	return &Bus{
		protocol:   protocol,
		hitLatency: hitLatency,
		busy:       make(map[cache.Address]int),
	}
}

// WithRecorder sets the recorder for delivered transactions.
func (b *Bus) WithRecorder(r Recorder) *Bus {
	b.recorder = r
	return b
}

// WithBlockAddress sets how recorded transactions turn a parsed address back
// into a byte address.
func (b *Bus) WithBlockAddress(f func(cache.Address) uint64) *Bus {
	b.blockAddr = f
	return b
}

// Attach connects an endpoint. Endpoints must be attached in id order.
func (b *Bus) Attach(ep Endpoint) {
	if ep.ID() != len(b.endpoints) {
		panic(fmt.Sprintf("endpoint %d attached out of order", ep.ID()))
	}
	b.endpoints = append(b.endpoints, ep)
}

// Protocol returns the coherence protocol.
func (b *Bus) Protocol() coherence.Protocol {
	return b.protocol
}

// Stats returns the bus counters.
func (b *Bus) Stats() Stats {
	return b.stats
}

// SubmitRequest appends a message to the request queue.
func (b *Bus) SubmitRequest(msg *Message) {
	b.requests = append(b.requests, msg)
}

// SubmitReply appends a message to the reply queue. A costed message with
// residency zero is delivered at the next DrainReplies.
func (b *Bus) SubmitReply(msg *Message) {
	b.replies = append(b.replies, msg)
}

// Pending reports whether any message is still on the bus.
func (b *Bus) Pending() bool {
	return len(b.requests) > 0 || len(b.replies) > 0
}

// DrainRequests costs new messages and consumes one cycle of every message
// in the request queue.
func (b *Bus) DrainRequests(now uint64) error {
	pending := b.requests
	b.requests = nil

	for _, msg := range pending {
		if !msg.Costed() {
			if b.addressBusy(msg) {
				b.SubmitReply(msg)
				continue
			}

			if err := b.cost(msg, now); err != nil {
				return err
			}
		}

		msg.Residency--
		b.SubmitReply(msg)
	}

	return nil
}

// DrainReplies delivers messages whose residency ran out and sends the rest
// back to the request queue.
func (b *Bus) DrainReplies(now uint64) error {
	pending := b.replies
	b.replies = nil

	for _, msg := range pending {
		if msg.Residency != 0 {
			b.requests = append(b.requests, msg)
			continue
		}

		if err := b.deliver(msg, now); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bus) addressBusy(msg *Message) bool {
	owner, ok := b.busy[msg.Address]
	return ok && owner != msg.Sender
}

func (b *Bus) cost(msg *Message, now uint64) error {
	snapshot := make(coherence.Snapshot, len(b.endpoints))
	for i, ep := range b.endpoints {
		snapshot[i] = ep.LineIfPresent(msg.Address)
	}

	outcome, err := b.protocol.Process(msg.Request, snapshot)
	if err != nil {
		return fmt.Errorf("cycle %d: %w", now, err)
	}

	msg.State = outcome.State
	msg.ExtraCycles = outcome.ExtraCycles
	msg.Residency = int64(b.hitLatency + outcome.ExtraCycles)
	msg.CostedAt = now

	b.stats.add(outcome)
	b.busy[msg.Address] = msg.Sender

	logrus.WithFields(logrus.Fields{
		"cycle":  now,
		"id":     msg.ID,
		"core":   msg.Sender,
		"type":   msg.Type,
		"addr":   msg.Address,
		"state":  msg.State,
		"extra":  msg.ExtraCycles,
		"issued": msg.IssuedAt,
	}).Debug("bus transaction costed")

	return nil
}

func (b *Bus) deliver(msg *Message, now uint64) error {
	delete(b.busy, msg.Address)
	b.stats.Transactions++

	if b.recorder != nil {
		b.recorder.Record(b.transaction(msg, now))
	}

	if msg.Sender < 0 || msg.Sender >= len(b.endpoints) {
		return fmt.Errorf("reply %s for unknown core %d", msg.ID, msg.Sender)
	}

	return b.endpoints[msg.Sender].ReceiveReply(msg)
}

func (b *Bus) transaction(msg *Message, now uint64) Transaction {
	var addr uint64
	if b.blockAddr != nil {
		addr = b.blockAddr(msg.Address)
	}

	return Transaction{
		ID:          msg.ID,
		Sender:      msg.Sender,
		Address:     addr,
		Type:        msg.Type.String(),
		State:       msg.State.String(),
		ExtraCycles: msg.ExtraCycles,
		IssuedAt:    msg.IssuedAt,
		CostedAt:    msg.CostedAt,
		DeliveredAt: now,
	}
}
