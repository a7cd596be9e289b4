package bus

import (
	"github.com/rs/xid"

	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
)

// Uncosted marks a message the protocol has not processed yet.
const Uncosted int64 = -1

// Message is a bus transaction travelling from a controller through the
// request and reply queues and back.
type Message struct {
	ID string
	coherence.Request

	// Residency is the number of cycles the message still occupies the
	// bus, or Uncosted.
	Residency int64

	// State is the requester's state chosen by the protocol.
	State       cache.State
	ExtraCycles uint64

	IssuedAt uint64
	CostedAt uint64
}

// NewMessage creates an uncosted message issued at cycle now.
func NewMessage(
	sender int,
	addr cache.Address,
	t coherence.RequestType,
	now uint64,
) *Message {
	return &Message{
		ID: xid.New().String(),
		Request: coherence.Request{
			Sender:  sender,
			Address: addr,
			Type:    t,
		},
		Residency: Uncosted,
		IssuedAt:  now,
	}
}

// Costed reports whether the protocol has processed the message.
func (m *Message) Costed() bool {
	return m.Residency != Uncosted
}
