package coherence

import (
	"fmt"
	"strings"

	"github.com/sarchlab/snoopsim/timing/cache"
)

// ViolationError reports a bus snapshot that the protocol can never
// produce. It aborts the simulation.
type ViolationError struct {
	Protocol string
	Request  Request
	States   []cache.State
	Reason   string
}

func (e *ViolationError) Error() string {
	states := make([]string, len(e.States))
	for i, s := range e.States {
		states[i] = s.Short()
	}

	return fmt.Sprintf("%s protocol violation: %s (core %d %s %s, states [%s])",
		e.Protocol, e.Reason,
		e.Request.Sender, e.Request.Type, e.Request.Address,
		strings.Join(states, " "))
}

func violation(
	protocol string,
	req Request,
	snapshot Snapshot,
	reason string,
) *ViolationError {
	return &ViolationError{
		Protocol: protocol,
		Request:  req,
		States:   snapshot.States(),
		Reason:   reason,
	}
}
