// Package intake defines the ticket intake boundary: the external channel
// that delivers new patient messages to the engine. Only the poll contract
// lives here; transport mechanics belong to the concrete gateways.
package intake

import (
	"context"
	"fmt"
	"time"
)

// Message is one inbound patient message. Sender identifies the patient
// (resolved or created by the engine), Body is the free-text request, and
// ReceivedAt is the receipt time assigned by the channel.
type Message struct {
	Sender     string    `json:"sender"`
	Name       string    `json:"name,omitempty"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Gateway is the intake channel. Poll returns the messages that arrived
// since the previous poll; it is safe to call at any cadence and keeps no
// state the caller depends on between polls.
type Gateway interface {
	Poll(ctx context.Context) ([]Message, error)
}

// IntakeError wraps a channel, auth, or transport failure during a poll.
// A failed poll is recoverable: the caller reports it and keeps its normal
// polling cadence.
type IntakeError struct {
	Err error
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("intake: %v", e.Err)
}

func (e *IntakeError) Unwrap() error { return e.Err }
