package intake

import (
	"context"
	"sync"
)

// QueueGateway is an in-process gateway backed by a buffer. It serves tests
// and installations where the mail bridge feeds the engine directly.
type QueueGateway struct {
	mu      sync.Mutex
	pending []Message
	nextErr error
}

// NewQueueGateway creates an empty queue gateway.
func NewQueueGateway() *QueueGateway {
	return &QueueGateway{}
}

// Push enqueues messages for the next poll.
func (g *QueueGateway) Push(msgs ...Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, msgs...)
}

// FailNext makes the next Poll fail with err (wrapped as an IntakeError),
// then clears the fault.
func (g *QueueGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextErr = err
}

// Poll drains the buffer.
func (g *QueueGateway) Poll(ctx context.Context) ([]Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextErr != nil {
		err := g.nextErr
		g.nextErr = nil
		return nil, &IntakeError{Err: err}
	}
	msgs := g.pending
	g.pending = nil
	return msgs, nil
}
