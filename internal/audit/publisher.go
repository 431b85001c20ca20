package audit

import (
	"context"
	"time"
)

// Publisher hands events to the background worker. Emitting never blocks the
// request path: if the inbox is full the event is dropped and the caller's
// operation proceeds.
type Publisher struct {
	inbox chan Event
}

func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{inbox: make(chan Event, buffer)}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	case <-ctx.Done():
	default:
	}
}

// Inbox is consumed by the worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }
