package nop

import (
	"context"

	"github.com/papercomputeco/chronicle/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTick validates input and otherwise does nothing.
func (p *Publisher) PublishTick(_ context.Context, event *eventstream.TickCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilTickEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
