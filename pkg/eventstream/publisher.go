package eventstream

import "context"

// Publisher publishes tick events to an event stream backend.
type Publisher interface {
	PublishTick(ctx context.Context, event *TickCommittedEvent) error
	Close() error
}
