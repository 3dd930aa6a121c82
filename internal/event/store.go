package event

import "context"

// Store persists and retrieves events. Appends that belong to an operation
// happen inside that operation's transaction via store.Tx; this interface is
// the read side and the standalone append used by tooling.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for an aggregate, ordered by version.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns events filtered by type.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
