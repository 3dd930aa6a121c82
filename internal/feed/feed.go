// Package feed publishes committed domain events to downstream consumers.
// Publishing happens after the owning transaction commits; a feed failure is
// logged by the caller and never unwinds the already-committed operation.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/askelund/auctiond/internal/event"
)

// Publisher pushes committed events somewhere else.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Nop discards events. Used when the feed is disabled.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, event.Event) error { return nil }

// NATS publishes events as JSON to one subject per event type,
// e.g. auction.events.bid.placed.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server and returns a publisher with the given
// subject prefix.
func Connect(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("auctiond-feed"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix}, nil
}

// Publish marshals the event and publishes it to its type subject.
func (p *NATS) Publish(_ context.Context, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if err := p.conn.Publish(SubjectFor(p.prefix, e.Type), data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATS) Close() error {
	return p.conn.Drain()
}

// SubjectFor returns the subject an event type is published on.
func SubjectFor(prefix string, t event.Type) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}
