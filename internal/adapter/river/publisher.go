package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// TransitionJobArgs carries a committed state change into the job queue.
// River serializes this as JSON into its job table; the payload is a
// self-contained snapshot of the transition, so the worker never needs to
// re-read the entity.
type TransitionJobArgs struct {
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Operation  string `json:"operation"`
	From       string `json:"from"`
	To         string `json:"to"`
	ActorID    int64  `json:"actor_id"`
	Noop       bool   `json:"noop"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (TransitionJobArgs) Kind() string { return "entity.transitioned" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues the transition event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, ev domain.TransitionEvent) error {
	_, err := p.client.Insert(ctx, TransitionJobArgs{
		EntityKind: string(ev.Kind),
		EntityID:   ev.EntityID,
		Operation:  string(ev.Op),
		From:       string(ev.From),
		To:         string(ev.To),
		ActorID:    ev.Actor.OwnerID,
		Noop:       ev.Noop,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing transition job: %w", err)
	}
	return nil
}
