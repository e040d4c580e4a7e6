package domain

import (
	"context"
	"time"
)

// TransitionFunc resolves an operation against the entity as loaded inside
// the store's transaction. Returning an error aborts the transaction and
// leaves the entity untouched.
type TransitionFunc func(current Entity) (Decision, AuditRecord, error)

// EntityRepository defines the persistence contract for entities. The
// store is the sole concurrency-control boundary: Transition wraps the
// read-validate-write cycle and the audit append in a single transaction,
// so concurrent operations on one entity cannot both win a race for the
// same edge.
type EntityRepository interface {
	Insert(ctx context.Context, e Entity) (Entity, error)
	Get(ctx context.Context, kind Kind, id int64) (Entity, error)
	// UpdatePayload partially updates declared payload fields. It never
	// touches status; lifecycle changes go through Transition.
	UpdatePayload(ctx context.Context, kind Kind, id int64, fields Payload) (Entity, error)
	// Remove hard-deletes the entity and its history. Distinct from
	// archival: archival is reversible, removal is not.
	Remove(ctx context.Context, kind Kind, id int64) error

	List(ctx context.Context, f ListFilter, p PageRequest) (Page, error)

	Transition(ctx context.Context, kind Kind, id int64, decide TransitionFunc) (Entity, error)
	History(ctx context.Context, kind Kind, id int64) ([]AuditRecord, error)

	// ListDue returns IDs of entities eligible for the kind's time-based
	// transition: status in rule.From and rule.DateField before now.
	ListDue(ctx context.Context, kind Kind, rule ExpiryRule, now time.Time, limit int) ([]int64, error)
}

// StatsRepository computes aggregates over a filtered view without
// materializing entity lists. Results are read-committed, not linearizable
// with concurrent writes; that is acceptable for reporting.
type StatsRepository interface {
	Count(ctx context.Context, f ListFilter) (int64, error)
	// Sum and Average aggregate a numeric payload field. Average over an
	// empty set is 0.0 by convention, never NaN or an error.
	Sum(ctx context.Context, field string, f ListFilter) (float64, error)
	Average(ctx context.Context, field string, f ListFilter) (float64, error)
	Trend(ctx context.Context, spec TrendSpec, f ListFilter) ([]TrendPoint, error)
}

// OwnerRepository stores the parent aggregates entities attach to and
// resolves actor display names for the DTO projection.
type OwnerRepository interface {
	CreateOwner(ctx context.Context, o Owner) (Owner, error)
	GetOwner(ctx context.Context, id int64) (Owner, error)
	// OwnerExists backs foreign-key validation on entity insert.
	OwnerExists(ctx context.Context, ref OwnerRef) (bool, error)
}

// TransitionValidator checks a lifecycle operation against a kind's
// transition table and returns the destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, kind Kind, current Status, op Operation) (Status, error)
}

// TransitionEvent is published after every successful state change.
// Publication is best-effort follow-up work; its failure never rolls back
// the transition itself.
type TransitionEvent struct {
	Kind     Kind
	EntityID int64
	Op       Operation
	From     Status
	To       Status
	Actor    Actor
	Noop     bool
}

// EventPublisher defines the contract for emitting transition events.
type EventPublisher interface {
	Publish(ctx context.Context, ev TransitionEvent) error
}
