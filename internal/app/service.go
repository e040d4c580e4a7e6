package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// EntityService orchestrates entity lifecycle operations across the store,
// the transition validator and the event publisher.
type EntityService struct {
	repo      domain.EntityRepository
	owners    domain.OwnerRepository
	validator domain.TransitionValidator
	publisher domain.EventPublisher
}

// NewEntityService creates a service with the given adapters.
func NewEntityService(
	repo domain.EntityRepository,
	owners domain.OwnerRepository,
	validator domain.TransitionValidator,
	publisher domain.EventPublisher,
) *EntityService {
	return &EntityService{
		repo:      repo,
		owners:    owners,
		validator: validator,
		publisher: publisher,
	}
}

// CreateOwner registers a parent aggregate (customer, employee, provider).
func (s *EntityService) CreateOwner(ctx context.Context, kind domain.OwnerKind, name string) (domain.Owner, error) {
	fields := map[string]string{}
	if !domain.ValidOwnerKind(kind) {
		fields["kind"] = fmt.Sprintf("unknown owner kind %q", kind)
	}
	if name == "" {
		fields["name"] = "required"
	}
	if len(fields) > 0 {
		return domain.Owner{}, &domain.ValidationError{Fields: fields}
	}

	return s.owners.CreateOwner(ctx, domain.Owner{Kind: kind, Name: name})
}

// GetOwner returns an owner by its unique identifier.
func (s *EntityService) GetOwner(ctx context.Context, id int64) (domain.Owner, error) {
	return s.owners.GetOwner(ctx, id)
}

// Create validates and persists a new entity in its kind's initial status.
func (s *EntityService) Create(ctx context.Context, kind domain.Kind, owner domain.OwnerRef, payload domain.Payload, actor domain.Actor) (domain.Entity, error) {
	e, err := domain.NewEntity(kind, owner, payload, actor)
	if err != nil {
		return domain.Entity{}, err
	}

	created, err := s.repo.Insert(ctx, e)
	if err != nil {
		return domain.Entity{}, err
	}
	return created, nil
}

// Get returns an entity by kind and ID. Archived entities stay readable here.
func (s *EntityService) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	return s.repo.Get(ctx, kind, id)
}

// UpdatePayload partially updates declared payload fields. Status is out of
// reach: lifecycle changes only happen through Apply.
func (s *EntityService) UpdatePayload(ctx context.Context, kind domain.Kind, id int64, fields domain.Payload) (domain.Entity, error) {
	def, ok := domain.KindDef(kind)
	if !ok {
		return domain.Entity{}, &domain.ValidationError{Fields: map[string]string{"kind": fmt.Sprintf("unknown entity kind %q", kind)}}
	}
	if err := domain.ValidatePayload(def, fields, false); err != nil {
		return domain.Entity{}, err
	}

	return s.repo.UpdatePayload(ctx, kind, id, domain.NormalizeDates(def, fields))
}

// Delete hard-deletes an entity. Irreversible; archive is the reversible
// alternative.
func (s *EntityService) Delete(ctx context.Context, kind domain.Kind, id int64) error {
	return s.repo.Remove(ctx, kind, id)
}

// List returns one page of entities matching the filter.
func (s *EntityService) List(ctx context.Context, f domain.ListFilter, p domain.PageRequest) (domain.Page, error) {
	return s.repo.List(ctx, f, p)
}

// History returns the append-only audit trail of an entity, oldest first.
func (s *EntityService) History(ctx context.Context, kind domain.Kind, id int64) ([]domain.AuditRecord, error) {
	return s.repo.History(ctx, kind, id)
}

// Apply performs a lifecycle operation on an entity. The resolution order:
// archive/unarchive are decided against runtime state, declared edges are
// validated by the FSM, and an operation that merely re-targets the current
// status is an idempotent no-op. The store applies the decision and the
// audit record in one transaction; the transition event is published after
// commit as best-effort follow-up.
func (s *EntityService) Apply(ctx context.Context, kind domain.Kind, id int64, op domain.Operation, actor domain.Actor, reason string) (domain.Entity, error) {
	def, ok := domain.KindDef(kind)
	if !ok {
		return domain.Entity{}, &domain.ValidationError{Fields: map[string]string{"kind": fmt.Sprintf("unknown entity kind %q", kind)}}
	}

	var event domain.TransitionEvent

	updated, err := s.repo.Transition(ctx, kind, id, func(current domain.Entity) (domain.Decision, domain.AuditRecord, error) {
		decision, err := s.resolve(ctx, def, current, op, actor, reason)
		if err != nil {
			return domain.Decision{}, domain.AuditRecord{}, err
		}

		audit := domain.AuditRecord{
			EntityID: current.ID,
			Op:       op,
			Actor:    actor,
			From:     current.Status,
			To:       decision.Next,
			Reason:   reason,
			Noop:     decision.Noop,
		}
		event = domain.TransitionEvent{
			Kind:     kind,
			EntityID: current.ID,
			Op:       op,
			From:     current.Status,
			To:       decision.Next,
			Actor:    actor,
			Noop:     decision.Noop,
		}
		return decision, audit, nil
	})
	if err != nil {
		return domain.Entity{}, err
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		// Follow-up work must not undo the committed transition.
		slog.WarnContext(ctx, "publishing transition event failed",
			"kind", kind, "entity_id", id, "operation", op, "error", err)
	}

	return updated, nil
}

func (s *EntityService) resolve(ctx context.Context, def domain.Definition, current domain.Entity, op domain.Operation, actor domain.Actor, reason string) (domain.Decision, error) {
	switch op {
	case domain.OpArchive:
		return domain.DecideArchive(def, current)
	case domain.OpUnarchive:
		return domain.DecideUnarchive(def, current)
	}

	next, err := s.validator.Apply(ctx, def.Kind, current.Status, op)
	if err != nil {
		var trErr *domain.InvalidTransitionError
		if errors.As(err, &trErr) && domain.TargetsCurrent(def, op, current.Status) {
			return domain.Decision{Next: current.Status, Noop: true}, nil
		}
		return domain.Decision{}, err
	}

	return domain.Decision{
		Next:    next,
		Effects: domain.TransitionEffects(op, actor, reason, time.Now().UTC()),
	}, nil
}

// ExpireDue runs one pass of the time-based transition sweep: for every
// kind with an expiry rule, find entities whose relevant date has passed
// and apply the rule's operation as the system actor. Races with
// user-initiated transitions are resolved by the store's transaction; a
// loser that observes an already-moved entity is skipped, not an error.
func (s *EntityService) ExpireDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	swept := 0

	for kind, def := range domain.Kinds {
		if def.Expiry == nil {
			continue
		}

		ids, err := s.repo.ListDue(ctx, kind, *def.Expiry, now, batchSize)
		if err != nil {
			return swept, fmt.Errorf("listing due %s: %w", kind, err)
		}

		for _, id := range ids {
			_, err := s.Apply(ctx, kind, id, def.Expiry.Op, domain.SystemActor, "")
			if err != nil {
				var trErr *domain.InvalidTransitionError
				if errors.As(err, &trErr) {
					continue
				}
				return swept, fmt.Errorf("sweeping %s %d: %w", kind, id, err)
			}
			swept++
		}
	}

	return swept, nil
}
