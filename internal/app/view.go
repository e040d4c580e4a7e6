package app

import (
	"context"
	"time"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// EntityView is the transport-safe read model of an entity. Raw actor IDs
// are resolved to display names; the stored prior status stays internal.
// The mapping is one-way: updates always go back through the service with
// raw field maps, never through a view.
type EntityView struct {
	ID              int64
	Kind            domain.Kind
	OwnerKind       domain.OwnerKind
	OwnerID         int64
	Status          domain.Status
	StatusChangedAt time.Time
	StatusChangedBy string
	Payload         domain.Payload
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuditView is the transport-safe projection of one audit record.
type AuditView struct {
	Op     domain.Operation
	Actor  string
	From   domain.Status
	To     domain.Status
	Reason string
	Noop   bool
	At     time.Time
}

// Projector maps store records to read models, resolving actor display
// names through the owner directory.
type Projector struct {
	owners domain.OwnerRepository
}

// NewProjector creates a projector backed by the given owner directory.
func NewProjector(owners domain.OwnerRepository) *Projector {
	return &Projector{owners: owners}
}

// Entity projects one entity to its read model.
func (p *Projector) Entity(ctx context.Context, e domain.Entity) EntityView {
	return EntityView{
		ID:              e.ID,
		Kind:            e.Kind,
		OwnerKind:       e.Owner.Kind,
		OwnerID:         e.Owner.ID,
		Status:          e.Status,
		StatusChangedAt: e.StatusChangedAt,
		StatusChangedBy: p.actorName(ctx, e.StatusChangedBy),
		Payload:         e.Payload.Clone(),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// Entities projects a slice, preserving order.
func (p *Projector) Entities(ctx context.Context, es []domain.Entity) []EntityView {
	out := make([]EntityView, len(es))
	for i, e := range es {
		out[i] = p.Entity(ctx, e)
	}
	return out
}

// History projects an audit trail.
func (p *Projector) History(ctx context.Context, records []domain.AuditRecord) []AuditView {
	out := make([]AuditView, len(records))
	for i, rec := range records {
		out[i] = AuditView{
			Op:     rec.Op,
			Actor:  p.actorName(ctx, rec.Actor),
			From:   rec.From,
			To:     rec.To,
			Reason: rec.Reason,
			Noop:   rec.Noop,
			At:     rec.At,
		}
	}
	return out
}

func (p *Projector) actorName(ctx context.Context, a domain.Actor) string {
	if a.IsSystem() {
		return "system"
	}

	owner, err := p.owners.GetOwner(ctx, a.OwnerID)
	if err != nil {
		// Display names are cosmetic; a missing or unreadable owner must
		// not fail the projection.
		return "unknown"
	}
	return owner.Name
}
