package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/commerceiq/internal/adapter/otel"

// TracingRepository wraps a domain.EntityRepository with OpenTelemetry
// tracing. Each method creates a span with semantic attributes and records
// errors.
type TracingRepository struct {
	next   domain.EntityRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.EntityRepository.
var _ domain.EntityRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.EntityRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Insert(ctx context.Context, e domain.Entity) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Insert",
		trace.WithAttributes(
			attribute.String("entity.kind", string(e.Kind)),
			attribute.Int64("entity.owner_id", e.Owner.ID),
		),
	)
	defer span.End()

	created, err := r.next.Insert(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("entity.id", created.ID))
	}
	return created, err
}

func (r *TracingRepository) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Get",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.Int64("entity.id", id),
		),
	)
	defer span.End()

	e, err := r.next.Get(ctx, kind, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return e, err
}

func (r *TracingRepository) UpdatePayload(ctx context.Context, kind domain.Kind, id int64, fields domain.Payload) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.UpdatePayload",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.Int64("entity.id", id),
			attribute.Int("fields.count", len(fields)),
		),
	)
	defer span.End()

	e, err := r.next.UpdatePayload(ctx, kind, id, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return e, err
}

func (r *TracingRepository) Remove(ctx context.Context, kind domain.Kind, id int64) error {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Remove",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.Int64("entity.id", id),
		),
	)
	defer span.End()

	err := r.next.Remove(ctx, kind, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) List(ctx context.Context, f domain.ListFilter, p domain.PageRequest) (domain.Page, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.List",
		trace.WithAttributes(
			attribute.String("entity.kind", string(f.Kind)),
			attribute.String("page.mode", string(p.Mode)),
			attribute.Int("page.per_page", p.PerPage),
		),
	)
	defer span.End()

	page, err := r.next.List(ctx, f, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(page.Items)))
	}
	return page, err
}

func (r *TracingRepository) Transition(ctx context.Context, kind domain.Kind, id int64, decide domain.TransitionFunc) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Transition",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.Int64("entity.id", id),
		),
	)
	defer span.End()

	e, err := r.next.Transition(ctx, kind, id, decide)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("entity.status", string(e.Status)))
	}
	return e, err
}

func (r *TracingRepository) History(ctx context.Context, kind domain.Kind, id int64) ([]domain.AuditRecord, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.History",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.Int64("entity.id", id),
		),
	)
	defer span.End()

	records, err := r.next.History(ctx, kind, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(records)))
	}
	return records, err
}

func (r *TracingRepository) ListDue(ctx context.Context, kind domain.Kind, rule domain.ExpiryRule, now time.Time, limit int) ([]int64, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.ListDue",
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.String("rule.date_field", rule.DateField),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	ids, err := r.next.ListDue(ctx, kind, rule, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(ids)))
	}
	return ids, err
}
