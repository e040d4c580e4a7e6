package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/commerceiq/internal/adapter/otel"
	"github.com/neomorfeo/commerceiq/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			if got := attr.Value.Emit(); got != want {
				t.Errorf("attribute %s = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %s missing from span %s", key, span.Name)
}

func assertIntAttribute(t *testing.T, span tracetest.SpanStub, key string, want int64) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			if attr.Value.Type() == attribute.INT64 && attr.Value.AsInt64() == want {
				return
			}
			t.Errorf("attribute %s = %v, want %d", key, attr.Value.Emit(), want)
			return
		}
	}
	t.Errorf("attribute %s missing from span %s", key, span.Name)
}

// --- Mock repository ---

type mockRepo struct {
	entities map[int64]domain.Entity
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{entities: make(map[int64]domain.Entity)}
}

func (m *mockRepo) Insert(_ context.Context, e domain.Entity) (domain.Entity, error) {
	m.nextID++
	e.ID = m.nextID
	m.entities[e.ID] = e
	return e, nil
}

func (m *mockRepo) Get(_ context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	e, ok := m.entities[id]
	if !ok || e.Kind != kind {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	return e, nil
}

func (m *mockRepo) UpdatePayload(_ context.Context, kind domain.Kind, id int64, fields domain.Payload) (domain.Entity, error) {
	e, ok := m.entities[id]
	if !ok || e.Kind != kind {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	e.Payload = e.Payload.Merge(fields)
	m.entities[id] = e
	return e, nil
}

func (m *mockRepo) Remove(_ context.Context, kind domain.Kind, id int64) error {
	if _, ok := m.entities[id]; !ok {
		return domain.ErrEntityNotFound
	}
	delete(m.entities, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ domain.ListFilter, _ domain.PageRequest) (domain.Page, error) {
	var items []domain.Entity
	for _, e := range m.entities {
		items = append(items, e)
	}
	return domain.Page{Items: items}, nil
}

func (m *mockRepo) Transition(_ context.Context, kind domain.Kind, id int64, decide domain.TransitionFunc) (domain.Entity, error) {
	e, ok := m.entities[id]
	if !ok || e.Kind != kind {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	decision, _, err := decide(e)
	if err != nil {
		return domain.Entity{}, err
	}
	e.Status = decision.Next
	m.entities[id] = e
	return e, nil
}

func (m *mockRepo) History(_ context.Context, _ domain.Kind, _ int64) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (m *mockRepo) ListDue(_ context.Context, _ domain.Kind, _ domain.ExpiryRule, _ time.Time, _ int) ([]int64, error) {
	return nil, nil
}

// --- Tests ---

func TestTracingRepository_Insert_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingRepository(newMockRepo())

	_, err := repo.Insert(context.Background(), domain.Entity{
		Kind:    domain.KindNote,
		Owner:   domain.OwnerRef{Kind: domain.OwnerCustomer, ID: 3},
		Payload: domain.Payload{"body": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "EntityRepository.Insert" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "EntityRepository.Insert")
	}
	assertAttribute(t, spans[0], "entity.kind", "notes")
	assertIntAttribute(t, spans[0], "entity.owner_id", 3)
}

func TestTracingRepository_Get_RecordsErrorStatus(t *testing.T) {
	exporter := setupTestTracer(t)
	repo := adapter.NewTracingRepository(newMockRepo())

	_, err := repo.Get(context.Background(), domain.KindNote, 404)
	if err == nil {
		t.Fatal("expected error for missing entity")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status code = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestTracingRepository_Transition_RecordsResultStatus(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	created, _ := inner.Insert(context.Background(), domain.Entity{
		Kind:   domain.KindReview,
		Status: domain.StatusPending,
	})

	_, err := repo.Transition(context.Background(), domain.KindReview, created.ID,
		func(current domain.Entity) (domain.Decision, domain.AuditRecord, error) {
			return domain.Decision{Next: domain.StatusApproved}, domain.AuditRecord{}, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	assertAttribute(t, spans[0], "entity.status", "approved")
}

func TestTracingPublisher_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	pub := adapter.NewTracingPublisher(&noopPublisher{})

	err := pub.Publish(context.Background(), domain.TransitionEvent{
		Kind:     domain.KindContract,
		EntityID: 9,
		Op:       domain.OpApprove,
		From:     domain.StatusPending,
		To:       domain.StatusApproved,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "EventPublisher.Publish" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "EventPublisher.Publish")
	}
	assertAttribute(t, spans[0], "transition.operation", "approve")
	assertIntAttribute(t, spans[0], "entity.id", 9)
}

type noopPublisher struct{}

func (p *noopPublisher) Publish(_ context.Context, _ domain.TransitionEvent) error {
	return nil
}
