package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neomorfeo/commerceiq/internal/adapter/sqlite"
	"github.com/neomorfeo/commerceiq/internal/domain"
)

// newTestRepo creates an in-memory SQLite repository for testing.
func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustOwner(t *testing.T, repo *sqlite.Repository, kind domain.OwnerKind, name string) domain.Owner {
	t.Helper()
	o, err := repo.CreateOwner(context.Background(), domain.Owner{Kind: kind, Name: name})
	if err != nil {
		t.Fatalf("CreateOwner failed: %v", err)
	}
	return o
}

func mustInsert(t *testing.T, repo *sqlite.Repository, kind domain.Kind, owner domain.OwnerRef, payload domain.Payload) domain.Entity {
	t.Helper()
	e, err := domain.NewEntity(kind, owner, payload, domain.Actor{OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("NewEntity failed: %v", err)
	}
	created, err := repo.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return created
}

// applyOp runs a lifecycle operation through the repository the way the
// service does, using the domain decision helpers directly.
func applyOp(t *testing.T, repo *sqlite.Repository, kind domain.Kind, id int64, op domain.Operation, actor domain.Actor, reason string) (domain.Entity, error) {
	t.Helper()
	def, ok := domain.KindDef(kind)
	if !ok {
		t.Fatalf("unknown kind %q", kind)
	}

	return repo.Transition(context.Background(), kind, id, func(current domain.Entity) (domain.Decision, domain.AuditRecord, error) {
		var decision domain.Decision
		var err error

		switch op {
		case domain.OpArchive:
			decision, err = domain.DecideArchive(def, current)
		case domain.OpUnarchive:
			decision, err = domain.DecideUnarchive(def, current)
		default:
			if dst, ok := def.Edge(current.Status, op); ok {
				decision = domain.Decision{Next: dst, Effects: domain.TransitionEffects(op, actor, reason, time.Now().UTC())}
			} else if domain.TargetsCurrent(def, op, current.Status) {
				decision = domain.Decision{Next: current.Status, Noop: true}
			} else {
				err = &domain.InvalidTransitionError{Kind: kind, Op: op, Current: current.Status}
			}
		}
		if err != nil {
			return domain.Decision{}, domain.AuditRecord{}, err
		}

		return decision, domain.AuditRecord{
			EntityID: current.ID,
			Op:       op,
			Actor:    actor,
			From:     current.Status,
			To:       decision.Next,
			Reason:   reason,
			Noop:     decision.Noop,
		}, nil
	})
}

func customerRef(t *testing.T, repo *sqlite.Repository) domain.OwnerRef {
	t.Helper()
	o := mustOwner(t, repo, domain.OwnerCustomer, "Acme Corp")
	return domain.OwnerRef{Kind: domain.OwnerCustomer, ID: o.ID}
}

// --- Owners ---

func TestOwner_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	o := mustOwner(t, repo, domain.OwnerEmployee, "Jordan Reyes")
	got, err := repo.GetOwner(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if got.Name != "Jordan Reyes" {
		t.Errorf("Name = %q, want %q", got.Name, "Jordan Reyes")
	}
	if got.Kind != domain.OwnerEmployee {
		t.Errorf("Kind = %q, want %q", got.Kind, domain.OwnerEmployee)
	}
}

func TestOwner_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetOwner(context.Background(), 404)
	if !errors.Is(err, domain.ErrOwnerNotFound) {
		t.Errorf("expected ErrOwnerNotFound, got %v", err)
	}
}

func TestOwnerExists_KindMustMatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	o := mustOwner(t, repo, domain.OwnerCustomer, "Acme")

	exists, err := repo.OwnerExists(ctx, domain.OwnerRef{Kind: domain.OwnerCustomer, ID: o.ID})
	if err != nil || !exists {
		t.Errorf("exists = %v, err = %v; want true", exists, err)
	}

	exists, err = repo.OwnerExists(ctx, domain.OwnerRef{Kind: domain.OwnerProvider, ID: o.ID})
	if err != nil || exists {
		t.Errorf("exists = %v, err = %v; want false for mismatched kind", exists, err)
	}
}

// --- Entity store ---

func TestInsert_And_Get(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	note := mustInsert(t, repo, domain.KindNote, ref, domain.Payload{"subject": "billing", "body": "call back"})
	if note.ID == 0 {
		t.Fatal("ID should be assigned")
	}

	got, err := repo.Get(context.Background(), domain.KindNote, note.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusActive)
	}
	if got.Owner != ref {
		t.Errorf("Owner = %+v, want %+v", got.Owner, ref)
	}
	if got.Payload["body"] != "call back" {
		t.Errorf("body = %v", got.Payload["body"])
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), domain.KindNote, 999)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}

// The same numeric ID under a different kind is a different namespace.
func TestGet_KindScoped(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	note := mustInsert(t, repo, domain.KindNote, ref, domain.Payload{"body": "x"})

	_, err := repo.Get(context.Background(), domain.KindReview, note.ID)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound for kind mismatch, got %v", err)
	}
}

func TestInsert_MissingOwner(t *testing.T) {
	repo := newTestRepo(t)

	e, err := domain.NewEntity(domain.KindNote,
		domain.OwnerRef{Kind: domain.OwnerCustomer, ID: 12345},
		domain.Payload{"body": "x"}, domain.Actor{})
	if err != nil {
		t.Fatalf("NewEntity failed: %v", err)
	}

	_, err = repo.Insert(context.Background(), e)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.Fields["owner"]; !ok {
		t.Errorf("error should name the owner field: %v", vErr.Fields)
	}
}

func TestInsert_DuplicateInvoiceNumber(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	mustInsert(t, repo, domain.KindInvoice, ref, domain.Payload{
		"number": "INV-2026-001", "amount": 10.0, "due_at": "2026-09-01T00:00:00Z",
	})

	e, err := domain.NewEntity(domain.KindInvoice, ref, domain.Payload{
		"number": "INV-2026-001", "amount": 20.0, "due_at": "2026-10-01T00:00:00Z",
	}, domain.Actor{})
	if err != nil {
		t.Fatalf("NewEntity failed: %v", err)
	}

	_, err = repo.Insert(context.Background(), e)
	var cErr *domain.ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if cErr.Field != "number" || cErr.Value != "INV-2026-001" {
		t.Errorf("conflict = %+v", cErr)
	}
}

func TestUpdatePayload_MergesFields(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	note := mustInsert(t, repo, domain.KindNote, ref, domain.Payload{"subject": "billing", "body": "call back"})

	updated, err := repo.UpdatePayload(context.Background(), domain.KindNote, note.ID, domain.Payload{"body": "resolved"})
	if err != nil {
		t.Fatalf("UpdatePayload failed: %v", err)
	}
	if updated.Payload["body"] != "resolved" {
		t.Errorf("body = %v, want resolved", updated.Payload["body"])
	}
	if updated.Payload["subject"] != "billing" {
		t.Errorf("subject = %v, should be untouched", updated.Payload["subject"])
	}
	if updated.Status != domain.StatusActive {
		t.Errorf("payload update must not move status, got %q", updated.Status)
	}
}

func TestRemove(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	ctx := context.Background()

	note := mustInsert(t, repo, domain.KindNote, ref, domain.Payload{"body": "x"})

	if err := repo.Remove(ctx, domain.KindNote, note.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := repo.Get(ctx, domain.KindNote, note.ID); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound after remove, got %v", err)
	}
	if err := repo.Remove(ctx, domain.KindNote, note.ID); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("second remove should be ErrEntityNotFound, got %v", err)
	}
}

// --- Transitions ---

func TestTransition_AppliesDecisionAndAudit(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	review := mustInsert(t, repo, domain.KindReview, ref, domain.Payload{"rating": 2.0})
	actor := domain.Actor{OwnerID: ref.ID}

	rejected, err := applyOp(t, repo, domain.KindReview, review.ID, domain.OpReject, actor, "spam")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != domain.StatusRejected {
		t.Errorf("Status = %q, want %q", rejected.Status, domain.StatusRejected)
	}
	if _, ok := rejected.Payload["rejected_at"]; !ok {
		t.Error("rejected_at side effect missing")
	}

	history, err := repo.History(context.Background(), domain.KindReview, review.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d records, want 1", len(history))
	}
	rec := history[0]
	if rec.From != domain.StatusPending || rec.To != domain.StatusRejected {
		t.Errorf("audit = %q → %q", rec.From, rec.To)
	}
	if rec.Reason != "spam" {
		t.Errorf("reason = %q", rec.Reason)
	}
	if rec.Actor.OwnerID != ref.ID {
		t.Errorf("actor = %d, want %d", rec.Actor.OwnerID, ref.ID)
	}
}

// A failed decision leaves the entity untouched and appends nothing.
func TestTransition_NoPartialWrites(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	ctx := context.Background()

	review := mustInsert(t, repo, domain.KindReview, ref, domain.Payload{"rating": 2.0})

	_, err := applyOp(t, repo, domain.KindReview, review.ID, domain.OpSubmit, domain.Actor{}, "")
	var trErr *domain.InvalidTransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	got, err := repo.Get(ctx, domain.KindReview, review.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want unchanged %q", got.Status, domain.StatusPending)
	}

	history, err := repo.History(ctx, domain.KindReview, review.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("failed transition must not append history, got %d records", len(history))
	}
}

// Audit monotonicity: timestamps never decrease and the newest record's To
// equals the entity's current status.
func TestTransition_AuditMonotonicity(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	ctx := context.Background()

	contract := mustInsert(t, repo, domain.KindContract, ref, domain.Payload{"title": "Hosting"})
	actor := domain.Actor{OwnerID: ref.ID}

	ops := []domain.Operation{domain.OpSubmit, domain.OpApprove, domain.OpRenew, domain.OpSuspend, domain.OpActivate}
	for _, op := range ops {
		if _, err := applyOp(t, repo, domain.KindContract, contract.ID, op, actor, ""); err != nil {
			t.Fatalf("%s failed: %v", op, err)
		}
	}

	history, err := repo.History(ctx, domain.KindContract, contract.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != len(ops) {
		t.Fatalf("history has %d records, want %d", len(history), len(ops))
	}

	for i := 1; i < len(history); i++ {
		if history[i].At.Before(history[i-1].At) {
			t.Errorf("history timestamps decreased at %d", i)
		}
		if history[i].From != history[i-1].To {
			t.Errorf("history chain broken at %d: %q != %q", i, history[i].From, history[i-1].To)
		}
	}

	current, err := repo.Get(ctx, domain.KindContract, contract.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if last := history[len(history)-1]; last.To != current.Status {
		t.Errorf("final audit To = %q, current status = %q", last.To, current.Status)
	}
}

func TestTransition_ArchiveRestoresPrior(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	actor := domain.Actor{OwnerID: ref.ID}

	contract := mustInsert(t, repo, domain.KindContract, ref, domain.Payload{"title": "Hosting"})
	for _, op := range []domain.Operation{domain.OpSubmit, domain.OpApprove, domain.OpSuspend} {
		if _, err := applyOp(t, repo, domain.KindContract, contract.ID, op, actor, "payment hold"); err != nil {
			t.Fatalf("%s failed: %v", op, err)
		}
	}

	archived, err := applyOp(t, repo, domain.KindContract, contract.ID, domain.OpArchive, actor, "")
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if archived.PriorStatus == nil || *archived.PriorStatus != domain.StatusSuspended {
		t.Fatalf("PriorStatus = %v, want suspended", archived.PriorStatus)
	}

	restored, err := applyOp(t, repo, domain.KindContract, contract.ID, domain.OpUnarchive, actor, "")
	if err != nil {
		t.Fatalf("unarchive failed: %v", err)
	}
	if restored.Status != domain.StatusSuspended {
		t.Errorf("Status = %q, want restored %q", restored.Status, domain.StatusSuspended)
	}
	if restored.PriorStatus != nil {
		t.Errorf("PriorStatus should be cleared, got %v", *restored.PriorStatus)
	}
}

// Concurrent writers racing for the same edge must serialize inside
// Transition: exactly one approval changes state, the rest observe the
// winner and resolve as idempotent no-ops, and none of them surface a
// lock error.
func TestTransition_ConcurrentApprovalsSerialize(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	actor := domain.Actor{OwnerID: ref.ID}

	review := mustInsert(t, repo, domain.KindReview, ref, domain.Payload{"rating": 5.0})

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := applyOp(t, repo, domain.KindReview, review.ID, domain.OpApprove, actor, "")
			errs <- err
		}()
	}
	for i := 0; i < writers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent approve failed: %v", err)
		}
	}

	got, err := repo.Get(context.Background(), domain.KindReview, review.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusApproved)
	}

	history, err := repo.History(context.Background(), domain.KindReview, review.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	changed, noops := 0, 0
	for _, rec := range history {
		if rec.Noop {
			noops++
		} else {
			changed++
		}
	}
	if changed != 1 {
		t.Errorf("state-changing records = %d, want exactly 1", changed)
	}
	if noops != writers-1 {
		t.Errorf("noop records = %d, want %d", noops, writers-1)
	}
}

func TestHistory_AbsentEntity(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.History(context.Background(), domain.KindNote, 999)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}

// --- Sweep support ---

func TestListDue(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)
	ctx := context.Background()

	past := mustInsert(t, repo, domain.KindInvoice, ref, domain.Payload{
		"number": "INV-001", "amount": 10.0, "due_at": "2026-01-15T00:00:00Z",
	})
	mustInsert(t, repo, domain.KindInvoice, ref, domain.Payload{
		"number": "INV-002", "amount": 10.0, "due_at": "2027-01-15T00:00:00Z",
	})

	def, _ := domain.KindDef(domain.KindInvoice)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	ids, err := repo.ListDue(ctx, domain.KindInvoice, *def.Expiry, now, 10)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != past.ID {
		t.Errorf("ids = %v, want [%d]", ids, past.ID)
	}

	// Already-moved entities drop out of the due set.
	if _, err := applyOp(t, repo, domain.KindInvoice, past.ID, domain.OpMarkOverdue, domain.SystemActor, ""); err != nil {
		t.Fatalf("mark_overdue failed: %v", err)
	}
	ids, err = repo.ListDue(ctx, domain.KindInvoice, *def.Expiry, now, 10)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

// An invoice due at 23:30+10:00 is due at 13:30Z. The raw offset string
// would compare lexicographically as 23:30 and hide the invoice from a
// 20:00Z sweep; normalization at creation keeps the comparison honest.
func TestListDue_OffsetDatesCompareByInstant(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	due := mustInsert(t, repo, domain.KindInvoice, ref, domain.Payload{
		"number": "INV-001", "amount": 10.0, "due_at": "2026-01-01T23:30:00+10:00",
	})
	if got := due.Payload["due_at"]; got != "2026-01-01T13:30:00Z" {
		t.Fatalf("stored due_at = %v, want %q", got, "2026-01-01T13:30:00Z")
	}

	def, _ := domain.KindDef(domain.KindInvoice)
	now := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	ids, err := repo.ListDue(context.Background(), domain.KindInvoice, *def.Expiry, now, 10)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != due.ID {
		t.Errorf("ids = %v, want [%d]", ids, due.ID)
	}
}

func TestListDue_RespectsLimit(t *testing.T) {
	repo := newTestRepo(t)
	ref := customerRef(t, repo)

	for i := 0; i < 5; i++ {
		mustInsert(t, repo, domain.KindInvoice, ref, domain.Payload{
			"number": fmt.Sprintf("INV-%03d", i), "amount": 1.0, "due_at": "2026-01-01T00:00:00Z",
		})
	}

	def, _ := domain.KindDef(domain.KindInvoice)
	ids, err := repo.ListDue(context.Background(), domain.KindInvoice, *def.Expiry, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 3)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("len(ids) = %d, want 3", len(ids))
	}
}
