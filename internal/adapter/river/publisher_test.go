package river_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	"github.com/neomorfeo/commerceiq/internal/adapter/fsm"
	riveradapter "github.com/neomorfeo/commerceiq/internal/adapter/river"
	"github.com/neomorfeo/commerceiq/internal/adapter/sqlite"
	"github.com/neomorfeo/commerceiq/internal/app"
	"github.com/neomorfeo/commerceiq/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

// setupStack wires the full production shape on one database: repository,
// River client, publisher, service, and the bound sweep worker.
func setupStack(t *testing.T, db *sql.DB) (*riveradapter.Client, *app.EntityService, *sqlite.Repository) {
	t.Helper()

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		t.Fatalf("repository setup: %v", err)
	}

	sweep := riveradapter.NewSweepWorker()
	client, err := riveradapter.Setup(context.Background(), db, sweep, time.Hour, 50)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	svc := app.NewEntityService(repo, repo, fsm.New(), riveradapter.NewPublisher(client))
	sweep.Bind(svc)

	return client, svc, repo
}

func startClient(t *testing.T, client *riveradapter.Client) {
	t.Helper()

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
}

// waitForJob reads completion events until one with the given kind arrives.
// The periodic sweep enqueued at start may complete first; skip past it.
func waitForJob(t *testing.T, events <-chan *goriver.Event, kind string) *goriver.Event {
	t.Helper()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Job.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s job completion", kind)
		}
	}
}

func TestPublisher_Publish_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	client, _, _ := setupStack(t, db)
	ctx := context.Background()

	// Subscribe before starting so no completion event is missed.
	events, cancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer cancel()
	startClient(t, client)

	pub := riveradapter.NewPublisher(client)
	err := pub.Publish(ctx, domain.TransitionEvent{
		Kind:     domain.KindContract,
		EntityID: 7,
		Op:       domain.OpApprove,
		From:     domain.StatusPending,
		To:       domain.StatusApproved,
		Actor:    domain.Actor{OwnerID: 3},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	event := waitForJob(t, events, "entity.transitioned")
	if event.Job.Kind != "entity.transitioned" {
		t.Errorf("job kind = %q, want %q", event.Job.Kind, "entity.transitioned")
	}
}

func TestPublisher_Publish_PreservesEventData(t *testing.T) {
	db := setupTestDB(t)
	client, _, _ := setupStack(t, db)
	ctx := context.Background()

	events, cancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer cancel()
	startClient(t, client)

	pub := riveradapter.NewPublisher(client)
	err := pub.Publish(ctx, domain.TransitionEvent{
		Kind:     domain.KindInvoice,
		EntityID: 42,
		Op:       domain.OpMarkPaid,
		From:     domain.StatusPending,
		To:       domain.StatusPaid,
		Actor:    domain.Actor{OwnerID: 9},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	event := waitForJob(t, events, "entity.transitioned")
	args := string(event.Job.EncodedArgs)
	for _, want := range []string{
		`"entity_kind":"invoices"`,
		`"entity_id":42`,
		`"operation":"mark_paid"`,
		`"to":"paid"`,
		`"actor_id":9`,
	} {
		if !strings.Contains(args, want) {
			t.Errorf("encoded args missing %s, got: %s", want, args)
		}
	}
}

// A manually enqueued sweep job moves a past-due invoice to overdue through
// the bound service.
func TestSweepWorker_ExpiresDueEntities(t *testing.T) {
	db := setupTestDB(t)
	client, svc, _ := setupStack(t, db)
	ctx := context.Background()

	owner, err := svc.CreateOwner(ctx, domain.OwnerCustomer, "Acme")
	if err != nil {
		t.Fatalf("CreateOwner failed: %v", err)
	}
	ref := domain.OwnerRef{Kind: domain.OwnerCustomer, ID: owner.ID}

	invoice, err := svc.Create(ctx, domain.KindInvoice, ref, domain.Payload{
		"number": "INV-OLD", "amount": 80.0, "due_at": "2020-01-01T00:00:00Z",
	}, domain.Actor{OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	events, cancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer cancel()
	startClient(t, client)

	if _, err := client.Insert(ctx, riveradapter.SweepJobArgs{BatchSize: 10}, nil); err != nil {
		t.Fatalf("enqueuing sweep: %v", err)
	}
	waitForJob(t, events, "lifecycle.sweep")

	got, err := svc.Get(ctx, domain.KindInvoice, invoice.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusOverdue {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusOverdue)
	}
}
