package river

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/commerceiq/internal/app"
)

// TransitionWorker processes transition event jobs from the River queue.
// For now it logs the state change; future versions will dispatch to
// webhooks or notification systems.
type TransitionWorker struct {
	river.WorkerDefaults[TransitionJobArgs]
}

// Work processes a single transition event job.
func (w *TransitionWorker) Work(ctx context.Context, job *river.Job[TransitionJobArgs]) error {
	slog.InfoContext(ctx, "processing transition event",
		"kind", job.Args.EntityKind,
		"entity_id", job.Args.EntityID,
		"operation", job.Args.Operation,
		"from", job.Args.From,
		"to", job.Args.To,
		"actor_id", job.Args.ActorID,
		"noop", job.Args.Noop,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// SweepJobArgs triggers one pass of the time-based transition sweep. It is
// enqueued periodically by River's scheduler, not by application code.
type SweepJobArgs struct {
	BatchSize int `json:"batch_size"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (SweepJobArgs) Kind() string { return "lifecycle.sweep" }

// SweepWorker runs the expiry sweep. It is constructed before the entity
// service exists (the service needs the River client, which needs the
// registered workers) and bound to the service afterwards with Bind.
type SweepWorker struct {
	river.WorkerDefaults[SweepJobArgs]

	svc *app.EntityService
}

// NewSweepWorker creates an unbound sweep worker. Bind must be called before
// the client starts processing jobs.
func NewSweepWorker() *SweepWorker {
	return &SweepWorker{}
}

// Bind attaches the entity service the sweep runs against.
func (w *SweepWorker) Bind(svc *app.EntityService) {
	w.svc = svc
}

// Work runs one sweep pass over every kind with an expiry rule.
func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepJobArgs]) error {
	if w.svc == nil {
		return fmt.Errorf("sweep worker not bound to a service")
	}

	swept, err := w.svc.ExpireDue(ctx, time.Now().UTC(), job.Args.BatchSize)
	if err != nil {
		return fmt.Errorf("running expiry sweep: %w", err)
	}

	slog.InfoContext(ctx, "expiry sweep complete",
		"swept", swept,
		"batch_size", job.Args.BatchSize,
		"job_id", job.ID,
	)
	return nil
}
