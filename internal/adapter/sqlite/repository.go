package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/commerceiq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time checks: Repository implements the domain persistence ports.
var (
	_ domain.EntityRepository = (*Repository)(nil)
	_ domain.StatsRepository  = (*Repository)(nil)
	_ domain.OwnerRepository  = (*Repository)(nil)
)

// Repository implements the entity store, query layer, aggregation layer
// and owner directory on a single SQLite database.
type Repository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*Repository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Transition serializes concurrent writers here. A single connection
	// plus a busy timeout queues them; over a multi-connection pool the
	// losers would fail with SQLITE_BUSY instead of observing the winner.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns
// a ready repository. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Repository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (r *Repository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

const entityColumns = `id, kind, owner_kind, owner_id, status, prior_status,
	status_changed_at, status_changed_by, payload, created_at, updated_at`

// --- Owners ---

func (r *Repository) CreateOwner(ctx context.Context, o domain.Owner) (domain.Owner, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO owners (kind, name, created_at) VALUES (?, ?, ?)`,
		string(o.Kind), o.Name, now.Format(timeFormat),
	)
	if err != nil {
		return domain.Owner{}, fmt.Errorf("inserting owner: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Owner{}, fmt.Errorf("reading owner id: %w", err)
	}

	o.ID = id
	o.CreatedAt = now
	return o, nil
}

func (r *Repository) GetOwner(ctx context.Context, id int64) (domain.Owner, error) {
	var o domain.Owner
	var kind, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, name, created_at FROM owners WHERE id = ?`, id,
	).Scan(&o.ID, &kind, &o.Name, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Owner{}, domain.ErrOwnerNotFound
		}
		return domain.Owner{}, fmt.Errorf("scanning owner: %w", err)
	}

	o.Kind = domain.OwnerKind(kind)
	o.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return o, nil
}

func (r *Repository) OwnerExists(ctx context.Context, ref domain.OwnerRef) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM owners WHERE id = ? AND kind = ?`, ref.ID, string(ref.Kind),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking owner: %w", err)
	}
	return true, nil
}

// --- Entity store ---

func (r *Repository) Insert(ctx context.Context, e domain.Entity) (domain.Entity, error) {
	exists, err := r.OwnerExists(ctx, e.Owner)
	if err != nil {
		return domain.Entity{}, err
	}
	if !exists {
		return domain.Entity{}, &domain.ValidationError{Fields: map[string]string{
			"owner": fmt.Sprintf("%s %d does not exist", e.Owner.Kind, e.Owner.ID),
		}}
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("encoding payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entities (kind, owner_kind, owner_id, status, prior_status,
		     status_changed_at, status_changed_by, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		string(e.Kind), string(e.Owner.Kind), e.Owner.ID, string(e.Status),
		e.StatusChangedAt.UTC().Format(timeFormat), e.StatusChangedBy.OwnerID,
		string(payload),
		e.CreatedAt.UTC().Format(timeFormat), e.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if conflict := asConflict(err, e); conflict != nil {
			return domain.Entity{}, conflict
		}
		return domain.Entity{}, fmt.Errorf("inserting entity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("reading entity id: %w", err)
	}

	e.ID = id
	return e, nil
}

func (r *Repository) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Entity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id,
	)
	return scanEntity(row.Scan)
}

// UpdatePayload merges the given fields into the stored payload. Status and
// owner are never touched here.
func (r *Repository) UpdatePayload(ctx context.Context, kind domain.Kind, id int64, fields domain.Payload) (domain.Entity, error) {
	current, err := r.Get(ctx, kind, id)
	if err != nil {
		return domain.Entity{}, err
	}

	merged := current.Payload.Merge(fields)
	payload, err := json.Marshal(merged)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("encoding payload: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE entities SET payload = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		string(payload), now.Format(timeFormat), string(kind), id,
	)
	if err != nil {
		current.Payload = merged
		if conflict := asConflict(err, current); conflict != nil {
			return domain.Entity{}, conflict
		}
		return domain.Entity{}, fmt.Errorf("updating payload: %w", err)
	}

	current.Payload = merged
	current.UpdatedAt = now
	return current, nil
}

// Remove hard-deletes the entity; its history rows go with it (ON DELETE
// CASCADE). Archival is the reversible alternative.
func (r *Repository) Remove(ctx context.Context, kind domain.Kind, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND id = ?`, string(kind), id,
	)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrEntityNotFound
	}
	return nil
}

// --- Lifecycle ---

// Transition runs the read-validate-write cycle in one transaction: load
// the current row, let decide resolve the operation, then persist the new
// status and append the audit record. Two concurrent operations racing for
// the same edge serialize here; the loser observes the winner's result.
func (r *Repository) Transition(ctx context.Context, kind domain.Kind, id int64, decide domain.TransitionFunc) (domain.Entity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id,
	)
	current, err := scanEntity(row.Scan)
	if err != nil {
		return domain.Entity{}, err
	}

	decision, audit, err := decide(current)
	if err != nil {
		return domain.Entity{}, err
	}

	now := time.Now().UTC()
	next := current

	if !decision.Noop {
		next.UpdatedAt = now
		next.Status = decision.Next
		next.StatusChangedAt = now
		next.StatusChangedBy = audit.Actor
		if decision.Effects != nil {
			next.Payload = domain.ApplyEffects(next.Payload, decision.Effects)
		}
		switch {
		case decision.Prior != nil:
			next.PriorStatus = decision.Prior
		case decision.ClearPrior:
			next.PriorStatus = nil
		}

		payload, err := json.Marshal(next.Payload)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("encoding payload: %w", err)
		}

		var prior any
		if next.PriorStatus != nil {
			prior = string(*next.PriorStatus)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET status = ?, prior_status = ?, status_changed_at = ?,
			     status_changed_by = ?, payload = ?, updated_at = ?
			 WHERE kind = ? AND id = ?`,
			string(next.Status), prior, now.Format(timeFormat),
			audit.Actor.OwnerID, string(payload), now.Format(timeFormat),
			string(kind), id,
		); err != nil {
			return domain.Entity{}, fmt.Errorf("writing transition: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entity_history (entity_id, operation, actor_id, from_status, to_status, reason, noop, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(audit.Op), audit.Actor.OwnerID,
		string(audit.From), string(audit.To), audit.Reason,
		boolToInt(audit.Noop), now.Format(timeFormat),
	); err != nil {
		return domain.Entity{}, fmt.Errorf("appending history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Entity{}, fmt.Errorf("committing transition: %w", err)
	}

	return next, nil
}

func (r *Repository) History(ctx context.Context, kind domain.Kind, id int64) ([]domain.AuditRecord, error) {
	// Ensure the entity exists so absent IDs are NotFound, not empty history.
	if _, err := r.Get(ctx, kind, id); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_id, operation, actor_id, from_status, to_status, reason, noop, created_at
		 FROM entity_history WHERE entity_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var op, from, to, createdAt string
		var noop int

		if err := rows.Scan(&rec.ID, &rec.EntityID, &op, &rec.Actor.OwnerID, &from, &to, &rec.Reason, &noop, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		rec.Op = domain.Operation(op)
		rec.From = domain.Status(from)
		rec.To = domain.Status(to)
		rec.Noop = noop != 0
		rec.At, _ = time.Parse(timeFormat, createdAt)
		out = append(out, rec)
	}

	return out, rows.Err()
}

// ListDue finds entities eligible for the kind's time-based transition.
// Ordered by ID so repeated sweeps make progress deterministically.
func (r *Repository) ListDue(ctx context.Context, kind domain.Kind, rule domain.ExpiryRule, now time.Time, limit int) ([]int64, error) {
	placeholders := make([]string, len(rule.From))
	args := []any{string(kind)}
	for i, s := range rule.From {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, "$."+rule.DateField, now.UTC().Format(timeFormat), limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM entities
		 WHERE kind = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
		   AND json_extract(payload, ?) < ?
		 ORDER BY id ASC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing due entities: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning due id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Scanning helpers ---

func scanEntity(scan func(dest ...any) error) (domain.Entity, error) {
	var e domain.Entity
	var kind, ownerKind, status, statusChangedAt, payload, createdAt, updatedAt string
	var prior sql.NullString

	err := scan(&e.ID, &kind, &ownerKind, &e.Owner.ID, &status, &prior,
		&statusChangedAt, &e.StatusChangedBy.OwnerID, &payload, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Entity{}, domain.ErrEntityNotFound
		}
		return domain.Entity{}, fmt.Errorf("scanning entity: %w", err)
	}

	e.Kind = domain.Kind(kind)
	e.Owner.Kind = domain.OwnerKind(ownerKind)
	e.Status = domain.Status(status)
	if prior.Valid {
		s := domain.Status(prior.String)
		e.PriorStatus = &s
	}
	e.StatusChangedAt, _ = time.Parse(timeFormat, statusChangedAt)
	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	e.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return domain.Entity{}, fmt.Errorf("decoding payload: %w", err)
	}

	return e, nil
}

// asConflict maps a UNIQUE violation to the domain ConflictError, naming
// the kind's unique payload field.
func asConflict(err error, e domain.Entity) *domain.ConflictError {
	if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return nil
	}

	def, ok := domain.KindDef(e.Kind)
	if !ok {
		return &domain.ConflictError{Field: "id"}
	}
	for _, spec := range def.Payload {
		if spec.Unique {
			value, _ := e.Payload[spec.Name].(string)
			return &domain.ConflictError{Field: spec.Name, Value: value}
		}
	}
	return &domain.ConflictError{Field: "id"}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
