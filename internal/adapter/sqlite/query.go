package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/neomorfeo/commerceiq/internal/domain"

	"github.com/samber/lo"
)

// whereClause builds the conjunction of filter predicates. Archived rows
// are excluded unless the filter opts in.
func whereClause(f domain.ListFilter) (string, []any) {
	conds := []string{"kind = ?"}
	args := []any{string(f.Kind)}

	if !f.IncludeArchived {
		conds = append(conds, "status != ?")
		args = append(args, string(domain.StatusArchived))
	}

	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "status IN ("+strings.Join(ph, ", ")+")")
	}

	if f.Owner != nil {
		conds = append(conds, "owner_kind = ?", "owner_id = ?")
		args = append(args, string(f.Owner.Kind), f.Owner.ID)
	}

	if f.CreatedFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedFrom.UTC().Format(timeFormat))
	}
	if f.CreatedTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.CreatedTo.UTC().Format(timeFormat))
	}

	if f.Search != "" {
		def, ok := domain.KindDef(f.Kind)
		if ok && len(def.Searchable) > 0 {
			sub := make([]string, len(def.Searchable))
			for i, field := range def.Searchable {
				sub[i] = "lower(coalesce(json_extract(payload, ?), '')) LIKE ?"
				args = append(args, "$."+field, "%"+strings.ToLower(f.Search)+"%")
			}
			conds = append(conds, "("+strings.Join(sub, " OR ")+")")
		} else {
			// Kind declares nothing searchable; a search term matches nothing.
			conds = append(conds, "0 = 1")
		}
	}

	return strings.Join(conds, " AND "), args
}

// List returns one page of entities matching the filter, newest first.
// Offset modes order and slice by page number; cursor mode uses keyset
// pagination on (created_at, id) so concurrent inserts never duplicate or
// skip rows that existed when iteration began.
func (r *Repository) List(ctx context.Context, f domain.ListFilter, p domain.PageRequest) (domain.Page, error) {
	if err := f.Validate(); err != nil {
		return domain.Page{}, err
	}
	p = p.Normalize()

	where, args := whereClause(f)

	switch p.Mode {
	case domain.PageCursor:
		return r.listCursor(ctx, where, args, p)
	case domain.PageOffset, domain.PageOffsetUncounted:
		return r.listOffset(ctx, where, args, p)
	default:
		return domain.Page{}, &domain.InvalidFilterError{ValidationError: domain.ValidationError{
			Fields: map[string]string{"mode": fmt.Sprintf("unknown pagination mode %q", p.Mode)},
		}}
	}
}

func (r *Repository) listOffset(ctx context.Context, where string, args []any, p domain.PageRequest) (domain.Page, error) {
	var page domain.Page

	if p.Mode == domain.PageOffset {
		var total int64
		countArgs := make([]any, len(args))
		copy(countArgs, args)
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM entities WHERE `+where, countArgs...,
		).Scan(&total)
		if err != nil {
			return domain.Page{}, fmt.Errorf("counting entities: %w", err)
		}
		page.Total = lo.ToPtr(total)
	}

	offset := (p.Page - 1) * p.PerPage
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, p.PerPage, offset)...,
	)
	if err != nil {
		return domain.Page{}, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	items, err := collectEntities(rows)
	if err != nil {
		return domain.Page{}, err
	}

	page.Items = items
	return page, nil
}

func (r *Repository) listCursor(ctx context.Context, where string, args []any, p domain.PageRequest) (domain.Page, error) {
	if p.Cursor != "" {
		cur, err := domain.DecodeCursor(p.Cursor)
		if err != nil {
			return domain.Page{}, err
		}
		// Keyset predicate: strictly after the last-seen row in
		// (created_at DESC, id DESC) order.
		where += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		at := cur.CreatedAt.UTC().Format(timeFormat)
		args = append(args, at, at, cur.ID)
	}

	// Fetch one extra row to learn whether another page exists.
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		append(args, p.PerPage+1)...,
	)
	if err != nil {
		return domain.Page{}, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	items, err := collectEntities(rows)
	if err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{Items: items}
	if len(items) > p.PerPage {
		page.Items = items[:p.PerPage]
		last := page.Items[p.PerPage-1]
		page.NextCursor = domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

func collectEntities(rows *sql.Rows) ([]domain.Entity, error) {
	var items []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
