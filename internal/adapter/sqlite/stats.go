package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// Count returns the number of entities matching the filter. Never negative;
// an empty view counts as zero.
func (r *Repository) Count(ctx context.Context, f domain.ListFilter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	where, args := whereClause(f)

	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return total, nil
}

// Sum totals a numeric payload field across the filtered view. Rows where
// the field is absent contribute zero.
func (r *Repository) Sum(ctx context.Context, field string, f domain.ListFilter) (float64, error) {
	if err := validateNumericField(f.Kind, field); err != nil {
		return 0, err
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}

	where, args := whereClause(f)
	args = append([]any{"$." + field}, args...)

	var sum float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(json_extract(payload, ?)), 0) FROM entities WHERE `+where,
		args...,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing %s: %w", field, err)
	}
	return sum, nil
}

// Average computes the mean of a numeric payload field across the filtered
// view. The average of an empty set is 0.0 by convention, never NaN or an
// error.
func (r *Repository) Average(ctx context.Context, field string, f domain.ListFilter) (float64, error) {
	if err := validateNumericField(f.Kind, field); err != nil {
		return 0, err
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}

	where, args := whereClause(f)
	args = append([]any{"$." + field}, args...)

	var avg float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(json_extract(payload, ?)), 0) FROM entities WHERE `+where,
		args...,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging %s: %w", field, err)
	}
	return avg, nil
}

// Trend groups the filtered view by creation-time bucket and computes the
// metric per bucket. The series covers every bucket between the window's
// endpoints; buckets with no data carry 0 so chart clients get a gapless
// series. Rows are grouped per day in SQL, then rolled up into the
// requested bucket size.
func (r *Repository) Trend(ctx context.Context, spec domain.TrendSpec, f domain.ListFilter) ([]domain.TrendPoint, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Metric == domain.TrendSum {
		if err := validateNumericField(f.Kind, spec.Field); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	where, args := whereClause(f)
	where += " AND created_at >= ? AND created_at <= ?"

	metric := "COUNT(*)"
	if spec.Metric == domain.TrendSum {
		metric = "COALESCE(SUM(json_extract(payload, ?)), 0)"
		args = append([]any{"$." + spec.Field}, args...)
	}
	args = append(args, spec.From.UTC().Format(timeFormat), spec.To.UTC().Format(timeFormat))

	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, `+metric+`
		 FROM entities WHERE `+where+`
		 GROUP BY day ORDER BY day ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trend: %w", err)
	}
	defer rows.Close()

	byBucket := map[string]float64{}
	for rows.Next() {
		var day string
		var value float64
		if err := rows.Scan(&day, &value); err != nil {
			return nil, fmt.Errorf("scanning trend row: %w", err)
		}

		at, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("parsing trend day %q: %w", day, err)
		}
		byBucket[domain.BucketLabel(at, spec.Period)] += value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Emit the gapless label sequence between the endpoints, anchored at
	// the start of From's bucket. Each step lands on the next bucket start,
	// so every label in the window appears exactly once, including To's
	// bucket (its start is never after To).
	var series []domain.TrendPoint
	for cur := domain.BucketStart(spec.From, spec.Period); !cur.After(spec.To.UTC()); cur = domain.BucketStep(cur, spec.Period) {
		label := domain.BucketLabel(cur, spec.Period)
		series = append(series, domain.TrendPoint{Bucket: label, Value: byBucket[label]})
	}

	return series, nil
}

// validateNumericField rejects aggregation over undeclared or non-numeric
// payload fields before any SQL runs.
func validateNumericField(kind domain.Kind, field string) error {
	def, ok := domain.KindDef(kind)
	if !ok {
		return &domain.InvalidFilterError{ValidationError: domain.ValidationError{
			Fields: map[string]string{"kind": fmt.Sprintf("unknown entity kind %q", kind)},
		}}
	}

	spec, ok := def.Field(field)
	if !ok {
		return &domain.InvalidFilterError{ValidationError: domain.ValidationError{
			Fields: map[string]string{"field": fmt.Sprintf("field %q is not declared for %s", field, kind)},
		}}
	}
	if spec.Type != domain.FieldNumber {
		return &domain.InvalidFilterError{ValidationError: domain.ValidationError{
			Fields: map[string]string{"field": fmt.Sprintf("field %q is not numeric", field)},
		}}
	}
	return nil
}
