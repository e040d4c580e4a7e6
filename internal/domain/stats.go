package domain

import (
	"fmt"
	"time"
)

// Period is the time-bucket size for trend queries.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// ValidPeriod reports whether p is a known bucket size.
func ValidPeriod(p Period) bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	}
	return false
}

// TrendMetric selects what a trend series measures per bucket.
type TrendMetric string

const (
	TrendCount TrendMetric = "count"
	TrendSum   TrendMetric = "sum"
)

// TrendSpec describes one trend query: bucket entities by creation time
// over [From, To] and compute the metric per bucket.
type TrendSpec struct {
	Metric TrendMetric
	// Field is the numeric payload field summed when Metric is TrendSum.
	Field  string
	Period Period
	From   time.Time
	To     time.Time
}

// Validate rejects malformed trend specs with InvalidFilterError.
func (s TrendSpec) Validate() error {
	fields := map[string]string{}

	if !ValidPeriod(s.Period) {
		fields["period"] = fmt.Sprintf("unknown period %q", s.Period)
	}
	switch s.Metric {
	case TrendCount:
	case TrendSum:
		if s.Field == "" {
			fields["field"] = "required when metric is sum"
		}
	default:
		fields["metric"] = fmt.Sprintf("unknown metric %q", s.Metric)
	}
	if s.From.IsZero() || s.To.IsZero() {
		fields["range"] = "from and to are required"
	} else if s.From.After(s.To) {
		fields["range"] = "range start is after range end"
	}

	if len(fields) > 0 {
		return &InvalidFilterError{ValidationError{Fields: fields}}
	}
	return nil
}

// TrendPoint is one (bucket, value) pair of an ordered trend series.
// Buckets with no data are present with Value 0 so chart clients get a
// gapless series.
type TrendPoint struct {
	Bucket string
	Value  float64
}

// BucketLabel canonicalizes a timestamp into its bucket label: 2024-03-07
// (day), 2024-W10 (ISO week), 2024-03 (month), 2024-Q1 (quarter), 2024
// (year).
func BucketLabel(t time.Time, p Period) string {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	case PeriodQuarter:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case PeriodYear:
		return t.Format("2006")
	}
	return ""
}

// BucketStart truncates a timestamp to the start of its bucket: midnight,
// ISO-week Monday, first of month/quarter/year. Label enumeration must
// anchor here before stepping; AddDate from a raw day-29..31 timestamp
// normalizes past short months and their labels are never emitted.
func BucketStart(t time.Time, p Period) time.Time {
	t = t.UTC()
	switch p {
	case PeriodWeek:
		monday := t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarter:
		first := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), first, 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BucketStep advances a bucket start to the start of the next bucket. Used
// to enumerate the gapless label sequence between a trend range's endpoints.
func BucketStep(t time.Time, p Period) time.Time {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.AddDate(0, 0, 1)
	case PeriodWeek:
		return t.AddDate(0, 0, 7)
	case PeriodMonth:
		return t.AddDate(0, 1, 0)
	case PeriodQuarter:
		return t.AddDate(0, 3, 0)
	case PeriodYear:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 0, 1)
}
