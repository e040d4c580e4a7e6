package app

import (
	"context"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// StatsService exposes the aggregate statistics contract: counts, sums,
// averages, rates and trends over a filtered view. Results are reporting
// grade: read-committed with respect to concurrent writes.
type StatsService struct {
	stats domain.StatsRepository
}

// NewStatsService creates a stats service backed by the given repository.
func NewStatsService(stats domain.StatsRepository) *StatsService {
	return &StatsService{stats: stats}
}

// Count returns the number of entities matching the filter.
func (s *StatsService) Count(ctx context.Context, f domain.ListFilter) (int64, error) {
	return s.stats.Count(ctx, f)
}

// Sum totals a numeric payload field over the filtered view.
func (s *StatsService) Sum(ctx context.Context, field string, f domain.ListFilter) (float64, error) {
	return s.stats.Sum(ctx, field, f)
}

// Average computes the mean of a numeric payload field; 0.0 over an empty
// view.
func (s *StatsService) Average(ctx context.Context, field string, f domain.ListFilter) (float64, error) {
	return s.stats.Average(ctx, field, f)
}

// Rate divides the sums of two numeric payload fields over the shared
// filter, the delivery-rate shape: sum(delivered_count) / sum(sent_count).
// A zero denominator yields 0.0, never a division error.
func (s *StatsService) Rate(ctx context.Context, numField, denField string, f domain.ListFilter) (float64, error) {
	den, err := s.stats.Sum(ctx, denField, f)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, nil
	}

	num, err := s.stats.Sum(ctx, numField, f)
	if err != nil {
		return 0, err
	}
	return num / den, nil
}

// StatusRate divides the count of entities in the given status by the count
// of all entities matching the filter, the conversion/churn-rate shape.
// A zero denominator yields 0.0.
func (s *StatsService) StatusRate(ctx context.Context, f domain.ListFilter, status domain.Status) (float64, error) {
	den, err := s.stats.Count(ctx, f)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, nil
	}

	narrowed := f
	narrowed.Statuses = []domain.Status{status}
	num, err := s.stats.Count(ctx, narrowed)
	if err != nil {
		return 0, err
	}
	return float64(num) / float64(den), nil
}

// Trend returns the ordered, gapless bucket series for the requested window.
func (s *StatsService) Trend(ctx context.Context, spec domain.TrendSpec, f domain.ListFilter) ([]domain.TrendPoint, error) {
	return s.stats.Trend(ctx, spec, f)
}
