package db

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"runcoach/internal/types"
)

// StatsRepository computes read-side aggregates over stored runs.
type StatsRepository struct {
	db DBTX
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// PeriodAverages aggregates runs that started at or after since. A nil since
// covers every stored run.
func (r *StatsRepository) PeriodAverages(ctx context.Context, period string, since *time.Time) (*types.PeriodStats, error) {
	st := types.PeriodStats{Period: period, Since: since}
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(distance_km), 0),
		        AVG(distance_km),
		        AVG(elapsed_time)::float8,
		        AVG(average_speed),
		        AVG(average_heartrate),
		        AVG(total_elevation_gain),
		        AVG(temperature),
		        AVG(pollution_aqi)::float8
		 FROM activities
		 WHERE $1::timestamptz IS NULL OR start_date >= $1`,
		since,
	).Scan(
		&st.Runs,
		&st.TotalDistanceKm,
		&st.AvgDistanceKm,
		&st.AvgElapsedTime,
		&st.AvgSpeed,
		&st.AvgHeartrate,
		&st.AvgElevationGain,
		&st.AvgTemperature,
		&st.AvgAQI,
	)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalDB,
			"failed to compute period averages", err, map[string]any{"period": period})
	}
	return &st, nil
}

// Overview computes every standard stats period relative to now, in display
// order.
func (r *StatsRepository) Overview(ctx context.Context, now time.Time) ([]types.PeriodStats, error) {
	out := make([]types.PeriodStats, len(types.StatsPeriods))
	g, gctx := errgroup.WithContext(ctx)
	for i, period := range types.StatsPeriods {
		since := periodSince(period, now)
		g.Go(func() error {
			st, err := r.PeriodAverages(gctx, period, since)
			if err != nil {
				return err
			}
			out[i] = *st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Period computes a single named period. Unknown names fail validation.
func (r *StatsRepository) Period(ctx context.Context, period string, now time.Time) (*types.PeriodStats, error) {
	if _, ok := types.RangeStart(period, now); !ok {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationPeriod,
			"unknown stats period", nil, map[string]any{"period": period, "allowed": types.StatsPeriods})
	}
	return r.PeriodAverages(ctx, period, periodSince(period, now))
}

func periodSince(period string, now time.Time) *time.Time {
	start, ok := types.RangeStart(period, now)
	if !ok || start.IsZero() {
		return nil
	}
	return &start
}
