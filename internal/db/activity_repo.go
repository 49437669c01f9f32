package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"runcoach/internal/types"
)

// ActivityRepository provides data access for the activities, splits and
// best_efforts tables.
type ActivityRepository struct {
	db DBTX
}

// NewActivityRepository creates a new ActivityRepository backed by the given
// database connection (pool or transaction).
func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// activityColumns must match the scan order in scanActivity.
const activityColumns = `id, name, activity_type, start_date, start_date_local, sync_day, timezone,
	distance_km, elapsed_time, moving_time, average_speed, max_speed,
	average_heartrate, max_heartrate, average_cadence, total_elevation_gain,
	calories, suffer_score, gear_id, device_name, map_summary_polyline,
	start_latitude, start_longitude,
	temperature, feels_like, humidity, weather_conditions,
	pollution_aqi, pollution_co, pollution_no, pollution_no2, pollution_o3,
	pollution_so2, pollution_pm2_5, pollution_pm10, pollution_nh3,
	city_name, created_at`

func scanActivity(row pgx.Row) (*types.Activity, error) {
	var a types.Activity
	e := &a.Enrichment
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Type,
		&a.StartDate,
		&a.StartDateLocal,
		&a.SyncDay,
		&a.Timezone,
		&a.DistanceKm,
		&a.ElapsedTime,
		&a.MovingTime,
		&a.AverageSpeed,
		&a.MaxSpeed,
		&a.AverageHeartrate,
		&a.MaxHeartrate,
		&a.AverageCadence,
		&a.TotalElevationGain,
		&a.Calories,
		&a.SufferScore,
		&a.GearID,
		&a.DeviceName,
		&a.SummaryPolyline,
		&a.StartLatitude,
		&a.StartLongitude,
		&e.Temperature,
		&e.FeelsLike,
		&e.Humidity,
		&e.WeatherDescription,
		&e.AQI,
		&e.CO,
		&e.NO,
		&e.NO2,
		&e.O3,
		&e.SO2,
		&e.PM25,
		&e.PM10,
		&e.NH3,
		&e.CityName,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Exists reports whether an activity with the given upstream id is stored.
func (r *ActivityRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activities WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check activity existence", err)
	}
	return exists, nil
}

// LatestActivityStart returns the start time of the newest stored activity,
// or nil when the table is empty.
func (r *ActivityRepository) LatestActivityStart(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx, `SELECT MAX(start_date) FROM activities`).Scan(&latest)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read latest activity start", err)
	}
	return latest, nil
}

// InsertActivity writes the activity row. Rows are never overwritten: a
// duplicate id returns ErrCodeConflictActivityExists.
func (r *ActivityRepository) InsertActivity(ctx context.Context, a *types.Activity) error {
	e := a.Enrichment
	_, err := r.db.Exec(ctx,
		`INSERT INTO activities (
			id, name, activity_type, start_date, start_date_local, sync_day, timezone,
			distance_km, elapsed_time, moving_time, average_speed, max_speed,
			average_heartrate, max_heartrate, average_cadence, total_elevation_gain,
			calories, suffer_score, gear_id, device_name, map_summary_polyline,
			start_latitude, start_longitude,
			temperature, feels_like, humidity, weather_conditions,
			pollution_aqi, pollution_co, pollution_no, pollution_no2, pollution_o3,
			pollution_so2, pollution_pm2_5, pollution_pm10, pollution_nh3,
			city_name
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23,
			$24, $25, $26, $27,
			$28, $29, $30, $31, $32,
			$33, $34, $35, $36,
			$37
		)`,
		a.ID, a.Name, a.Type, a.StartDate, a.StartDateLocal, a.SyncDay, a.Timezone,
		a.DistanceKm, a.ElapsedTime, a.MovingTime, a.AverageSpeed, a.MaxSpeed,
		a.AverageHeartrate, a.MaxHeartrate, a.AverageCadence, a.TotalElevationGain,
		a.Calories, a.SufferScore, a.GearID, a.DeviceName, a.SummaryPolyline,
		a.StartLatitude, a.StartLongitude,
		e.Temperature, e.FeelsLike, e.Humidity, e.WeatherDescription,
		e.AQI, e.CO, e.NO, e.NO2, e.O3,
		e.SO2, e.PM25, e.PM10, e.NH3,
		e.CityName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictActivityExists,
				"activity already stored", err, map[string]any{"activity_id": a.ID})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert activity", err)
	}
	return nil
}

const splitColCount = 9

// InsertSplits writes all splits of one activity in a single statement.
func (r *ActivityRepository) InsertSplits(ctx context.Context, activityID int64, splits []types.Split) error {
	if len(splits) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO splits (
		activity_id, split_number, distance, elapsed_time, moving_time,
		average_speed, average_heartrate, elevation_difference,
		average_grade_adjusted_speed
	) VALUES `)
	writePlaceholders(&sb, len(splits), splitColCount)

	args := make([]any, 0, len(splits)*splitColCount)
	for _, s := range splits {
		args = append(args,
			activityID,
			s.SplitNumber,
			s.Distance,
			s.ElapsedTime,
			s.MovingTime,
			s.AverageSpeed,
			s.AverageHeartrate,
			s.ElevationDifference,
			s.AverageGradeAdjustedSpeed,
		)
	}

	if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert splits", err)
	}
	return nil
}

const bestEffortColCount = 5

// InsertBestEfforts writes all best efforts of one activity in a single
// statement.
func (r *ActivityRepository) InsertBestEfforts(ctx context.Context, activityID int64, efforts []types.BestEffort) error {
	if len(efforts) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO best_efforts (
		activity_id, name, distance, elapsed_time, start_date
	) VALUES `)
	writePlaceholders(&sb, len(efforts), bestEffortColCount)

	args := make([]any, 0, len(efforts)*bestEffortColCount)
	for _, be := range efforts {
		args = append(args, activityID, be.Name, be.Distance, be.ElapsedTime, be.StartDate)
	}

	if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert best efforts", err)
	}
	return nil
}

// writePlaceholders appends rows groups of numbered placeholders, cols per
// group: ($1, $2), ($3, $4), ...
func writePlaceholders(sb *strings.Builder, rows, cols int) {
	for i := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "$%d", i*cols+j+1)
		}
		sb.WriteString(")")
	}
}

// ListRecent returns the newest activities, most recent first.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]types.Activity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM activities
		 ORDER BY start_date DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list activities", err)
	}
	defer rows.Close()

	var out []types.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan activity", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate activities", err)
	}
	return out, nil
}

// GetByID returns a single activity without its child rows.
func (r *ActivityRepository) GetByID(ctx context.Context, id int64) (*types.Activity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`,
		id,
	)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundActivity, "activity not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve activity", err)
	}
	return a, nil
}

// ListSplits returns an activity's splits ordered by split number.
func (r *ActivityRepository) ListSplits(ctx context.Context, activityID int64) ([]types.Split, error) {
	rows, err := r.db.Query(ctx,
		`SELECT activity_id, split_number, distance, elapsed_time, moving_time,
		        average_speed, average_heartrate, elevation_difference,
		        average_grade_adjusted_speed
		 FROM splits
		 WHERE activity_id = $1
		 ORDER BY split_number`,
		activityID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list splits", err)
	}
	defer rows.Close()

	var out []types.Split
	for rows.Next() {
		var s types.Split
		if err := rows.Scan(
			&s.ActivityID,
			&s.SplitNumber,
			&s.Distance,
			&s.ElapsedTime,
			&s.MovingTime,
			&s.AverageSpeed,
			&s.AverageHeartrate,
			&s.ElevationDifference,
			&s.AverageGradeAdjustedSpeed,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan split", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate splits", err)
	}
	return out, nil
}

// ListBestEfforts returns an activity's best efforts in insertion order.
func (r *ActivityRepository) ListBestEfforts(ctx context.Context, activityID int64) ([]types.BestEffort, error) {
	rows, err := r.db.Query(ctx,
		`SELECT activity_id, name, distance, elapsed_time, start_date
		 FROM best_efforts
		 WHERE activity_id = $1
		 ORDER BY id`,
		activityID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list best efforts", err)
	}
	defer rows.Close()

	var out []types.BestEffort
	for rows.Next() {
		var be types.BestEffort
		if err := rows.Scan(&be.ActivityID, &be.Name, &be.Distance, &be.ElapsedTime, &be.StartDate); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan best effort", err)
		}
		out = append(out, be)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate best efforts", err)
	}
	return out, nil
}

// Pool is a connection that can both query and start transactions.
// *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	Beginner
}

// ActivityStore adds transactional writes and composed reads on top of
// ActivityRepository.
type ActivityStore struct {
	*ActivityRepository
	db Beginner
}

// NewActivityStore creates an ActivityStore over pool.
func NewActivityStore(pool Pool) *ActivityStore {
	return &ActivityStore{ActivityRepository: NewActivityRepository(pool), db: pool}
}

// Save writes the activity with its splits and best efforts as one unit.
// Any failure rolls back every row of the unit.
func (s *ActivityStore) Save(ctx context.Context, a *types.Activity) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		repo := NewActivityRepository(tx)
		if err := repo.InsertActivity(ctx, a); err != nil {
			return err
		}
		if err := repo.InsertSplits(ctx, a.ID, a.Splits); err != nil {
			return err
		}
		return repo.InsertBestEfforts(ctx, a.ID, a.BestEfforts)
	})
	if err == nil {
		return nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeInternalDB, "failed to save activity", err)
}

// Detail returns one activity with its splits and best efforts hydrated.
func (s *ActivityStore) Detail(ctx context.Context, id int64) (*types.Activity, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Splits, err = s.ListSplits(ctx, id); err != nil {
		return nil, err
	}
	if a.BestEfforts, err = s.ListBestEfforts(ctx, id); err != nil {
		return nil, err
	}
	return a, nil
}
