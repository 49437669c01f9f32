package types

import "time"

// SyncState is a stage of a sync run.
type SyncState string

const (
	SyncStateIdle           SyncState = "idle"
	SyncStateAuthenticating SyncState = "authenticating"
	SyncStateStreaming      SyncState = "streaming"
	SyncStateCheckExists    SyncState = "check_exists"
	SyncStateFetchDetail    SyncState = "fetch_detail"
	SyncStateEnrich         SyncState = "enrich"
	SyncStatePersist        SyncState = "persist"
	SyncStateCompleted      SyncState = "completed"
	SyncStateFailedFatal    SyncState = "failed_fatal"

	// SyncStateRunning is reported for a run accepted in the background
	// before its first transition is observed.
	SyncStateRunning SyncState = "running"
)

// IsTerminal reports whether no further transitions follow s.
func (s SyncState) IsTerminal() bool {
	return s == SyncStateCompleted || s == SyncStateFailedFatal
}

// SyncResult is returned by every sync invocation, whether it completed,
// stopped early, or failed.
type SyncResult struct {
	RunID   string    `json:"run_id"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	State   SyncState `json:"state"`

	Range string    `json:"range"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Processed       int `json:"processed"`
	SkippedType     int `json:"skipped_type"`
	SkippedExisting int `json:"skipped_existing"`
	SkippedEmpty    int `json:"skipped_empty"`
	Failed          int `json:"failed"`

	// StreamError is set when the activity listing ended early.
	StreamError string `json:"stream_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r SyncResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PeriodStats aggregates runs over a lookback period. Averages are nil when
// no run in the period carries the value.
type PeriodStats struct {
	Period           string     `json:"period"`
	Since            *time.Time `json:"since,omitempty"`
	Runs             int        `json:"runs"`
	TotalDistanceKm  float64    `json:"total_distance_km"`
	AvgDistanceKm    *float64   `json:"avg_distance_km,omitempty"`
	AvgElapsedTime   *float64   `json:"avg_elapsed_time,omitempty"`
	AvgSpeed         *float64   `json:"avg_speed,omitempty"`
	AvgHeartrate     *float64   `json:"avg_heartrate,omitempty"`
	AvgElevationGain *float64   `json:"avg_elevation_gain,omitempty"`
	AvgTemperature   *float64   `json:"avg_temperature,omitempty"`
	AvgAQI           *float64   `json:"avg_aqi,omitempty"`
}
