// Package ingest implements the incremental activity sync: authenticate,
// stream recent summaries, skip non-runs and stored ids, fetch the detail,
// enrich it and persist it.
//
// A run moves through the states
//
//	idle -> authenticating -> streaming -> {check_exists -> fetch_detail -> enrich -> persist} -> completed | failed_fatal
//
// and always ends with a types.SyncResult; errors never escape Sync.
package ingest

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"runcoach/internal/enrich"
	"runcoach/internal/types"
)

// Run outcomes reported to the Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Per-activity outcomes reported to the Recorder.
const (
	ActivityProcessed       = "processed"
	ActivitySkippedType     = "skipped_type"
	ActivitySkippedExisting = "skipped_existing"
	ActivitySkippedEmpty    = "skipped_empty"
	ActivityFailed          = "failed"
)

// Enrichment anchors.
const (
	AnchorStart = "start"
	AnchorDay   = "day"
)

const dateLayout = "2006-01-02"

// Authenticator obtains a valid upstream credential.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// ActivityStream yields summaries newest first down to cutoff.
type ActivityStream interface {
	Activities(ctx context.Context, cutoff time.Time) iter.Seq2[types.ActivitySummary, error]
}

// DetailFetcher loads one activity. A nil detail with a nil error means the
// upstream had nothing usable for the id.
type DetailFetcher interface {
	GetActivity(ctx context.Context, id int64) (*types.ActivityDetail, error)
}

// Enricher attaches weather, air quality and place to a location and time.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) types.EnrichmentResult
}

// Store is the persistence the syncer depends on.
type Store interface {
	Exists(ctx context.Context, id int64) (bool, error)
	LatestActivityStart(ctx context.Context) (*time.Time, error)
	Save(ctx context.Context, a *types.Activity) error
}

// Recorder receives run and activity metrics.
type Recorder interface {
	RecordRun(ctx context.Context, outcome string, processed, failed int, d time.Duration)
	RecordActivity(ctx context.Context, outcome string)
}

// Config holds the collaborators and settings for a Syncer.
type Config struct {
	Auth     Authenticator
	Stream   ActivityStream
	Details  DetailFetcher
	Enricher Enricher
	Store    Store
	Recorder Recorder

	DefaultRange string
	// EnrichAnchor is AnchorStart (default) or AnchorDay.
	EnrichAnchor string

	Logger *slog.Logger
	Clock  func() time.Time
}

// Syncer runs at most one sync at a time.
type Syncer struct {
	auth     Authenticator
	stream   ActivityStream
	details  DetailFetcher
	enricher Enricher
	store    Store
	recorder Recorder

	defaultRange string
	anchor       string
	logger       *slog.Logger
	now          func() time.Time

	running sync.Mutex

	lastMu sync.RWMutex
	last   *types.SyncResult
}

// NewSyncer creates a Syncer from cfg.
func NewSyncer(cfg Config) *Syncer {
	s := &Syncer{
		auth:         cfg.Auth,
		stream:       cfg.Stream,
		details:      cfg.Details,
		enricher:     cfg.Enricher,
		store:        cfg.Store,
		recorder:     cfg.Recorder,
		defaultRange: cfg.DefaultRange,
		anchor:       cfg.EnrichAnchor,
		logger:       cfg.Logger,
		now:          cfg.Clock,
	}
	if s.defaultRange == "" {
		s.defaultRange = DefaultRange
	}
	if s.anchor == "" {
		s.anchor = AnchorStart
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sync runs a sync for selector (empty selects the default range) and blocks
// until it finishes. A call made while another run is active returns at once
// with Success=false.
func (s *Syncer) Sync(ctx context.Context, selector string) types.SyncResult {
	if !s.running.TryLock() {
		return s.busy(ctx, selector)
	}
	defer s.running.Unlock()
	return s.run(ctx, uuid.NewString(), selector)
}

// Start validates selector and launches a run in the background, detached
// from ctx cancellation. It returns the run id, or ErrCodeConflictSyncRunning
// when a run is already active.
func (s *Syncer) Start(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = s.defaultRange
	}
	if _, err := ParseTimeRange(selector, s.now()); err != nil {
		return "", err
	}
	if !s.running.TryLock() {
		s.recorder.RecordRun(ctx, OutcomeRejected, 0, 0, 0)
		return "", types.NewAppError(types.ErrCodeConflictSyncRunning, "sync already in progress", nil)
	}

	runID := uuid.NewString()
	bg := context.WithoutCancel(ctx)
	go func() {
		defer s.running.Unlock()
		s.run(bg, runID, selector)
	}()
	return runID, nil
}

// Running reports whether a run is in progress.
func (s *Syncer) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// Last returns the result of the most recent finished run, or nil.
func (s *Syncer) Last() *types.SyncResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return nil
	}
	res := *s.last
	return &res
}

func (s *Syncer) busy(ctx context.Context, selector string) types.SyncResult {
	s.recorder.RecordRun(ctx, OutcomeRejected, 0, 0, 0)
	now := s.now()
	return types.SyncResult{
		Success:    false,
		Message:    "sync already in progress",
		State:      types.SyncStateIdle,
		Range:      selector,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// run executes one sync. The caller holds s.running.
func (s *Syncer) run(ctx context.Context, runID, selector string) (res types.SyncResult) {
	if selector == "" {
		selector = s.defaultRange
	}
	logger := s.logger.With("run_id", runID, "range", selector)
	ctx = types.WithSyncRunID(ctx, runID)
	ctx = types.WithLogger(ctx, logger)

	res = types.SyncResult{
		RunID:     runID,
		Range:     selector,
		State:     types.SyncStateIdle,
		StartedAt: s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "sync panicked", "panic", r, "state", res.State)
			s.fail(&res, fmt.Sprintf("Error during sync: %v", r))
		}
		res.FinishedAt = s.now()
		s.finish(ctx, logger, res)
	}()

	tr, err := ParseTimeRange(selector, res.StartedAt)
	if err != nil {
		logger.WarnContext(ctx, "rejected sync range", "error", err)
		s.fail(&res, "invalid time range: "+selector)
		return res
	}

	res.State = types.SyncStateAuthenticating
	if err := s.auth.Authenticate(ctx); err != nil {
		logger.ErrorContext(ctx, "authentication failed", "error", err)
		s.fail(&res, "authentication failed")
		return res
	}

	cutoff := tr.Start
	if tr.SinceLastSync {
		latest, err := s.store.LatestActivityStart(ctx)
		if err != nil {
			s.fail(&res, "Error during sync: "+err.Error())
			return res
		}
		if latest != nil {
			cutoff = *latest
		}
	}
	res.Start = cutoff
	res.End = res.StartedAt

	res.State = types.SyncStateStreaming
	logger.InfoContext(ctx, "sync started", "cutoff", cutoff)

	for summary, err := range s.stream.Activities(ctx, cutoff) {
		if err != nil {
			logger.WarnContext(ctx, "activity stream ended early", "error", err)
			res.StreamError = err.Error()
			break
		}

		stop, err := s.processOne(ctx, logger, summary, &res)
		if err != nil {
			s.fail(&res, "Error during sync: "+err.Error())
			return res
		}
		if stop {
			break
		}
	}

	res.State = types.SyncStateCompleted
	res.Success = true
	res.Message = fmt.Sprintf("Successfully synced %d new activities from %s to %s",
		res.Processed, formatBound(res.Start), res.End.UTC().Format(dateLayout))
	if res.StreamError != "" {
		res.Message += fmt.Sprintf(" (stopped early: %s)", res.StreamError)
	}
	return res
}

// processOne runs the per-activity states for one summary. stop ends the
// loop as a partial run; a non-nil error aborts the run.
func (s *Syncer) processOne(ctx context.Context, logger *slog.Logger, summary types.ActivitySummary, res *types.SyncResult) (stop bool, err error) {
	logger = logger.With("activity_id", summary.ID)

	if !summary.IsRun() {
		res.SkippedType++
		s.recorder.RecordActivity(ctx, ActivitySkippedType)
		logger.DebugContext(ctx, "skipping non-run activity", "type", summary.Type)
		return false, nil
	}

	res.State = types.SyncStateCheckExists
	exists, err := s.store.Exists(ctx, summary.ID)
	if err != nil {
		return false, err
	}
	if exists {
		res.SkippedExisting++
		s.recorder.RecordActivity(ctx, ActivitySkippedExisting)
		return false, nil
	}

	res.State = types.SyncStateFetchDetail
	detail, err := s.details.GetActivity(ctx, summary.ID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeUpstreamRateLimited) {
			logger.WarnContext(ctx, "rate limited fetching detail, stopping", "error", err)
			res.StreamError = err.Error()
			return true, nil
		}
		logger.ErrorContext(ctx, "failed to fetch activity detail", "error", err)
		res.Failed++
		s.recorder.RecordActivity(ctx, ActivityFailed)
		return false, nil
	}
	if detail == nil {
		res.SkippedEmpty++
		s.recorder.RecordActivity(ctx, ActivitySkippedEmpty)
		logger.InfoContext(ctx, "activity detail empty, skipping")
		return false, nil
	}

	var enrichment types.Enrichment
	if detail.HasLocation() {
		res.State = types.SyncStateEnrich
		anchor := s.anchorFor(detail)
		result := s.enricher.Enrich(ctx, enrich.Request{
			Lat:     detail.StartLatLng.Lat,
			Lon:     detail.StartLatLng.Lon,
			Start:   anchor,
			Elapsed: time.Duration(detail.ElapsedTime) * time.Second,
		})
		enrichment = enrich.Flatten(result, anchor)
	}

	res.State = types.SyncStatePersist
	activity := ToActivity(detail, enrichment)
	if err := s.store.Save(ctx, activity); err != nil {
		if types.HasCode(err, types.ErrCodeConflictActivityExists) {
			res.SkippedExisting++
			s.recorder.RecordActivity(ctx, ActivitySkippedExisting)
			logger.InfoContext(ctx, "activity stored concurrently, skipping")
			return false, nil
		}
		logger.ErrorContext(ctx, "failed to save activity", "error", err)
		res.Failed++
		s.recorder.RecordActivity(ctx, ActivityFailed)
		return false, nil
	}

	res.Processed++
	s.recorder.RecordActivity(ctx, ActivityProcessed)
	logger.InfoContext(ctx, "activity synced",
		"distance_km", activity.DistanceKm,
		"enriched", !activity.Enrichment.IsEmpty(),
	)
	return false, nil
}

func (s *Syncer) anchorFor(d *types.ActivityDetail) time.Time {
	if s.anchor == AnchorDay {
		return d.SyncDay()
	}
	return d.StartDate
}

func (s *Syncer) fail(res *types.SyncResult, msg string) {
	res.State = types.SyncStateFailedFatal
	res.Success = false
	res.Message = msg
}

func (s *Syncer) finish(ctx context.Context, logger *slog.Logger, res types.SyncResult) {
	outcome := OutcomeCompleted
	switch {
	case !res.Success:
		outcome = OutcomeFailed
	case res.StreamError != "":
		outcome = OutcomePartial
	}
	s.recorder.RecordRun(ctx, outcome, res.Processed, res.Failed, res.Duration())

	s.lastMu.Lock()
	s.last = &res
	s.lastMu.Unlock()

	logger.InfoContext(ctx, "sync finished",
		"outcome", outcome,
		"processed", res.Processed,
		"skipped_type", res.SkippedType,
		"skipped_existing", res.SkippedExisting,
		"skipped_empty", res.SkippedEmpty,
		"failed", res.Failed,
		"duration", res.Duration(),
	)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "the beginning"
	}
	return t.UTC().Format(dateLayout)
}

// ToActivity converts a validated upstream detail and its flattened
// enrichment into the persisted row.
func ToActivity(d *types.ActivityDetail, e types.Enrichment) *types.Activity {
	a := &types.Activity{
		ID:                 d.ID,
		Name:               d.Name,
		Type:               d.Type,
		StartDate:          d.StartDate,
		StartDateLocal:     d.StartDateLocal,
		SyncDay:            d.SyncDay(),
		Timezone:           d.Timezone,
		DistanceKm:         d.DistanceMeters / 1000,
		ElapsedTime:        d.ElapsedTime,
		MovingTime:         d.MovingTime,
		AverageSpeed:       d.AverageSpeed,
		MaxSpeed:           d.MaxSpeed,
		AverageHeartrate:   d.AverageHeartrate,
		MaxHeartrate:       d.MaxHeartrate,
		AverageCadence:     d.AverageCadence,
		TotalElevationGain: d.TotalElevationGain,
		Calories:           d.Calories,
		SufferScore:        d.SufferScore,
		GearID:             d.GearID,
		DeviceName:         d.DeviceName,
		SummaryPolyline:    d.SummaryPolyline,
		Enrichment:         e,
	}
	if d.StartLatLng != nil {
		lat, lon := d.StartLatLng.Lat, d.StartLatLng.Lon
		a.StartLatitude = &lat
		a.StartLongitude = &lon
	}

	a.Splits = make([]types.Split, len(d.Splits))
	for i, sp := range d.Splits {
		sp.ActivityID = d.ID
		a.Splits[i] = sp
	}
	a.BestEfforts = make([]types.BestEffort, len(d.BestEfforts))
	for i, be := range d.BestEfforts {
		be.ActivityID = d.ID
		a.BestEfforts[i] = be
	}
	return a
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(context.Context, string, int, int, time.Duration) {}
func (nopRecorder) RecordActivity(context.Context, string)                     {}
