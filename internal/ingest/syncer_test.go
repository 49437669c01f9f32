package ingest

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcoach/internal/enrich"
	"runcoach/internal/stream"
	"runcoach/internal/types"
)

var now = time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

// --- fakes ---

type fakeAuth struct {
	err   error
	calls int
	gate  chan struct{}
	enter chan struct{}
}

func (f *fakeAuth) Authenticate(context.Context) error {
	f.calls++
	if f.enter != nil {
		close(f.enter)
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.err
}

type fakeStream struct {
	items   []types.ActivitySummary
	err     error
	cutoffs []time.Time
}

func (f *fakeStream) Activities(_ context.Context, cutoff time.Time) iter.Seq2[types.ActivitySummary, error] {
	f.cutoffs = append(f.cutoffs, cutoff)
	return func(yield func(types.ActivitySummary, error) bool) {
		for _, a := range f.items {
			if !cutoff.IsZero() && a.StartDate.Before(cutoff) {
				return
			}
			if !yield(a, nil) {
				return
			}
		}
		if f.err != nil {
			yield(types.ActivitySummary{}, f.err)
		}
	}
}

type fakeDetails struct {
	details map[int64]*types.ActivityDetail
	errs    map[int64]error
	calls   map[int64]int
}

func newFakeDetails() *fakeDetails {
	return &fakeDetails{
		details: map[int64]*types.ActivityDetail{},
		errs:    map[int64]error{},
		calls:   map[int64]int{},
	}
}

func (f *fakeDetails) GetActivity(_ context.Context, id int64) (*types.ActivityDetail, error) {
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.details[id], nil
}

type fakeEnricher struct {
	requests []enrich.Request
	result   types.EnrichmentResult
}

func (f *fakeEnricher) Enrich(_ context.Context, req enrich.Request) types.EnrichmentResult {
	f.requests = append(f.requests, req)
	return f.result
}

type memStore struct {
	mu          sync.Mutex
	rows        map[int64]*types.Activity
	saveErr     map[int64]error
	existsErr   error
	existsCalls int
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]*types.Activity{}, saveErr: map[int64]error{}}
}

func (m *memStore) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.rows[id]
	return ok, nil
}

func (m *memStore) LatestActivityStart(context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, a := range m.rows {
		if latest == nil || a.StartDate.After(*latest) {
			t := a.StartDate
			latest = &t
		}
	}
	return latest, nil
}

func (m *memStore) Save(_ context.Context, a *types.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveErr[a.ID]; err != nil {
		return err
	}
	if _, ok := m.rows[a.ID]; ok {
		return types.NewAppError(types.ErrCodeConflictActivityExists, "activity already stored", nil)
	}
	m.rows[a.ID] = a
	return nil
}

type recorded struct {
	runs       []string
	activities map[string]int
}

func (r *recorded) RecordRun(_ context.Context, outcome string, _, _ int, _ time.Duration) {
	r.runs = append(r.runs, outcome)
}

func (r *recorded) RecordActivity(_ context.Context, outcome string) {
	if r.activities == nil {
		r.activities = map[string]int{}
	}
	r.activities[outcome]++
}

// --- fixtures ---

func summary(id int64, typ string, ago time.Duration) types.ActivitySummary {
	return types.ActivitySummary{ID: id, Type: typ, Name: "activity", StartDate: now.Add(-ago)}
}

func detail(id int64, ago time.Duration, located bool) *types.ActivityDetail {
	start := now.Add(-ago)
	d := &types.ActivityDetail{
		ID:             id,
		Name:           "Easy Run",
		Type:           types.ActivityTypeRun,
		StartDate:      start,
		StartDateLocal: start.Add(time.Hour),
		DistanceMeters: 8040,
		ElapsedTime:    2700,
		MovingTime:     2650,
		Splits: []types.Split{
			{SplitNumber: 1, Distance: 1000, ElapsedTime: 330},
			{SplitNumber: 2, Distance: 1000, ElapsedTime: 335},
		},
		BestEfforts: []types.BestEffort{{Name: "1k", Distance: 1000, ElapsedTime: 320, StartDate: start}},
	}
	if located {
		d.StartLatLng = &types.LatLng{Lat: 38.7, Lon: -9.1}
	}
	return d
}

type harness struct {
	auth     *fakeAuth
	stream   *fakeStream
	details  *fakeDetails
	enricher *fakeEnricher
	store    *memStore
	rec      *recorded
	syncer   *Syncer
}

func newHarness(items ...types.ActivitySummary) *harness {
	temp := 18.0
	h := &harness{
		auth:     &fakeAuth{},
		stream:   &fakeStream{items: items},
		details:  newFakeDetails(),
		enricher: &fakeEnricher{result: types.EnrichmentResult{Weather: &types.WeatherSnapshot{Temperature: temp, Description: "clear"}}},
		store:    newMemStore(),
		rec:      &recorded{},
	}
	h.syncer = h.build(Config{})
	return h
}

func (h *harness) build(cfg Config) *Syncer {
	cfg.Auth = h.auth
	cfg.Stream = h.stream
	cfg.Details = h.details
	cfg.Enricher = h.enricher
	cfg.Store = h.store
	cfg.Recorder = h.rec
	cfg.Clock = fixedClock
	return NewSyncer(cfg)
}

// ============================================================
// Tests
// ============================================================

func TestSync_HappyPath(t *testing.T) {
	h := newHarness(summary(2, "Run", 24*time.Hour), summary(1, "Run", 48*time.Hour))
	h.details.details[2] = detail(2, 24*time.Hour, true)
	h.details.details[1] = detail(1, 48*time.Hour, false)

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, types.SyncStateCompleted, res.State)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, "Successfully synced 2 new activities from 2024-08-08 to 2024-08-15", res.Message)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []time.Time{now.AddDate(0, 0, -7)}, h.stream.cutoffs)

	located := h.store.rows[2]
	assert.Equal(t, 8.04, located.DistanceKm)
	require.NotNil(t, located.StartLatitude)
	require.NotNil(t, located.Enrichment.Temperature)
	assert.Equal(t, 18.0, *located.Enrichment.Temperature)
	assert.Equal(t, int64(2), located.Splits[0].ActivityID)
	assert.Equal(t, int64(2), located.BestEfforts[0].ActivityID)

	assert.Equal(t, []string{OutcomeCompleted}, h.rec.runs)
	assert.Equal(t, 2, h.rec.activities[ActivityProcessed])
}

func TestSync_DefaultRange(t *testing.T) {
	h := newHarness()
	res := h.syncer.Sync(context.Background(), "")
	require.True(t, res.Success)
	assert.Equal(t, types.RangeLast30Days, res.Range)
	assert.Equal(t, now.AddDate(0, 0, -30), h.stream.cutoffs[0])
}

func TestSync_InvalidRangeFailsBeforeAuthentication(t *testing.T) {
	h := newHarness()
	res := h.syncer.Sync(context.Background(), "Last Fortnight")

	assert.False(t, res.Success)
	assert.Equal(t, types.SyncStateFailedFatal, res.State)
	assert.Equal(t, "invalid time range: Last Fortnight", res.Message)
	assert.Zero(t, h.auth.calls)
	assert.Empty(t, h.stream.cutoffs)
}

func TestSync_AuthenticationFailureIsFatal(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour))
	h.auth.err = errors.New("refresh rejected")

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	assert.False(t, res.Success)
	assert.Equal(t, types.SyncStateFailedFatal, res.State)
	assert.Equal(t, "authentication failed", res.Message)
	assert.Empty(t, h.stream.cutoffs, "no upstream listing after auth failure")
	assert.Empty(t, h.store.rows)
	assert.Zero(t, h.store.existsCalls)
	assert.Equal(t, []string{OutcomeFailed}, h.rec.runs)
}

func TestSync_Idempotence(t *testing.T) {
	h := newHarness(summary(2, "Run", 24*time.Hour), summary(1, "Run", 48*time.Hour))
	h.details.details[2] = detail(2, 24*time.Hour, true)
	h.details.details[1] = detail(1, 48*time.Hour, true)

	first := h.syncer.Sync(context.Background(), types.RangeLast7Days)
	require.Equal(t, 2, first.Processed)

	second := h.syncer.Sync(context.Background(), types.RangeLast7Days)
	require.True(t, second.Success)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.SkippedExisting)
	assert.Contains(t, second.Message, "Successfully synced 0 new activities")
	assert.Len(t, h.store.rows, 2)
	assert.Equal(t, 1, h.details.calls[1], "no second detail fetch")
	assert.Equal(t, 1, h.details.calls[2])
	assert.Len(t, h.enricher.requests, 2, "no second enrichment")
}

func TestSync_TypeFilter(t *testing.T) {
	h := newHarness(summary(3, "Ride", time.Hour), summary(4, "Walk", 2*time.Hour), summary(5, "Run", 3*time.Hour))
	h.details.details[3] = detail(3, time.Hour, true)
	h.details.details[5] = detail(5, 3*time.Hour, true)

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.SkippedType)
	assert.NotContains(t, h.store.rows, int64(3))
	assert.NotContains(t, h.store.rows, int64(4))
	assert.Zero(t, h.details.calls[3])
	assert.Equal(t, 1, h.store.existsCalls, "type filter runs before the existence check")
}

func TestSync_DeduplicationGate(t *testing.T) {
	h := newHarness(summary(7, "Run", time.Hour))
	h.store.rows[7] = &types.Activity{ID: 7, StartDate: now.Add(-time.Hour)}
	h.details.details[7] = detail(7, time.Hour, true)

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	assert.Equal(t, 1, res.SkippedExisting)
	assert.Zero(t, h.details.calls[7])
	assert.Empty(t, h.enricher.requests)
}

func TestSync_NoLocationSkipsEnrichment(t *testing.T) {
	h := newHarness(summary(8, "Run", time.Hour))
	h.details.details[8] = detail(8, time.Hour, false)

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	require.Equal(t, 1, res.Processed)
	assert.Empty(t, h.enricher.requests)
	row := h.store.rows[8]
	assert.True(t, row.Enrichment.IsEmpty())
	assert.Nil(t, row.StartLatitude)
}

func TestSync_EnrichAnchor(t *testing.T) {
	for _, tt := range []struct {
		anchor string
		want   func(*types.ActivityDetail) time.Time
	}{
		{AnchorStart, func(d *types.ActivityDetail) time.Time { return d.StartDate }},
		{AnchorDay, func(d *types.ActivityDetail) time.Time { return d.SyncDay() }},
	} {
		t.Run(tt.anchor, func(t *testing.T) {
			h := newHarness(summary(9, "Run", 5*time.Hour))
			d := detail(9, 5*time.Hour, true)
			h.details.details[9] = d
			s := h.build(Config{EnrichAnchor: tt.anchor})

			s.Sync(context.Background(), types.RangeLast7Days)

			require.Len(t, h.enricher.requests, 1)
			req := h.enricher.requests[0]
			assert.Equal(t, tt.want(d), req.Start)
			assert.Equal(t, 45*time.Minute, req.Elapsed)
			assert.Equal(t, 38.7, req.Lat)
		})
	}
}

func TestSync_EmptyDetailSkippedNotCounted(t *testing.T) {
	h := newHarness(summary(10, "Run", time.Hour))

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	require.True(t, res.Success)
	assert.Zero(t, res.Processed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, res.SkippedEmpty)
	assert.Empty(t, h.store.rows)
}

func TestSync_PartialFailureIsolation(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour), summary(2, "Run", 2*time.Hour), summary(3, "Run", 3*time.Hour))
	for i := int64(1); i <= 3; i++ {
		h.details.details[i] = detail(i, time.Duration(i)*time.Hour, true)
	}
	h.store.saveErr[2] = types.NewAppError(types.ErrCodeInternalDB, "failed to insert splits", errors.New("check violation"))

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, h.store.rows, int64(1))
	assert.NotContains(t, h.store.rows, int64(2))
	assert.Contains(t, h.store.rows, int64(3))
}

func TestSync_DetailErrors(t *testing.T) {
	t.Run("generic error counts as failed and continues", func(t *testing.T) {
		h := newHarness(summary(1, "Run", time.Hour), summary(2, "Run", 2*time.Hour))
		h.details.errs[1] = types.NewAppError(types.ErrCodeUpstreamStrava, "strava returned 400", nil)
		h.details.details[2] = detail(2, 2*time.Hour, false)

		res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

		assert.True(t, res.Success)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, 1, res.Processed)
		assert.Empty(t, res.StreamError)
	})

	t.Run("rate limit ends the run as partial", func(t *testing.T) {
		h := newHarness(summary(1, "Run", time.Hour), summary(2, "Run", 2*time.Hour))
		h.details.errs[1] = types.NewAppError(types.ErrCodeUpstreamRateLimited, "rate limited", nil)
		h.details.details[2] = detail(2, 2*time.Hour, false)

		res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

		assert.True(t, res.Success)
		assert.Zero(t, res.Processed)
		assert.Zero(t, h.details.calls[2])
		assert.Contains(t, res.Message, "(stopped early: upstream_rate_limited: rate limited)")
		assert.Equal(t, []string{OutcomePartial}, h.rec.runs)
	})
}

func TestSync_StreamErrorKeepsProgress(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour))
	h.details.details[1] = detail(1, time.Hour, false)
	h.stream.err = errors.New("listing page 2: connection reset")

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, types.SyncStateCompleted, res.State)
	assert.Equal(t, "Successfully synced 1 new activities from 2024-08-08 to 2024-08-15 (stopped early: listing page 2: connection reset)", res.Message)
	assert.Contains(t, h.store.rows, int64(1))
}

func TestSync_StoreLookupFailureIsFatal(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour))
	h.store.existsErr = errors.New("connection refused")

	res := h.syncer.Sync(context.Background(), types.RangeLast7Days)

	assert.False(t, res.Success)
	assert.Equal(t, types.SyncStateFailedFatal, res.State)
	assert.Equal(t, "Error during sync: connection refused", res.Message)
}

func TestSync_PanicBecomesFatalResult(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour))
	h.details.details[1] = detail(1, time.Hour, true)
	h.enricher = nil
	s := h.build(Config{})

	var res types.SyncResult
	require.NotPanics(t, func() { res = s.Sync(context.Background(), types.RangeLast7Days) })
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Error during sync: ")
	require.NotNil(t, s.Last())
	assert.Equal(t, res.RunID, s.Last().RunID)
}

func TestSync_SinceLastSync(t *testing.T) {
	t.Run("uses newest stored start", func(t *testing.T) {
		h := newHarness()
		latest := now.Add(-72 * time.Hour)
		h.store.rows[1] = &types.Activity{ID: 1, StartDate: latest}

		res := h.syncer.Sync(context.Background(), types.RangeSinceLastRun)

		require.True(t, res.Success)
		assert.Equal(t, latest, h.stream.cutoffs[0])
		assert.Contains(t, res.Message, "from 2024-08-12 to 2024-08-15")
	})

	t.Run("empty store is unbounded", func(t *testing.T) {
		h := newHarness()
		res := h.syncer.Sync(context.Background(), types.RangeSinceLastRun)

		require.True(t, res.Success)
		assert.True(t, h.stream.cutoffs[0].IsZero())
		assert.Contains(t, res.Message, "from the beginning to 2024-08-15")
	})
}

func TestSync_ConcurrentRunRejected(t *testing.T) {
	h := newHarness()
	h.auth.gate = make(chan struct{})
	h.auth.enter = make(chan struct{})

	done := make(chan types.SyncResult)
	go func() { done <- h.syncer.Sync(context.Background(), types.RangeLast7Days) }()
	<-h.auth.enter

	assert.True(t, h.syncer.Running())
	second := h.syncer.Sync(context.Background(), types.RangeLast7Days)
	assert.False(t, second.Success)
	assert.Equal(t, "sync already in progress", second.Message)

	_, err := h.syncer.Start(context.Background(), types.RangeLast7Days)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictSyncRunning))

	close(h.auth.gate)
	first := <-done
	assert.True(t, first.Success)
	assert.False(t, h.syncer.Running())
	assert.Equal(t, []string{OutcomeRejected, OutcomeRejected, OutcomeCompleted}, h.rec.runs)
}

func TestStart_RunsInBackground(t *testing.T) {
	h := newHarness(summary(1, "Run", time.Hour))
	h.details.details[1] = detail(1, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	runID, err := h.syncer.Start(ctx, "")
	cancel() // the run is detached from the caller's context
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		last := h.syncer.Last()
		return last != nil && last.RunID == runID
	}, 2*time.Second, 5*time.Millisecond)

	last := h.syncer.Last()
	assert.True(t, last.Success)
	assert.Equal(t, 1, last.Processed)
}

func TestStart_InvalidRange(t *testing.T) {
	h := newHarness()
	_, err := h.syncer.Start(context.Background(), "Yesterday")
	assert.True(t, types.HasCode(err, types.ErrCodeValidationTimeRange))
	assert.False(t, h.syncer.Running())
}

// End to end through the real stream and enrichment joiner.

type listingSource struct {
	pages [][]types.ActivitySummary
	calls int
}

func (l *listingSource) ListActivities(_ context.Context, page, _ int) ([]types.ActivitySummary, error) {
	l.calls++
	if page > len(l.pages) {
		return nil, nil
	}
	return l.pages[page-1], nil
}

func (l *listingSource) Quota() (types.RateLimitQuota, bool) { return types.RateLimitQuota{}, false }

type weatherAPI struct{ calls int }

func (w *weatherAPI) HistoricalWeather(_ context.Context, _, _ float64, at time.Time) (*types.WeatherSnapshot, error) {
	w.calls++
	return &types.WeatherSnapshot{Time: at, Temperature: 21, FeelsLike: 21.5, Humidity: 60, Description: "clear sky"}, nil
}

func (w *weatherAPI) PollutionHistory(_ context.Context, _, _ float64, start, _ time.Time) ([]types.PollutionSample, error) {
	w.calls++
	return []types.PollutionSample{
		{Time: start.Add(-30 * time.Minute), AQI: 1},
		{Time: start.Add(10 * time.Minute), AQI: 2, Components: types.PollutantComponents{PM25: 8.5}},
	}, nil
}

func (w *weatherAPI) ReverseGeocode(context.Context, float64, float64) (*string, error) {
	w.calls++
	city := "Lisbon"
	return &city, nil
}

func TestSync_EndToEnd(t *testing.T) {
	src := &listingSource{pages: [][]types.ActivitySummary{{
		summary(11, "Run", 24*time.Hour),
		summary(12, "Ride", 36*time.Hour),
		summary(13, "Run", 48*time.Hour),
	}}}
	noSleep := func(context.Context, time.Duration) error { return nil }
	weather := &weatherAPI{}
	details := newFakeDetails()
	details.details[11] = detail(11, 24*time.Hour, true)
	details.details[13] = detail(13, 48*time.Hour, true)
	store := newMemStore()

	s := NewSyncer(Config{
		Auth:     &fakeAuth{},
		Stream:   stream.New(src, stream.DefaultConfig(), stream.WithSleep(noSleep)),
		Details:  details,
		Enricher: enrich.New(weather, nil),
		Store:    store,
		Clock:    fixedClock,
	})

	res := s.Sync(context.Background(), types.RangeLast7Days)

	require.True(t, res.Success)
	assert.Equal(t, "Successfully synced 2 new activities from 2024-08-08 to 2024-08-15", res.Message)
	require.Len(t, store.rows, 2)
	assert.Equal(t, 6, weather.calls)
	for _, id := range []int64{11, 13} {
		e := store.rows[id].Enrichment
		require.NotNil(t, e.Temperature)
		require.NotNil(t, e.AQI)
		assert.Equal(t, 2, *e.AQI, "closest sample to the start wins")
		assert.Equal(t, 8.5, *e.PM25)
		assert.Equal(t, "Lisbon", *e.CityName)
		assert.Equal(t, "clear sky", *e.WeatherDescription)
	}
	assert.Equal(t, 1, res.SkippedType)
}
