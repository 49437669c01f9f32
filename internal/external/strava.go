package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"runcoach/internal/types"
)

// stravaAPIBase is the default Strava host. Overridable in tests via
// StravaClientConfig.BaseURL.
const stravaAPIBase = "https://www.strava.com"

// StravaClientConfig holds the configuration for creating a StravaClient.
type StravaClientConfig struct {
	Tokens  TokenSource
	BaseURL string // Override for testing; defaults to stravaAPIBase
	Logger  *slog.Logger
}

// StravaClient implements ActivityProvider over the Strava v3 REST API. Every
// response's X-RateLimit-* headers are recorded so callers can pace
// themselves.
type StravaClient struct {
	base    *BaseClient
	tokens  TokenSource
	baseURL string
	logger  *slog.Logger

	mu       sync.Mutex
	quota    types.RateLimitQuota
	hasQuota bool
}

// NewStravaClient creates a StravaClient with the given retry policy.
func NewStravaClient(httpClient *http.Client, policy RetryPolicy, cfg StravaClientConfig) *StravaClient {
	c := newStravaClient(cfg)
	c.base = NewBaseClient(httpClient, "strava", policy, WithResponseObserver(c.recordQuota))
	return c
}

func newStravaClient(cfg StravaClientConfig) *StravaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stravaAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StravaClient{
		tokens:  cfg.Tokens,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// stravaSummary is one element of GET /api/v3/athlete/activities.
type stravaSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
}

type stravaDetail struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`
	ElapsedTime        int       `json:"elapsed_time"`
	MovingTime         int       `json:"moving_time"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
	AverageCadence     *float64  `json:"average_cadence"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Calories           *float64  `json:"calories"`
	SufferScore        *float64  `json:"suffer_score"`
	GearID             *string   `json:"gear_id"`
	DeviceName         *string   `json:"device_name"`
	StartLatLng        []float64 `json:"start_latlng"`
	Map                *struct {
		SummaryPolyline *string `json:"summary_polyline"`
	} `json:"map"`
	SplitsMetric []stravaSplit      `json:"splits_metric"`
	BestEfforts  []stravaBestEffort `json:"best_efforts"`
}

type stravaSplit struct {
	Split                     int      `json:"split"`
	Distance                  float64  `json:"distance"`
	ElapsedTime               int      `json:"elapsed_time"`
	MovingTime                int      `json:"moving_time"`
	AverageSpeed              float64  `json:"average_speed"`
	AverageHeartrate          *float64 `json:"average_heartrate"`
	ElevationDifference       *float64 `json:"elevation_difference"`
	AverageGradeAdjustedSpeed *float64 `json:"average_grade_adjusted_speed"`
}

type stravaBestEffort struct {
	Name        string    `json:"name"`
	Distance    float64   `json:"distance"`
	ElapsedTime int       `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
}

// ListActivities fetches one page of the athlete's activity list.
func (c *StravaClient) ListActivities(ctx context.Context, page, perPage int) ([]types.ActivitySummary, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	resp, err := c.get(ctx, "/api/v3/athlete/activities?"+q.Encode(), "ListActivities")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "ListActivities")
	}

	var raw []stravaSummary
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStrava, "failed to decode activity list", err)
	}

	out := make([]types.ActivitySummary, 0, len(raw))
	for i, s := range raw {
		if s.ID == 0 || s.StartDate.IsZero() {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUpstreamData,
				"activity list entry is missing id or start_date",
				nil,
				map[string]any{"index": i, "page": page},
			)
		}
		out = append(out, types.ActivitySummary(s))
	}

	c.logger.DebugContext(ctx, "listed activities", "page", page, "count", len(out))
	return out, nil
}

// GetActivity fetches the detail record for id. A 404 yields (nil, nil).
func (c *StravaClient) GetActivity(ctx context.Context, id int64) (*types.ActivityDetail, error) {
	path := fmt.Sprintf("/api/v3/activities/%d?include_all_efforts=false", id)
	resp, err := c.get(ctx, path, "GetActivity")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.WarnContext(ctx, "activity not found upstream", "activity_id", id)
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "GetActivity")
	}

	var raw stravaDetail
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStrava, "failed to decode activity detail", err)
	}

	detail, err := raw.toDomain()
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Quota returns the last rate-limit budget reported by Strava.
func (c *StravaClient) Quota() (types.RateLimitQuota, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quota, c.hasQuota
}

// recordQuota parses X-RateLimit-Limit and X-RateLimit-Usage from resp.
// Each header holds "<15-minute>,<daily>". Malformed headers are ignored.
func (c *StravaClient) recordQuota(resp *http.Response) {
	limit, okLimit := parseRatePair(resp.Header.Get("X-RateLimit-Limit"))
	usage, okUsage := parseRatePair(resp.Header.Get("X-RateLimit-Usage"))
	if !okLimit || !okUsage {
		return
	}

	c.mu.Lock()
	c.quota = types.RateLimitQuota{
		ShortLimit: limit[0],
		ShortUsage: usage[0],
		DailyLimit: limit[1],
		DailyUsage: usage[1],
	}
	c.hasQuota = true
	c.mu.Unlock()
}

func parseRatePair(v string) ([2]int, bool) {
	var out [2]int
	first, second, ok := strings.Cut(v, ",")
	if !ok {
		return out, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(first))
	b, errB := strconv.Atoi(strings.TrimSpace(second))
	if errA != nil || errB != nil {
		return out, false
	}
	out[0], out[1] = a, b
	return out, true
}

func (c *StravaClient) get(ctx context.Context, path, operation string) (*http.Response, error) {
	if c.tokens == nil {
		return nil, types.NewAppError(types.ErrCodeAuthStravaFailed, "no Strava token source configured", nil)
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Strava request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError(operation, err)
	}
	return resp, nil
}

func (c *StravaClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("Strava API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(
			types.ErrCodeAuthStravaFailed,
			fmt.Sprintf("Strava rejected the access token (%d)", resp.StatusCode),
			fmt.Errorf("strava %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStrava,
		fmt.Sprintf("Strava %s failed with status %d", operation, resp.StatusCode),
		fmt.Errorf("strava %s returned %d: %s", operation, resp.StatusCode, bodyStr),
	)
}

// wrapError keeps AppError codes produced by BaseClient and wraps anything
// else as an upstream failure.
func (c *StravaClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStrava,
		fmt.Sprintf("Strava %s request failed", operation),
		err,
	)
}

func (d stravaDetail) toDomain() (*types.ActivityDetail, error) {
	if d.ID == 0 || d.Type == "" || d.StartDate.IsZero() {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationUpstreamData,
			"activity detail is missing id, type or start_date",
			nil,
			map[string]any{"activity_id": d.ID},
		)
	}

	out := &types.ActivityDetail{
		ID:                 d.ID,
		Name:               d.Name,
		Type:               d.Type,
		SportType:          d.SportType,
		StartDate:          d.StartDate.UTC(),
		StartDateLocal:     d.StartDateLocal,
		Timezone:           d.Timezone,
		DistanceMeters:     d.Distance,
		ElapsedTime:        d.ElapsedTime,
		MovingTime:         d.MovingTime,
		AverageSpeed:       d.AverageSpeed,
		MaxSpeed:           d.MaxSpeed,
		AverageHeartrate:   d.AverageHeartrate,
		MaxHeartrate:       d.MaxHeartrate,
		AverageCadence:     d.AverageCadence,
		TotalElevationGain: d.TotalElevationGain,
		Calories:           d.Calories,
		GearID:             d.GearID,
		DeviceName:         d.DeviceName,
	}
	if d.SufferScore != nil {
		score := int(math.Round(*d.SufferScore))
		out.SufferScore = &score
	}
	if d.Map != nil && d.Map.SummaryPolyline != nil && *d.Map.SummaryPolyline != "" {
		out.SummaryPolyline = d.Map.SummaryPolyline
	}
	// Strava sends [] for activities recorded without GPS.
	if len(d.StartLatLng) == 2 {
		out.StartLatLng = &types.LatLng{Lat: d.StartLatLng[0], Lon: d.StartLatLng[1]}
	}

	seen := make(map[int]bool, len(d.SplitsMetric))
	for _, s := range d.SplitsMetric {
		if seen[s.Split] {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationUpstreamData,
				"activity detail has duplicate split numbers",
				nil,
				map[string]any{"activity_id": d.ID, "split": s.Split},
			)
		}
		seen[s.Split] = true
		out.Splits = append(out.Splits, types.Split{
			ActivityID:                d.ID,
			SplitNumber:               s.Split,
			Distance:                  s.Distance,
			ElapsedTime:               s.ElapsedTime,
			MovingTime:                s.MovingTime,
			AverageSpeed:              s.AverageSpeed,
			AverageHeartrate:          s.AverageHeartrate,
			ElevationDifference:       s.ElevationDifference,
			AverageGradeAdjustedSpeed: s.AverageGradeAdjustedSpeed,
		})
	}
	slices.SortFunc(out.Splits, func(a, b types.Split) int {
		return a.SplitNumber - b.SplitNumber
	})

	for _, e := range d.BestEfforts {
		out.BestEfforts = append(out.BestEfforts, types.BestEffort{
			ActivityID:  d.ID,
			Name:        e.Name,
			Distance:    e.Distance,
			ElapsedTime: e.ElapsedTime,
			StartDate:   e.StartDate.UTC(),
		})
	}

	return out, nil
}
