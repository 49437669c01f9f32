package external

import (
	"context"
	"time"

	"runcoach/internal/types"
)

// TokenSource supplies a currently valid bearer token for the activity
// provider. auth.Credentials satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ActivityProvider abstracts the fitness-tracking API.
type ActivityProvider interface {
	// ListActivities returns one page of the athlete's activities, newest
	// first. An empty slice means there are no more pages.
	ListActivities(ctx context.Context, page, perPage int) ([]types.ActivitySummary, error)

	// GetActivity returns the full record for one activity, or nil when the
	// provider no longer has it.
	GetActivity(ctx context.Context, id int64) (*types.ActivityDetail, error)

	// Quota returns the last observed rate-limit budget. ok is false until a
	// response carrying rate-limit headers has been seen.
	Quota() (quota types.RateLimitQuota, ok bool)
}

// WeatherProvider abstracts the historical weather, air quality and reverse
// geocoding API. Empty upstream payloads are reported as nil results, not
// errors.
type WeatherProvider interface {
	HistoricalWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherSnapshot, error)
	PollutionHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]types.PollutionSample, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (*string, error)
}

var (
	_ ActivityProvider = (*StravaClient)(nil)
	_ WeatherProvider  = (*OpenWeatherClient)(nil)
)
