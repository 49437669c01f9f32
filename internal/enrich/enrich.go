// Package enrich joins an activity's start location and time window with
// historical weather, air quality and a place name.
package enrich

import (
	"context"
	"log/slog"
	"time"

	"runcoach/internal/types"
)

// Provider is the weather service the Enricher queries.
type Provider interface {
	HistoricalWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherSnapshot, error)
	PollutionHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]types.PollutionSample, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (*string, error)
}

// Request identifies the place and time window to enrich.
type Request struct {
	Lat     float64
	Lon     float64
	Start   time.Time
	Elapsed time.Duration
}

// Enricher performs the three lookups. Each facet fails independently.
type Enricher struct {
	provider Provider
	logger   *slog.Logger
}

// New creates an Enricher. A nil logger falls back to slog.Default().
func New(provider Provider, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{provider: provider, logger: logger}
}

// Enrich runs weather at Start, pollution over [Start, Start+Elapsed] and a
// reverse geocode, in that order. A failed call is logged and leaves only its
// own facet empty; Enrich itself never fails.
func (e *Enricher) Enrich(ctx context.Context, req Request) types.EnrichmentResult {
	logger := types.LoggerFromContext(ctx, e.logger).With("lat", req.Lat, "lon", req.Lon)
	var res types.EnrichmentResult

	weather, err := e.provider.HistoricalWeather(ctx, req.Lat, req.Lon, req.Start)
	if err != nil {
		logger.WarnContext(ctx, "weather lookup failed", "error", err)
	} else {
		res.Weather = weather
	}

	end := req.Start.Add(req.Elapsed)
	pollution, err := e.provider.PollutionHistory(ctx, req.Lat, req.Lon, req.Start, end)
	if err != nil {
		logger.WarnContext(ctx, "air quality lookup failed", "error", err)
	} else {
		res.Pollution = pollution
	}

	city, err := e.provider.ReverseGeocode(ctx, req.Lat, req.Lon)
	if err != nil {
		logger.WarnContext(ctx, "reverse geocode failed", "error", err)
	} else {
		res.CityName = city
	}

	return res
}

// ClosestSample returns the sample whose time is nearest to at. Ties go to
// the earliest sample in slice order. ok is false for an empty slice.
func ClosestSample(samples []types.PollutionSample, at time.Time) (types.PollutionSample, bool) {
	if len(samples) == 0 {
		return types.PollutionSample{}, false
	}
	best := 0
	bestDiff := absDuration(samples[0].Time.Sub(at))
	for i := 1; i < len(samples); i++ {
		if d := absDuration(samples[i].Time.Sub(at)); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return samples[best], true
}

// Flatten maps a result onto the persisted enrichment columns, choosing the
// pollution sample closest to at. Facets are independent: a missing weather
// snapshot never clears air quality and vice versa.
func Flatten(res types.EnrichmentResult, at time.Time) types.Enrichment {
	var out types.Enrichment

	if w := res.Weather; w != nil {
		out.Temperature = ptr(w.Temperature)
		out.FeelsLike = ptr(w.FeelsLike)
		out.Humidity = ptr(w.Humidity)
		if w.Description != "" {
			out.WeatherDescription = ptr(w.Description)
		}
	}

	if s, ok := ClosestSample(res.Pollution, at); ok {
		c := s.Components
		out.AQI = ptr(s.AQI)
		out.CO = ptr(c.CO)
		out.NO = ptr(c.NO)
		out.NO2 = ptr(c.NO2)
		out.O3 = ptr(c.O3)
		out.SO2 = ptr(c.SO2)
		out.PM25 = ptr(c.PM25)
		out.PM10 = ptr(c.PM10)
		out.NH3 = ptr(c.NH3)
	}

	out.CityName = res.CityName
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func ptr[T any](v T) *T { return &v }
