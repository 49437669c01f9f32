package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"runcoach/internal/types"
)

const openWeatherAPIBase = "https://api.openweathermap.org"

// OpenWeatherClientConfig holds the configuration for creating an
// OpenWeatherClient.
type OpenWeatherClientConfig struct {
	APIKey  types.SecretString
	BaseURL string // Override for testing; defaults to openWeatherAPIBase
	Logger  *slog.Logger
}

// OpenWeatherClient implements WeatherProvider over the One Call 3.0 time
// machine, air pollution history and reverse geocoding endpoints.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewOpenWeatherClient creates an OpenWeatherClient with the given retry
// policy.
func NewOpenWeatherClient(httpClient *http.Client, policy RetryPolicy, cfg OpenWeatherClientConfig) *OpenWeatherClient {
	return NewOpenWeatherClientWithBase(NewBaseClient(httpClient, "openweather", policy), cfg)
}

// NewOpenWeatherClientWithBase creates an OpenWeatherClient on a
// pre-configured BaseClient.
func NewOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherClientConfig) *OpenWeatherClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openWeatherAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type timemachineResponse struct {
	Data []struct {
		Dt        int64   `json:"dt"`
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Weather   []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"data"`
}

type pollutionResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components types.PollutantComponents `json:"components"`
	} `json:"list"`
}

type geocodeEntry struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// HistoricalWeather returns the observed weather at the given instant, in
// metric units. A response with no data points yields (nil, nil).
func (c *OpenWeatherClient) HistoricalWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherSnapshot, error) {
	q := c.coords(lat, lon)
	q.Set("dt", strconv.FormatInt(at.Unix(), 10))
	q.Set("units", "metric")

	var body timemachineResponse
	if err := c.getJSON(ctx, "/data/3.0/onecall/timemachine", q, "HistoricalWeather", &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}

	point := body.Data[0]
	snap := &types.WeatherSnapshot{
		Time:        time.Unix(point.Dt, 0).UTC(),
		Temperature: point.Temp,
		FeelsLike:   point.FeelsLike,
		Humidity:    point.Humidity,
	}
	if len(point.Weather) > 0 {
		snap.Description = point.Weather[0].Description
	}
	return snap, nil
}

// PollutionHistory returns the hourly air-quality samples between start and
// end, in upstream order.
func (c *OpenWeatherClient) PollutionHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]types.PollutionSample, error) {
	q := c.coords(lat, lon)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))

	var body pollutionResponse
	if err := c.getJSON(ctx, "/data/2.5/air_pollution/history", q, "PollutionHistory", &body); err != nil {
		return nil, err
	}

	samples := make([]types.PollutionSample, 0, len(body.List))
	for _, item := range body.List {
		samples = append(samples, types.PollutionSample{
			Time:       time.Unix(item.Dt, 0).UTC(),
			AQI:        item.Main.AQI,
			Components: item.Components,
		})
	}
	return samples, nil
}

// ReverseGeocode returns the name of the place closest to the coordinate, or
// nil when the geocoder knows none.
func (c *OpenWeatherClient) ReverseGeocode(ctx context.Context, lat, lon float64) (*string, error) {
	q := c.coords(lat, lon)
	q.Set("limit", "1")

	var body []geocodeEntry
	if err := c.getJSON(ctx, "/geo/1.0/reverse", q, "ReverseGeocode", &body); err != nil {
		return nil, err
	}
	if len(body) == 0 || body[0].Name == "" {
		return nil, nil
	}
	name := body[0].Name
	return &name, nil
}

func (c *OpenWeatherClient) coords(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return q
}

// getJSON performs a GET on path and decodes the body into out. The API key
// is appended last and never logged.
func (c *OpenWeatherClient) getJSON(ctx context.Context, path string, q url.Values, operation string, out any) error {
	c.logger.DebugContext(ctx, "calling OpenWeather", "operation", operation, "path", path, "params", q.Encode())

	q.Set("appid", c.apiKey.Unmask())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create OpenWeather request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		redactURLError(err)
		return c.wrapError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("failed to decode OpenWeather %s response", operation),
			err,
		)
	}
	return nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("OpenWeather API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamWeather,
		fmt.Sprintf("OpenWeather %s failed with status %d", operation, resp.StatusCode),
		fmt.Errorf("openweather %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		map[string]any{"status_code": resp.StatusCode},
	)
}

func (c *OpenWeatherClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(
		types.ErrCodeUpstreamWeather,
		fmt.Sprintf("OpenWeather %s request failed", operation),
		err,
	)
}

// redactURLError strips the query string, which carries the API key, from a
// transport error so it can be logged.
func redactURLError(err error) {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if before, _, found := strings.Cut(urlErr.URL, "?"); found {
			urlErr.URL = before + "?REDACTED"
		}
	}
}
