// Package config defines the runtime configuration for runcoach. It is
// loaded once at process start and treated as immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"runcoach/internal/types"
)

// SecretString is an alias for types.SecretString so callers can declare
// secrets without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Strava        StravaConfig
	Weather       WeatherConfig
	Sync          SyncConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	ReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	RequestTimeout     time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:8501"`
}

// DatabaseConfig holds the Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"5" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// StravaConfig holds the OAuth application credentials and API endpoints of
// the activity provider.
type StravaConfig struct {
	ClientID     string       `envconfig:"STRAVA_CLIENT_ID" validate:"required"`
	ClientSecret SecretString `envconfig:"STRAVA_CLIENT_SECRET" validate:"required"`
	// Optional; a token persisted by a previous run takes precedence.
	RefreshToken SecretString `envconfig:"STRAVA_REFRESH_TOKEN"`
	RedirectURL  string       `envconfig:"STRAVA_REDIRECT_URL" default:"http://localhost:8000/authorized" validate:"url"`
	BaseURL      string       `envconfig:"STRAVA_BASE_URL" default:"https://www.strava.com" validate:"url"`
	PageSize     int          `envconfig:"STRAVA_PAGE_SIZE" default:"30" validate:"min=1,max=200"`
}

// WeatherConfig holds the weather, air quality and geocoding provider key.
type WeatherConfig struct {
	APIKey  SecretString `envconfig:"OPENWEATHERMAP_API_KEY" validate:"required"`
	BaseURL string       `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
}

// SyncConfig tunes the sync pipeline's pacing and defaults.
type SyncConfig struct {
	RequestDelay    time.Duration `envconfig:"SYNC_REQUEST_DELAY" default:"10s"`
	QuotaThreshold  int           `envconfig:"SYNC_QUOTA_THRESHOLD" default:"10" validate:"min=0"`
	QuotaCooldown   time.Duration `envconfig:"SYNC_QUOTA_COOLDOWN" default:"60s"`
	DefaultRange    string        `envconfig:"SYNC_DEFAULT_RANGE" default:"Last 30 Days"`
	UpstreamRetries int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"0" validate:"min=0,max=5"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`

	// EnrichAnchor selects the instant weather is looked up at: the activity
	// start ("start") or the sync-day midnight ("day").
	EnrichAnchor string `envconfig:"SYNC_ENRICH_ANCHOR" default:"start" validate:"oneof=start day"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"RunCoach"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
