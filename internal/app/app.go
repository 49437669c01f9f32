// Package app assembles runcoach from its configuration. The API server and
// the CLI share it so both drive the same pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"runcoach/internal/auth"
	"runcoach/internal/config"
	"runcoach/internal/db"
	"runcoach/internal/enrich"
	"runcoach/internal/external"
	"runcoach/internal/ingest"
	"runcoach/internal/observability"
	"runcoach/internal/stream"
)

// Options selects the interactive collaborators of a process.
type Options struct {
	// CodeProvider, when set, lets authentication fall back to the
	// authorization-code flow. Servers leave it nil.
	CodeProvider auth.CodeProvider
}

// App holds the wired components. Close releases the database pool.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool       *pgxpool.Pool
	Activities *db.ActivityStore
	Stats      *db.StatsRepository
	Goals      *db.GoalRepository
	Tokens     *db.TokenRepository

	Credentials *auth.Credentials
	Strava      *external.StravaClient
	Weather     *external.OpenWeatherClient
	Syncer      *ingest.Syncer

	Metrics Metrics
}

// New connects to the database, ensures the schema and builds the sync
// pipeline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	metrics, err := NewMetrics(ctx, cfg.Observability, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Activities: db.NewActivityStore(pool),
		Stats:      db.NewStatsRepository(pool),
		Goals:      db.NewGoalRepository(pool),
		Tokens:     db.NewTokenRepository(pool),
		Metrics:    metrics,
	}
	a.buildPipeline(opts)

	logger.Info("runcoach initialised",
		"environment", cfg.Environment,
		"metrics_backend", cfg.Observability.MetricsBackend,
		"default_range", cfg.Sync.DefaultRange,
	)
	return a, nil
}

func (a *App) buildPipeline(opts Options) {
	cfg := a.Config
	httpClient := &http.Client{Timeout: cfg.Sync.UpstreamTimeout}
	policy := external.NoRetryPolicy()
	policy.MaxRetries = cfg.Sync.UpstreamRetries

	credOpts := []auth.Option{
		auth.WithTokenStore(a.Tokens),
		auth.WithHTTPClient(httpClient),
		auth.WithLogger(a.Logger.With("component", "auth")),
	}
	if opts.CodeProvider != nil {
		credOpts = append(credOpts, auth.WithCodeProvider(opts.CodeProvider))
	}
	a.Credentials = auth.NewCredentials(auth.Config{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: cfg.Strava.ClientSecret,
		RefreshToken: cfg.Strava.RefreshToken,
		RedirectURL:  cfg.Strava.RedirectURL,
		BaseURL:      cfg.Strava.BaseURL,
	}, credOpts...)

	a.Strava = external.NewStravaClient(httpClient, policy, external.StravaClientConfig{
		Tokens:  a.Credentials,
		BaseURL: cfg.Strava.BaseURL,
		Logger:  a.Logger.With("component", "strava"),
	})
	a.Weather = external.NewOpenWeatherClient(httpClient, policy, external.OpenWeatherClientConfig{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
		Logger:  a.Logger.With("component", "openweather"),
	})

	pacing := stream.Config{
		PageSize:       cfg.Strava.PageSize,
		RequestDelay:   cfg.Sync.RequestDelay,
		QuotaThreshold: cfg.Sync.QuotaThreshold,
		QuotaCooldown:  cfg.Sync.QuotaCooldown,
	}
	activities := stream.New(a.Strava, pacing,
		stream.WithLogger(a.Logger.With("component", "stream")),
		stream.WithQuotaObserver(a.Metrics.Recorder.RecordQuota),
	)

	a.Syncer = ingest.NewSyncer(ingest.Config{
		Auth:         a.Credentials,
		Stream:       activities,
		Details:      a.Strava,
		Enricher:     enrich.New(a.Weather, a.Logger.With("component", "enrich")),
		Store:        a.Activities,
		Recorder:     a.Metrics.Recorder,
		DefaultRange: cfg.Sync.DefaultRange,
		EnrichAnchor: cfg.Sync.EnrichAnchor,
		Logger:       a.Logger.With("component", "sync"),
	})
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Metrics bundles the selected telemetry backend. Registry and HTTP are nil
// unless the backend is Prometheus.
type Metrics struct {
	Backend  string
	Recorder observability.SyncRecorder
	Registry *prometheus.Registry
	HTTP     *observability.PrometheusRecorder
}

// NewMetrics builds the recorder named by cfg.MetricsBackend.
func NewMetrics(ctx context.Context, cfg config.ObservabilityConfig, logger *slog.Logger) (Metrics, error) {
	m := Metrics{Backend: cfg.MetricsBackend}

	switch cfg.MetricsBackend {
	case observability.BackendPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := observability.NewPrometheusRecorder(reg, "runcoach")
		if err != nil {
			return m, fmt.Errorf("registering prometheus collectors: %w", err)
		}
		m.Recorder, m.Registry, m.HTTP = rec, reg, rec

	case observability.BackendCloudWatch:
		client, err := newCloudWatchClient(ctx, cfg.AWSRegion)
		if err != nil {
			return m, err
		}
		m.Recorder = observability.NewCloudWatchRecorder(client, cfg.MetricNamespace, logger.With("component", "metrics"))

	case observability.BackendNone, "":
		m.Backend = observability.BackendNone
		m.Recorder = observability.NopRecorder{}

	default:
		return m, fmt.Errorf("unknown metrics backend %q", cfg.MetricsBackend)
	}

	return m, nil
}
