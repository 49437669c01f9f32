package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"runcoach/internal/app"
	"runcoach/internal/auth"
	"runcoach/internal/db"
	"runcoach/internal/types"
)

type syncRunner interface {
	Sync(ctx context.Context, selector string) types.SyncResult
}

type authenticator interface {
	Authenticate(ctx context.Context) error
	Token() *types.OAuthToken
}

type goalStore interface {
	Latest(ctx context.Context) (*types.Goal, error)
	Save(ctx context.Context, narrative string) (*types.Goal, error)
}

type statsReader interface {
	Overview(ctx context.Context, now time.Time) ([]types.PeriodStats, error)
	Period(ctx context.Context, period string, now time.Time) (*types.PeriodStats, error)
}

type activityLister interface {
	ListRecent(ctx context.Context, limit int) ([]types.Activity, error)
}

// backend is what a command needs from the assembled application.
type backend struct {
	syncer     syncRunner
	auth       authenticator
	goals      goalStore
	stats      statsReader
	activities activityLister
	schema     func(ctx context.Context) error
	close      func()
}

// openBackend assembles the application. interactive installs the console
// code provider so authentication can fall back to the browser flow.
// Replaced in tests.
var openBackend = func(ctx context.Context, interactive bool) (*backend, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := app.LoadConfig(files...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// Logs go to stderr so stdout carries only command output.
	logger := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.Environment)

	var opts app.Options
	if interactive {
		opts.CodeProvider = auth.NewConsoleCodeProvider()
	}
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	return &backend{
		syncer:     a.Syncer,
		auth:       a.Credentials,
		goals:      a.Goals,
		stats:      a.Stats,
		activities: a.Activities,
		schema: func(ctx context.Context) error {
			return db.EnsureSchema(ctx, a.Pool)
		},
		close: a.Close,
	}, nil
}

func withBackend(cmd *cobra.Command, interactive bool, run func(*backend) error) error {
	b, err := openBackend(cmd.Context(), interactive)
	if err != nil {
		return err
	}
	defer b.close()
	return run(b)
}
