// Package stream turns the paged Strava activity listing into a lazily
// consumed, rate-limited sequence that stops at a cutoff instant.
package stream

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"runcoach/internal/types"
)

// Pacing defaults; only PageSize is applied automatically when zero.
const (
	DefaultPageSize       = 30
	DefaultRequestDelay   = 10 * time.Second
	DefaultQuotaThreshold = 10
	DefaultQuotaCooldown  = 60 * time.Second
)

// Source is the slice of the activity provider the stream needs.
type Source interface {
	ListActivities(ctx context.Context, page, perPage int) ([]types.ActivitySummary, error)
	Quota() (types.RateLimitQuota, bool)
}

// QuotaObserver is notified of every quota reading taken between elements.
type QuotaObserver func(remaining int)

// Config tunes pacing.
type Config struct {
	PageSize       int
	RequestDelay   time.Duration
	QuotaThreshold int
	QuotaCooldown  time.Duration
}

// DefaultConfig returns the pacing used against the public Strava API.
func DefaultConfig() Config {
	return Config{
		PageSize:       DefaultPageSize,
		RequestDelay:   DefaultRequestDelay,
		QuotaThreshold: DefaultQuotaThreshold,
		QuotaCooldown:  DefaultQuotaCooldown,
	}
}

// Stream yields activity summaries newest first.
type Stream struct {
	src      Source
	cfg      Config
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	observer QuotaObserver
}

// Option configures a Stream.
type Option func(*Stream)

// WithSleep replaces the context-aware sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Stream) { s.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithQuotaObserver registers a callback for quota readings.
func WithQuotaObserver(fn QuotaObserver) Option {
	return func(s *Stream) { s.observer = fn }
}

// New creates a Stream over src.
func New(src Source, cfg Config, opts ...Option) *Stream {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	s := &Stream{
		src:    src,
		cfg:    cfg,
		logger: slog.Default(),
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activities returns a single-use sequence of summaries whose start is at or
// after cutoff. A zero cutoff is unbounded.
//
// The sequence pages through the listing until an empty page or the first
// summary older than cutoff. After each yielded element it sleeps
// RequestDelay, then sleeps QuotaCooldown if the provider's remaining quota
// is below QuotaThreshold. An upstream error or context cancellation is
// yielded once as (zero, err) and ends the sequence.
func (s *Stream) Activities(ctx context.Context, cutoff time.Time) iter.Seq2[types.ActivitySummary, error] {
	return func(yield func(types.ActivitySummary, error) bool) {
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(types.ActivitySummary{}, err)
				return
			}

			batch, err := s.src.ListActivities(ctx, page, s.cfg.PageSize)
			if err != nil {
				s.logger.WarnContext(ctx, "activity listing failed", "page", page, "error", err)
				yield(types.ActivitySummary{}, err)
				return
			}
			if len(batch) == 0 {
				s.logger.DebugContext(ctx, "activity listing exhausted", "pages", page-1)
				return
			}

			for _, a := range batch {
				if !cutoff.IsZero() && a.StartDate.Before(cutoff) {
					s.logger.DebugContext(ctx, "reached cutoff", "activity_id", a.ID, "cutoff", cutoff)
					return
				}
				if !yield(a, nil) {
					return
				}
				if err := s.pace(ctx); err != nil {
					yield(types.ActivitySummary{}, err)
					return
				}
			}
		}
	}
}

func (s *Stream) pace(ctx context.Context) error {
	if err := s.sleep(ctx, s.cfg.RequestDelay); err != nil {
		return err
	}

	quota, ok := s.src.Quota()
	if !ok {
		return nil
	}
	remaining := quota.Remaining()
	if s.observer != nil {
		s.observer(remaining)
	}
	if remaining < s.cfg.QuotaThreshold {
		s.logger.WarnContext(ctx, "rate limit nearly exhausted, cooling down",
			"remaining", remaining,
			"cooldown", s.cfg.QuotaCooldown,
		)
		return s.sleep(ctx, s.cfg.QuotaCooldown)
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
