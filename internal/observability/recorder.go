// Package observability records sync and HTTP metrics to Prometheus or
// CloudWatch.
package observability

import (
	"context"
	"time"
)

// SyncRecorder receives sync pipeline telemetry. Implementations must be
// safe for concurrent use and must never fail the caller.
type SyncRecorder interface {
	RecordRun(ctx context.Context, outcome string, processed, failed int, d time.Duration)
	RecordActivity(ctx context.Context, outcome string)
	RecordQuota(remaining int)
}

// Backend names accepted by METRICS_BACKEND.
const (
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
	BackendNone       = "none"
)

// NopRecorder discards everything.
type NopRecorder struct{}

var _ SyncRecorder = NopRecorder{}

func (NopRecorder) RecordRun(context.Context, string, int, int, time.Duration) {}
func (NopRecorder) RecordActivity(context.Context, string)                     {}
func (NopRecorder) RecordQuota(int)                                            {}
