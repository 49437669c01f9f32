package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch metric and dimension names.
const (
	MetricSyncRun          = "SyncRun"
	MetricSyncProcessed    = "SyncActivitiesProcessed"
	MetricSyncFailed       = "SyncActivitiesFailed"
	MetricSyncDuration     = "SyncDuration"
	MetricActivityOutcome  = "SyncActivity"
	MetricQuotaRemaining   = "StravaQuotaRemaining"
	DimOutcome             = "Outcome"
	defaultQuotaPutTimeout = 5 * time.Second
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes sync metrics with PutMetricData. Publishing
// errors are logged and dropped.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ SyncRecorder = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a recorder publishing under namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordRun emits the run count (by outcome), activity totals and duration in
// a single request.
func (m *CloudWatchRecorder) RecordRun(ctx context.Context, outcome string, processed, failed int, d time.Duration) {
	dims := []cwtypes.Dimension{{Name: aws.String(DimOutcome), Value: aws.String(outcome)}}
	m.put(ctx, "run",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricSyncRun),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricSyncProcessed),
			Value:      aws.Float64(float64(processed)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricSyncFailed),
			Value:      aws.Float64(float64(failed)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricSyncDuration),
			Value:      aws.Float64(float64(d.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	)
}

func (m *CloudWatchRecorder) RecordActivity(ctx context.Context, outcome string) {
	m.put(ctx, "activity", cwtypes.MetricDatum{
		MetricName: aws.String(MetricActivityOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{{Name: aws.String(DimOutcome), Value: aws.String(outcome)}},
	})
}

func (m *CloudWatchRecorder) RecordQuota(remaining int) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQuotaPutTimeout)
	defer cancel()
	m.put(ctx, "quota", cwtypes.MetricDatum{
		MetricName: aws.String(MetricQuotaRemaining),
		Value:      aws.Float64(float64(remaining)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchRecorder) put(ctx context.Context, kind string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metric", "kind", kind, "error", err)
	}
}
