package reminder

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricNamespace is the CloudWatch namespace all reminder metrics land in.
const MetricNamespace = "SeasonMail/Reminders"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchJobMetrics publishes run and sweep outcomes to CloudWatch.
//
// Metrics emitted:
//   - EmailsSent, SendFailures, ParentsSkipped, SessionErrors: Dims {EmailType} -- per run
//   - RetryRowsSelected, RetryRowsClosedOut, RetryGroupsFailed: no dims -- per sweep
//
// Publish failures are logged and swallowed; telemetry never fails a run.
type CloudWatchJobMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertion that CloudWatchJobMetrics implements JobMetrics.
var _ JobMetrics = (*CloudWatchJobMetrics)(nil)

// NewCloudWatchJobMetrics creates a publisher for the reminder namespace.
func NewCloudWatchJobMetrics(client CloudWatchClient, logger *slog.Logger) *CloudWatchJobMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchJobMetrics{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// RecordRun emits the per-campaign counters for one job run.
func (m *CloudWatchJobMetrics) RecordRun(ctx context.Context, stats *RunStats) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String("EmailType"),
			Value: aws.String(string(stats.EmailType)),
		},
	}
	m.put(ctx, []cwtypes.MetricDatum{
		counter("EmailsSent", stats.EmailsSent, dims),
		counter("SendFailures", stats.SendFailures, dims),
		counter("ParentsSkipped", stats.ParentsSkipped, dims),
		counter("SessionErrors", stats.SessionErrors, dims),
	})
}

// RecordSweep emits the retry sweep counters.
func (m *CloudWatchJobMetrics) RecordSweep(ctx context.Context, stats *SweepStats) {
	m.put(ctx, []cwtypes.MetricDatum{
		counter("RetryRowsSelected", stats.RowsSelected, nil),
		counter("RetryRowsClosedOut", stats.RowsClosedOut, nil),
		counter("RetryGroupsFailed", stats.GroupsFailed, nil),
	})
}

func (m *CloudWatchJobMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish reminder metrics", "error", err.Error())
	}
}

func counter(name string, value int, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(value)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}
