package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names emitted to CloudWatch.
const (
	metricJobOutcome    = "ReportJobOutcome"
	metricEmailDispatch = "EmailDispatch"
	metricSweepSent     = "ReminderSweepSent"
	metricSweepFailed   = "ReminderSweepFailed"
	metricSweepSkipped  = "ReminderSweepSkipped"

	dimTaskType = "TaskType"
	dimResult   = "Result"
	dimKind     = "Kind"
)

// CloudWatchAPI abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink publishes pipeline outcome metrics to a CloudWatch
// namespace. Publish failures are logged and swallowed; telemetry never
// fails a job.
type CloudWatchSink struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchSink creates a CloudWatchSink publishing to the given
// namespace.
func NewCloudWatchSink(client CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatchSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchSink{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// Compile-time assertion that CloudWatchSink implements Sink.
var _ Sink = (*CloudWatchSink)(nil)

// RecordJobOutcome implements Sink.
func (s *CloudWatchSink) RecordJobOutcome(ctx context.Context, taskType, result string) {
	s.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricJobOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(dimTaskType), Value: aws.String(taskType)},
			{Name: aws.String(dimResult), Value: aws.String(result)},
		},
	})
}

// RecordEmailDispatch implements Sink.
func (s *CloudWatchSink) RecordEmailDispatch(ctx context.Context, kind, result string) {
	s.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricEmailDispatch),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(dimKind), Value: aws.String(kind)},
			{Name: aws.String(dimResult), Value: aws.String(result)},
		},
	})
}

// RecordSweepOutcome implements Sink.
func (s *CloudWatchSink) RecordSweepOutcome(ctx context.Context, sent, failed, skipped int) {
	s.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(metricSweepSent),
			Value:      aws.Float64(float64(sent)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(metricSweepFailed),
			Value:      aws.Float64(float64(failed)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(metricSweepSkipped),
			Value:      aws.Float64(float64(skipped)),
			Unit:       cwtypes.StandardUnitCount,
		},
	)
}

// put publishes the data points, logging and swallowing any failure.
func (s *CloudWatchSink) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	}
	if _, err := s.client.PutMetricData(ctx, input); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish metrics",
			"namespace", s.namespace,
			"error", err,
		)
	}
}
