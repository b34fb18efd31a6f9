package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names published by the engine.
const (
	MetricRequestsGenerated  = "RequestsGenerated"
	MetricGenerationRefused  = "GenerationRefused"
	MetricRequestsResolved   = "RequestsResolved"
	MetricRitualsCreated     = "RitualsCreated"
	MetricRitualsCompleted   = "RitualsCompleted"
	MetricEscalations        = "Escalations"
	MetricEscalationPressure = "EscalationPressure"
	MetricOperationLatency   = "OperationLatency"
)

// MetricsAPI is the CloudWatch subset used here.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes engine metrics to CloudWatch and, when a collector is
// attached, to Prometheus. A nil Metrics drops everything.
type Metrics struct {
	namespace string
	client    MetricsAPI
	collector *Collector
	logger    *zap.Logger
}

// NewMetrics creates a new metrics instance. client and collector may be nil.
func NewMetrics(namespace string, client MetricsAPI, collector *Collector, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		collector: collector,
		logger:    logger,
	}
}

// RecordCount records a count metric dimensioned by operation
func (m *Metrics) RecordCount(ctx context.Context, metricName, operation string, value float64) {
	if m == nil {
		return
	}
	m.collector.addCount(metricName, operation, value)
	m.put(ctx, metricName, operation, value, types.StandardUnitCount)
}

// RecordValue records a unitless gauge such as escalation pressure
func (m *Metrics) RecordValue(ctx context.Context, metricName, operation string, value float64) {
	if m == nil {
		return
	}
	m.collector.setValue(metricName, operation, value)
	m.put(ctx, metricName, operation, value, types.StandardUnitNone)
}

// RecordLatency records latency for any operation
func (m *Metrics) RecordLatency(ctx context.Context, operation string, latency time.Duration) {
	if m == nil {
		return
	}
	m.collector.observeLatency(operation, latency)
	m.put(ctx, MetricOperationLatency, operation, float64(latency.Milliseconds()), types.StandardUnitMilliseconds)
}

func (m *Metrics) put(ctx context.Context, metricName, operation string, value float64, unit types.StandardUnit) {
	if m == nil || m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Dimensions: []types.Dimension{
					{Name: aws.String("Operation"), Value: aws.String(operation)},
				},
				Value:     aws.Float64(value),
				Unit:      unit,
				Timestamp: aws.Time(time.Now()),
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		// Metrics never fail the operation
		m.logger.Warn("Failed to send metrics", zap.String("metric", metricName), zap.Error(err))
	}
}
