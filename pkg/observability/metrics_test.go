package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (r *recordingCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	r.inputs = append(r.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, r.err
}

func TestMetrics_FansOutToBothSinks(t *testing.T) {
	// Arrange
	ctx := context.Background()
	cw := &recordingCloudWatch{}
	collector := NewCollector("CompanionLife")
	m := NewMetrics("CompanionLife/test", cw, collector, zap.NewNop())

	// Act
	m.RecordCount(ctx, MetricRequestsGenerated, "GenerateRequests", 2)
	m.RecordCount(ctx, MetricRequestsGenerated, "GenerateRequests", 1)
	m.RecordValue(ctx, MetricEscalationPressure, "Cadence", 4.5)
	m.RecordLatency(ctx, "ProcessDayTick", 20*time.Millisecond)

	// Assert
	require.Len(t, cw.inputs, 4)
	assert.Equal(t, "CompanionLife/test", aws.ToString(cw.inputs[0].Namespace))
	assert.Equal(t, MetricRequestsGenerated, aws.ToString(cw.inputs[0].MetricData[0].MetricName))

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.engineCounts.WithLabelValues(MetricRequestsGenerated, "GenerateRequests")))
	assert.Equal(t, 4.5, testutil.ToFloat64(collector.engineValues.WithLabelValues(MetricEscalationPressure, "Cadence")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.engineLatency))
}

func TestMetrics_NilAndFailingSinks(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordCount(ctx, MetricEscalations, "Monitor", 1) })

	failing := NewMetrics("ns", &recordingCloudWatch{err: errors.New("throttled")}, nil, zap.NewNop())
	assert.NotPanics(t, func() { failing.RecordLatency(ctx, "ResolveRequest", time.Millisecond) })
}

func TestCollector_Handler(t *testing.T) {
	// Arrange
	collector := NewCollector("companion-life")
	collector.ObserveHTTP(http.MethodGet, "/api/v1/companions/{companionID}/cadence", http.StatusOK, 5*time.Millisecond)
	rec := httptest.NewRecorder()

	// Act
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `companion_life_http_requests_total{method="GET",route="/api/v1/companions/{companionID}/cadence",status="200"} 1`)
}

func TestMetricNamespace(t *testing.T) {
	tests := map[string]string{
		"CompanionLife":      "companionlife",
		"companion-life":     "companion_life",
		"CompanionLife/prod": "companionlife_prod",
		"9lives":             "lives",
	}
	for in, want := range tests {
		assert.Equal(t, want, metricNamespace(in), in)
	}
}
