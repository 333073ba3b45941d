package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder is what middleware and services record through. Pass
// NopMetrics rather than nil when CloudWatch is off.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
	IsEnabled() bool
}

// MetricsClient puts data points into one CloudWatch namespace. Every
// datum carries the client's default dimensions; per-call dimensions win
// on a name clash.
type MetricsClient struct {
	client    *cloudwatch.Client
	namespace string
	defaults  map[string]string
	enabled   bool
}

func NewMetricsClient(cfg sdkaws.Config, namespace string, defaults map[string]string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "ECommerce"
	}
	return &MetricsClient{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		defaults:  defaults,
		enabled:   enabled,
	}
}

func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.put(ctx, datum(metricName, 1, types.StandardUnitCount, m.defaults, dimensions))
}

// RecordLatency records duration in milliseconds.
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	return m.put(ctx, datum(metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, m.defaults, dimensions))
}

func (m *MetricsClient) IsEnabled() bool {
	return m.enabled
}

func (m *MetricsClient) put(ctx context.Context, d types.MetricDatum) error {
	if !m.enabled {
		return nil
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{d},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", sdkaws.ToString(d.MetricName), err)
	}
	return nil
}

// datum merges defaults and dims into sorted CloudWatch dimensions.
func datum(name string, value float64, unit types.StandardUnit, defaults, dims map[string]string) types.MetricDatum {
	merged := make(map[string]string, len(defaults)+len(dims))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range dims {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Dimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(merged[k])})
	}
	return types.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       unit,
		Timestamp:  sdkaws.Time(time.Now()),
		Dimensions: out,
	}
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }
func (NopMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}
func (NopMetrics) IsEnabled() bool { return false }

const (
	MetricHTTPRequests  = "HTTPRequests"
	MetricHTTPLatency   = "HTTPLatency"
	MetricHTTP4xx       = "HTTP4xxErrors"
	MetricHTTP5xx       = "HTTP5xxErrors"
	MetricHTTPThrottled = "HTTPThrottled"

	MetricCartCheckouts             = "CartCheckouts"
	MetricCartCheckoutFailed        = "CartCheckoutFailed"
	MetricCartCheckoutCleanupFailed = "CartCheckoutCleanupFailed"
	MetricCartsAbandoned            = "CartsAbandoned"
	MetricAbandonedCartNotified     = "AbandonedCartNotifications"
	MetricEnrichmentFallbacks       = "EnrichmentFallbacks"
	MetricMutationConflicts         = "CartMutationConflicts"
)
