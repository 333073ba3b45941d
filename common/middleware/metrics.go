package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/gin-gonic/gin"
)

// Metrics records request count, latency and error class for every route
// except skipPaths. Dimensions use the route template, never the raw path.
func Metrics(recorder awspkg.MetricsRecorder, serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		go recordRequest(recorder, time.Since(start), status, map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusCodeToRange(status),
		})
	}
}

func recordRequest(recorder awspkg.MetricsRecorder, took time.Duration, status int, dims map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = recorder.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
	_ = recorder.RecordLatency(ctx, awspkg.MetricHTTPLatency, took, dims)
	switch {
	case status == http.StatusTooManyRequests:
		_ = recorder.RecordCount(ctx, awspkg.MetricHTTPThrottled, dims)
	case status >= 500:
		_ = recorder.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
	case status >= 400:
		_ = recorder.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
	}
}

func statusCodeToRange(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
