package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/arka/cart-service/common/logger"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestRequestID_PropagatesOrMints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-1", seen)
	assert.Equal(t, "rid-1", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, w.Header().Get(requestIDHeader), seen)
}

func TestAuthMiddleware_SetsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), AuthMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	r.GET("/admin", AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Role", "admin")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, time.Minute)
	rl.Limiter("a")
	rl.Limiter("b")

	assert.Equal(t, 0, rl.Evict(time.Now()))
	assert.Equal(t, 2, rl.Evict(time.Now().Add(2*time.Minute)))
}

func TestStatusCodeToRange(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToRange(201))
	assert.Equal(t, "4xx", statusCodeToRange(409))
	assert.Equal(t, "unknown", statusCodeToRange(42))
}

type recordingMetrics struct {
	mu    sync.Mutex
	names []string
	dims  []map[string]string
	wg    sync.WaitGroup
}

func (r *recordingMetrics) RecordCount(_ context.Context, name string, dims map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.dims = append(r.dims, dims)
	if name == awspkg.MetricHTTPRequests {
		r.wg.Done()
	}
	return nil
}

func (r *recordingMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (r *recordingMetrics) IsEnabled() bool { return true }

func TestMetrics_UsesRouteTemplateAndSkipsHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &recordingMetrics{}
	r := gin.New()
	r.Use(Metrics(rec, "cart-service", "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/items/:productId", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })

	rec.wg.Add(1)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/items/p-1", nil))
	rec.wg.Wait()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.names) == 2
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{awspkg.MetricHTTPRequests, awspkg.MetricHTTPThrottled}, rec.names)
	assert.Equal(t, "/items/:productId", rec.dims[0]["Path"])
	assert.Equal(t, "4xx", rec.dims[0]["Status"])
}
