package services

import (
	"context"
	"time"

	awspkg "github.com/arka/cart-service/pkg/aws"
)

// recordCount ships a counter without holding up the caller.
func recordCount(m awspkg.MetricsRecorder, name string) {
	if m == nil || !m.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordCount(ctx, name, nil)
	}()
}
