package events

import (
	"context"

	"github.com/arka/cart-service/models"
)

// Publisher emits cart lifecycle events. Callers treat failures as
// best-effort.
type Publisher interface {
	Publish(ctx context.Context, event models.CartEvent) error
	Close() error
}

// NopPublisher discards events. Used when EVENT_BUS=none.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.CartEvent) error { return nil }
func (NopPublisher) Close() error { return nil }
