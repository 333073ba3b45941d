package services

import (
	"context"
	"time"

	"github.com/arka/cart-service/events"
	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"go.uber.org/zap"
)

// AbandonmentSweeper deactivates carts idle for longer than the threshold.
type AbandonmentSweeper struct {
	repo      repository.CartRepository
	threshold time.Duration
	events    events.Publisher
	metrics   awspkg.MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

func NewAbandonmentSweeper(
	repo repository.CartRepository,
	threshold time.Duration,
	publisher events.Publisher,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *AbandonmentSweeper {
	return &AbandonmentSweeper{
		repo:      repo,
		threshold: threshold,
		events:    publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one sweep; it satisfies jobs.Job.
func (s *AbandonmentSweeper) Run(ctx context.Context) error {
	_, err := s.SweepOnce(ctx, s.now())
	return err
}

// SweepOnce flips every active cart whose last activity is before
// now-threshold to inactive. A cart that fails to update is logged and left
// for the next sweep. It returns how many carts were deactivated.
func (s *AbandonmentSweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.threshold)

	carts, err := s.repo.FindIdleActive(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for i := range carts {
		if err := ctx.Err(); err != nil {
			return deactivated, err
		}
		cart := &carts[i]
		if !cart.IdleBefore(cutoff) {
			continue
		}

		changed, err := s.repo.Deactivate(ctx, cart.ID, cutoff)
		if err != nil {
			s.logger.Warn("Failed to deactivate cart",
				zap.String("cart_id", cart.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !changed {
			continue
		}

		deactivated++
		recordCount(s.metrics, awspkg.MetricCartsAbandoned)
		s.publish(ctx, cart)
	}

	if deactivated > 0 {
		s.logger.Info("Abandonment sweep finished",
			zap.Int("scanned", len(carts)),
			zap.Int("deactivated", deactivated),
			zap.Time("cutoff", cutoff),
		)
	}
	return deactivated, nil
}

func (s *AbandonmentSweeper) publish(ctx context.Context, cart *models.Cart) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, models.CartEvent{
		EventType:  models.EventCartAbandoned,
		CartID:     cart.ID.String(),
		UserID:     cart.UserID,
		LineCount:  cart.LineCount,
		TotalUnits: cart.TotalUnits,
		TotalPrice: cart.TotalPrice,
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish abandoned event",
			zap.String("cart_id", cart.ID.String()),
			zap.Error(err),
		)
	}
}
