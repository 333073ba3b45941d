package services

import (
	"context"
	"time"

	"github.com/arka/cart-service/models"
	"github.com/arka/cart-service/notifier"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"go.uber.org/zap"
)

// AbandonedCartNotifier sends one recovery notice per abandoned cart.
type AbandonedCartNotifier struct {
	repo     repository.CartRepository
	composer *Composer
	notifier notifier.Notifier
	loginURL string
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewAbandonedCartNotifier(
	repo repository.CartRepository,
	composer *Composer,
	n notifier.Notifier,
	loginURL string,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *AbandonedCartNotifier {
	return &AbandonedCartNotifier{
		repo:     repo,
		composer: composer,
		notifier: n,
		loginURL: loginURL,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one notification pass; it satisfies jobs.Job.
func (s *AbandonedCartNotifier) Run(ctx context.Context) error {
	_, err := s.NotifyOnce(ctx)
	return err
}

// NotifyOnce notifies the owners of inactive, non-empty carts that have not
// been notified yet. A cart whose user or products cannot all be resolved is
// skipped this pass. It returns how many notices were sent.
func (s *AbandonedCartNotifier) NotifyOnce(ctx context.Context) (int, error) {
	carts, err := s.repo.FindInactiveUnnotified(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range carts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if s.notify(ctx, &carts[i]) {
			sent++
		}
	}

	if sent > 0 {
		s.logger.Info("Abandoned cart notifications sent",
			zap.Int("candidates", len(carts)),
			zap.Int("sent", sent),
		)
	}
	return sent, nil
}

func (s *AbandonedCartNotifier) notify(ctx context.Context, cart *models.Cart) bool {
	log := s.logger.With(
		zap.String("cart_id", cart.ID.String()),
		zap.String("user_id", cart.UserID),
	)

	if cart.Active || cart.NotificationSent || cart.LineCount == 0 {
		return false
	}

	lines, err := s.repo.Lines(ctx, cart.ID)
	if err != nil {
		log.Warn("Failed to load lines for notification", zap.Error(err))
		return false
	}
	if len(lines) == 0 {
		return false
	}

	user, products, err := s.composer.ResolveAll(ctx, cart.UserID, lines)
	if err != nil {
		log.Warn("Skipping abandoned cart notification", zap.Error(err))
		return false
	}
	if user.Email == "" {
		log.Warn("Skipping abandoned cart notification, user has no email")
		return false
	}

	msg := models.AbandonedCart{
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		LoginURL:      s.loginURL,
		Year:          s.now().Year(),
		Products:      make([]models.AbandonedProduct, 0, len(lines)),
	}
	for i, line := range lines {
		msg.Products = append(msg.Products, models.AbandonedProduct{
			Name:      products[i].Name,
			Quantity:  line.Quantity,
			UnitPrice: products[i].UnitPrice,
		})
	}

	if err := s.notifier.NotifyAbandonedCart(ctx, msg); err != nil {
		log.Warn("Failed to send abandoned cart notification", zap.Error(err))
		return false
	}

	marked, err := s.repo.MarkNotified(ctx, cart.ID)
	if err != nil {
		log.Warn("Notification sent but flag not saved, a duplicate notification will follow", zap.Error(err))
		recordCount(s.metrics, awspkg.MetricAbandonedCartNotified)
		return true
	}
	if !marked {
		log.Info("Cart reactivated while notifying")
	}
	recordCount(s.metrics, awspkg.MetricAbandonedCartNotified)
	return true
}
