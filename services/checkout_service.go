package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/arka/cart-service/clients"
	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/common/logger"
	"github.com/arka/cart-service/events"
	"github.com/arka/cart-service/lock"
	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"go.uber.org/zap"
)

// CheckoutService turns a cart into a submitted order.
type CheckoutService interface {
	Checkout(ctx context.Context, userID, idempotencyKey string) (*models.CartView, error)
	// Wait blocks until every pending post-checkout cleanup has finished.
	Wait()
}

type CheckoutConfig struct {
	CleanupTimeout time.Duration
	IdempotencyTTL time.Duration
}

type checkoutServiceImpl struct {
	repo     repository.CartRepository
	orders   clients.OrderSubmitter
	composer *Composer
	locker   lock.Locker
	idem     repository.IdempotencyStore
	events   events.Publisher
	cfg      CheckoutConfig
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger

	cleanups sync.WaitGroup
}

// NewCheckoutService wires the checkout flow. idem may be nil, in which case
// Idempotency-Key is ignored.
func NewCheckoutService(
	repo repository.CartRepository,
	orders clients.OrderSubmitter,
	composer *Composer,
	locker lock.Locker,
	idem repository.IdempotencyStore,
	publisher events.Publisher,
	cfg CheckoutConfig,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) CheckoutService {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &checkoutServiceImpl{
		repo:     repo,
		orders:   orders,
		composer: composer,
		locker:   locker,
		idem:     idem,
		events:   publisher,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Checkout loads the cart, rejects it if empty, submits the order built from
// the stored lines and returns the view of the cart as it was before
// checkout. The cart is then deleted in the background; a failed delete is
// logged and counted but never reported to the caller.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID, idempotencyKey string) (*models.CartView, error) {
	log := logger.For(ctx, s.logger).With(zap.String("user_id", userID))

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to acquire cart lock", err)
	}
	defer unlock()

	if view, ok := s.replay(ctx, log, userID, idempotencyKey); ok {
		return view, nil
	}

	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, cartLoadError(userID, err)
	}
	if cart.LineCount == 0 {
		return nil, apperrors.EmptyCart(userID)
	}

	lines, err := s.repo.Lines(ctx, cart.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load cart lines", err)
	}
	if len(lines) == 0 {
		return nil, apperrors.EmptyCart(userID)
	}

	ack, err := s.orders.SubmitOrder(ctx, buildOrder(userID, lines))
	if err != nil {
		recordCount(s.metrics, awspkg.MetricCartCheckoutFailed)
		log.Error("Order submission failed", zap.Error(err))
		return nil, apperrors.OrderSubmissionFailed(userID, err)
	}
	recordCount(s.metrics, awspkg.MetricCartCheckouts)
	log.Info("Order submitted",
		zap.String("cart_id", cart.ID.String()),
		zap.String("order_id", ack.OrderID),
		zap.Int("lines", len(lines)),
	)

	view, viewErr := s.composer.BuildView(ctx, cart, lines)

	// Cleanup and the event go out even when the view failed.
	s.cleanup(ctx, cart)
	s.publish(context.WithoutCancel(ctx), log, cart, ack.OrderID)

	if viewErr != nil {
		return nil, apperrors.Internal("order submitted but cart view unavailable", viewErr)
	}
	s.remember(ctx, log, userID, idempotencyKey, view)
	return view, nil
}

func buildOrder(userID string, lines []models.CartLine) models.OrderRequest {
	order := models.OrderRequest{
		UserID: userID,
		Lines:  make([]models.OrderLine, 0, len(lines)),
	}
	for _, l := range lines {
		order.Lines = append(order.Lines, models.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return order
}

// cleanup deletes the cart on a context detached from the request so that a
// client disconnect does not cancel it.
func (s *checkoutServiceImpl) cleanup(ctx context.Context, cart *models.Cart) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CleanupTimeout)
	log := logger.For(ctx, s.logger)
	cartID := cart.ID
	userID := cart.UserID
	version := cart.Version

	s.cleanups.Add(1)
	go func() {
		defer s.cleanups.Done()
		defer cancel()

		deleted, err := s.repo.Delete(cleanupCtx, cartID, version)
		if err != nil {
			recordCount(s.metrics, awspkg.MetricCartCheckoutCleanupFailed)
			log.Error("Failed to delete cart after checkout",
				zap.String("cart_id", cartID.String()),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}
		if !deleted {
			log.Info("Cart changed after checkout, leaving it in place",
				zap.String("cart_id", cartID.String()),
				zap.String("user_id", userID),
			)
			return
		}
		log.Info("Cart deleted after checkout",
			zap.String("cart_id", cartID.String()),
			zap.String("user_id", userID),
		)
	}()
}

func (s *checkoutServiceImpl) Wait() {
	s.cleanups.Wait()
}

func (s *checkoutServiceImpl) publish(ctx context.Context, log *zap.Logger, cart *models.Cart, orderID string) {
	if s.events == nil {
		return
	}
	event := models.CartEvent{
		EventType:  models.EventCartCheckedOut,
		CartID:     cart.ID.String(),
		UserID:     cart.UserID,
		OrderID:    orderID,
		LineCount:  cart.LineCount,
		TotalUnits: cart.TotalUnits,
		TotalPrice: cart.TotalPrice,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish checkout event", zap.Error(err))
	}
}

// replay returns the stored view for a previously completed checkout with the
// same key.
func (s *checkoutServiceImpl) replay(ctx context.Context, log *zap.Logger, userID, key string) (*models.CartView, bool) {
	if s.idem == nil || key == "" {
		return nil, false
	}
	payload, ok, err := s.idem.Get(ctx, userID, key)
	if err != nil {
		log.Warn("Idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var view models.CartView
	if err := json.Unmarshal(payload, &view); err != nil {
		log.Warn("Discarding unreadable idempotency record", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	log.Info("Replaying checkout", zap.String("idempotency_key", key))
	return &view, true
}

func (s *checkoutServiceImpl) remember(ctx context.Context, log *zap.Logger, userID, key string, view *models.CartView) {
	if s.idem == nil || key == "" {
		return
	}
	payload, err := json.Marshal(view)
	if err == nil {
		err = s.idem.Set(ctx, userID, key, payload, s.cfg.IdempotencyTTL)
	}
	if err != nil {
		log.Warn("Failed to store idempotency record", zap.String("idempotency_key", key), zap.Error(err))
	}
}
