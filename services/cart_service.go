package services

import (
	"context"
	"errors"
	"time"

	"github.com/arka/cart-service/clients"
	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/common/logger"
	"github.com/arka/cart-service/lock"
	"github.com/arka/cart-service/models"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService owns the line mutation rules and cart aggregates.
type CartService interface {
	AddOrUpdateLine(ctx context.Context, userID, productID string, quantity int64) (*models.CartView, error)
	RemoveLine(ctx context.Context, userID, productID string) (*models.CartView, error)
	Clear(ctx context.Context, userID string) (*models.CartView, error)
	View(ctx context.Context, userID string) (*models.CartView, error)
}

type cartServiceImpl struct {
	repo     repository.CartRepository
	products clients.ProductLookup
	composer *Composer
	locker   lock.Locker
	retries  int
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewCartService(
	repo repository.CartRepository,
	products clients.ProductLookup,
	composer *Composer,
	locker lock.Locker,
	retries int,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) CartService {
	if retries < 1 {
		retries = 1
	}
	return &cartServiceImpl{
		repo:     repo,
		products: products,
		composer: composer,
		locker:   locker,
		retries:  retries,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// mutation computes the line writes for one attempt. It returns the changes
// to persist and the cart's full line list after applying them.
type mutation func(cart *models.Cart, lines []models.CartLine) (models.LineChanges, []models.CartLine, error)

// AddOrUpdateLine puts quantity units of productID in the user's cart,
// creating the cart on first use. A repeated add replaces the quantity and
// re-snapshots the line price at the current unit price.
func (s *cartServiceImpl) AddOrUpdateLine(ctx context.Context, userID, productID string, quantity int64) (*models.CartView, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if apperrors.As(err).Kind == apperrors.KindInternal {
			return nil, apperrors.ExternalServiceUnavailable("product", err)
		}
		return nil, err
	}
	if err := checkStock(product, productID, quantity); err != nil {
		return nil, err
	}

	lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(quantity))

	cart, lines, err := s.mutate(ctx, userID, true, func(cart *models.Cart, lines []models.CartLine) (models.LineChanges, []models.CartLine, error) {
		next := append([]models.CartLine(nil), lines...)
		for i := range next {
			if next[i].ProductID == productID {
				next[i].Quantity = quantity
				next[i].LinePriceTotal = lineTotal
				return models.LineChanges{Upsert: []*models.CartLine{&next[i]}}, next, nil
			}
		}
		next = append(next, models.CartLine{
			CartID:         cart.ID,
			ProductID:      productID,
			Quantity:       quantity,
			LinePriceTotal: lineTotal,
			CreatedAt:      s.now(),
		})
		return models.LineChanges{Upsert: []*models.CartLine{&next[len(next)-1]}}, next, nil
	})
	if err != nil {
		return nil, err
	}

	logger.For(ctx, s.logger).Info("Cart line updated",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int64("quantity", quantity),
	)
	return s.composer.BuildView(ctx, cart, lines)
}

// checkStock rejects non-positive quantities, products with no stock and
// requests above the available stock.
func checkStock(p *models.Product, productID string, quantity int64) error {
	if quantity <= 0 {
		return apperrors.InvalidQuantity(quantity)
	}
	if p.Stock == nil || *p.Stock <= 0 {
		return apperrors.NoStock(productID)
	}
	if *p.Stock < quantity {
		return apperrors.InsufficientStock(productID, *p.Stock, quantity)
	}
	return nil
}

func (s *cartServiceImpl) RemoveLine(ctx context.Context, userID, productID string) (*models.CartView, error) {
	cart, lines, err := s.mutate(ctx, userID, false, func(_ *models.Cart, lines []models.CartLine) (models.LineChanges, []models.CartLine, error) {
		for i := range lines {
			if lines[i].ProductID != productID {
				continue
			}
			next := make([]models.CartLine, 0, len(lines)-1)
			next = append(next, lines[:i]...)
			next = append(next, lines[i+1:]...)
			return models.LineChanges{Delete: []uuid.UUID{lines[i].ID}}, next, nil
		}
		return models.LineChanges{}, nil, apperrors.ProductNotInCart(productID)
	})
	if err != nil {
		return nil, err
	}

	logger.For(ctx, s.logger).Info("Cart line removed",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
	)
	return s.composer.BuildView(ctx, cart, lines)
}

func (s *cartServiceImpl) Clear(ctx context.Context, userID string) (*models.CartView, error) {
	cart, lines, err := s.mutate(ctx, userID, false, func(_ *models.Cart, lines []models.CartLine) (models.LineChanges, []models.CartLine, error) {
		ids := make([]uuid.UUID, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ID)
		}
		return models.LineChanges{Delete: ids}, []models.CartLine{}, nil
	})
	if err != nil {
		return nil, err
	}

	logger.For(ctx, s.logger).Info("Cart cleared", zap.String("user_id", userID))
	return s.composer.BuildView(ctx, cart, lines)
}

func (s *cartServiceImpl) View(ctx context.Context, userID string) (*models.CartView, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, cartLoadError(userID, err)
	}
	lines, err := s.repo.Lines(ctx, cart.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load cart lines", err)
	}
	return s.composer.BuildView(ctx, cart, lines)
}

// mutate runs fn as a read-modify-write of the user's cart under the user's
// lock. The write is conditional on the cart version read in the same
// attempt; on a version conflict the whole attempt is repeated, up to
// s.retries times.
func (s *cartServiceImpl) mutate(ctx context.Context, userID string, create bool, fn mutation) (*models.Cart, []models.CartLine, error) {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, nil, apperrors.Internal("failed to acquire cart lock", err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		cart, err := s.load(ctx, userID, create)
		if err != nil {
			return nil, nil, err
		}
		lines, err := s.repo.Lines(ctx, cart.ID)
		if err != nil {
			return nil, nil, apperrors.Internal("failed to load cart lines", err)
		}

		changes, next, err := fn(cart, lines)
		if err != nil {
			return nil, nil, err
		}
		cart.Recompute(next)
		cart.Touch(s.now())

		err = s.repo.Apply(ctx, cart, changes)
		if err == nil {
			return cart, next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, nil, apperrors.Internal("failed to save cart", err)
		}

		lastErr = err
		recordCount(s.metrics, awspkg.MetricMutationConflicts)
		logger.For(ctx, s.logger).Warn("Cart version conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, nil, apperrors.ConcurrentModification(userID, lastErr)
}

// load fetches the user's cart, creating an empty one when create is set. A
// create that loses the race to a concurrent one re-reads the winner.
func (s *cartServiceImpl) load(ctx context.Context, userID string, create bool) (*models.Cart, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrNotFound) || !create {
		return nil, cartLoadError(userID, err)
	}

	cart = &models.Cart{
		UserID:     userID,
		Active:     true,
		TotalPrice: decimal.Zero,
		Version:    1,
		CreatedAt:  s.now(),
	}
	err = s.repo.Create(ctx, cart)
	if errors.Is(err, repository.ErrDuplicateCart) {
		cart, err = s.repo.FindByUserID(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to create cart", err)
	}

	logger.For(ctx, s.logger).Info("Cart created",
		zap.String("user_id", userID),
		zap.String("cart_id", cart.ID.String()),
	)
	return cart, nil
}

func cartLoadError(userID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.CartNotFound(userID)
	}
	return apperrors.Internal("failed to load cart", err)
}
