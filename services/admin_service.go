package services

import (
	"context"
	"errors"

	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/models"
	"github.com/arka/cart-service/repository"
	"github.com/google/uuid"
)

// AdminService exposes cart listings across users.
type AdminService interface {
	ListCarts(ctx context.Context) ([]models.CartSummary, error)
	ListAbandonedCarts(ctx context.Context) ([]models.CartSummary, error)
	GetCart(ctx context.Context, cartID uuid.UUID) (*models.CartView, error)
}

type adminServiceImpl struct {
	repo     repository.CartRepository
	composer *Composer
}

func NewAdminService(repo repository.CartRepository, composer *Composer) AdminService {
	return &adminServiceImpl{repo: repo, composer: composer}
}

func (s *adminServiceImpl) ListCarts(ctx context.Context) ([]models.CartSummary, error) {
	carts, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list carts", err)
	}
	return s.summaries(ctx, carts)
}

// ListAbandonedCarts lists carts the abandonment sweep has deactivated.
func (s *adminServiceImpl) ListAbandonedCarts(ctx context.Context) ([]models.CartSummary, error) {
	carts, err := s.repo.FindInactive(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list abandoned carts", err)
	}
	return s.summaries(ctx, carts)
}

func (s *adminServiceImpl) GetCart(ctx context.Context, cartID uuid.UUID) (*models.CartView, error) {
	cart, err := s.repo.FindByID(ctx, cartID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.CartNotFoundByID(cartID.String())
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load cart", err)
	}
	lines, err := s.repo.Lines(ctx, cart.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load cart lines", err)
	}
	return s.composer.BuildView(ctx, cart, lines)
}

func (s *adminServiceImpl) summaries(ctx context.Context, carts []models.Cart) ([]models.CartSummary, error) {
	userIDs := make([]string, 0, len(carts))
	for _, c := range carts {
		userIDs = append(userIDs, c.UserID)
	}
	names, err := s.composer.UserNames(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.CartSummary, 0, len(carts))
	for _, c := range carts {
		out = append(out, models.CartSummary{
			CartID:         c.ID,
			UserID:         c.UserID,
			UserName:       names[c.UserID],
			LineCount:      c.LineCount,
			Active:         c.Active,
			CreatedAt:      c.CreatedAt,
			LastMovementAt: c.LastMovementAt,
		})
	}
	return out, nil
}
