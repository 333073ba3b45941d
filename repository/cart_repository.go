package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arka/cart-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("cart not found")
	ErrDuplicateCart   = errors.New("cart already exists for user")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// CartRepository defines data-access operations for carts and their lines.
type CartRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Cart, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	Lines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error)
	Apply(ctx context.Context, cart *models.Cart, changes models.LineChanges) error
	Delete(ctx context.Context, cartID uuid.UUID, version int64) (bool, error)
	FindAll(ctx context.Context) ([]models.Cart, error)
	FindInactive(ctx context.Context) ([]models.Cart, error)
	FindIdleActive(ctx context.Context, cutoff time.Time) ([]models.Cart, error)
	FindInactiveUnnotified(ctx context.Context) ([]models.Cart, error)
	Deactivate(ctx context.Context, cartID uuid.UUID, cutoff time.Time) (bool, error)
	MarkNotified(ctx context.Context, cartID uuid.UUID) (bool, error)
}

// GormCartRepository implements CartRepository using GORM.
type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) FindByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	var c models.Cart
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var c models.Cart
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// Create inserts a new cart. A concurrent create for the same user surfaces
// as ErrDuplicateCart via the unique index on user_id.
func (r *GormCartRepository) Create(ctx context.Context, cart *models.Cart) error {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCart
		}
		return err
	}
	return nil
}

// Lines returns the cart's lines in insertion order.
func (r *GormCartRepository) Lines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// Apply writes the cart aggregate and its line changes in one transaction.
// The aggregate update is conditional on cart.Version; if another writer got
// there first nothing is written and ErrVersionConflict is returned. On
// success cart.Version is advanced.
func (r *GormCartRepository) Apply(ctx context.Context, cart *models.Cart, changes models.LineChanges) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Cart{}).
			Where("id = ? AND version = ?", cart.ID, cart.Version).
			Updates(map[string]interface{}{
				"active":            cart.Active,
				"line_count":        cart.LineCount,
				"total_units":       cart.TotalUnits,
				"total_price":       cart.TotalPrice,
				"notification_sent": cart.NotificationSent,
				"last_movement_at":  cart.LastMovementAt,
				"version":           cart.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if len(changes.Delete) > 0 {
			if err := tx.Where("cart_id = ? AND id IN ?", cart.ID, changes.Delete).
				Delete(&models.CartLine{}).Error; err != nil {
				return err
			}
		}

		for _, line := range changes.Upsert {
			if line.ID == uuid.Nil {
				line.CartID = cart.ID
				if err := tx.Create(line).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&models.CartLine{}).
				Where("id = ?", line.ID).
				Updates(map[string]interface{}{
					"quantity":         line.Quantity,
					"line_price_total": line.LinePriceTotal,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	cart.Version++
	return nil
}

// Delete removes the cart and all of its lines, but only while the cart is
// still at version. It reports false when the cart was gone or had moved on,
// in which case nothing is deleted.
func (r *GormCartRepository) Delete(ctx context.Context, cartID uuid.UUID, version int64) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND version = ?", cartID, version).Delete(&models.Cart{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("cart_id = ?", cartID).Delete(&models.CartLine{}).Error
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *GormCartRepository) FindAll(ctx context.Context) ([]models.Cart, error) {
	var carts []models.Cart
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *GormCartRepository) FindInactive(ctx context.Context) ([]models.Cart, error) {
	var carts []models.Cart
	if err := r.db.WithContext(ctx).
		Where("active = ?", false).
		Order("created_at ASC").
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// FindIdleActive returns active carts whose last activity is strictly before
// cutoff.
func (r *GormCartRepository) FindIdleActive(ctx context.Context, cutoff time.Time) ([]models.Cart, error) {
	var carts []models.Cart
	if err := r.db.WithContext(ctx).
		Where("active = ? AND COALESCE(last_movement_at, created_at) < ?", true, cutoff).
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// FindInactiveUnnotified returns non-empty inactive carts still owed an
// abandonment notice.
func (r *GormCartRepository) FindInactiveUnnotified(ctx context.Context) ([]models.Cart, error) {
	var carts []models.Cart
	if err := r.db.WithContext(ctx).
		Where("active = ? AND notification_sent = ? AND line_count > ?", false, false, 0).
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// Deactivate flips a cart to inactive only if it is still idle at cutoff, so
// a mutation that lands between the scan and this write wins. It reports
// whether the row changed.
func (r *GormCartRepository) Deactivate(ctx context.Context, cartID uuid.UUID, cutoff time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND active = ? AND COALESCE(last_movement_at, created_at) < ?", cartID, true, cutoff).
		Update("active", false)
	return res.RowsAffected > 0, res.Error
}

// MarkNotified records that the abandonment notice went out, unless the cart
// was reactivated in the meantime.
func (r *GormCartRepository) MarkNotified(ctx context.Context, cartID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND active = ?", cartID, false).
		Update("notification_sent", true)
	return res.RowsAffected > 0, res.Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
