package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the per-user aggregate row. LineCount, TotalUnits and TotalPrice
// are derived from the cart's lines and only ever written together with a
// line change.
type Cart struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID           string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"user_id"`
	Active           bool            `gorm:"not null;index:idx_carts_sweep,priority:1" json:"active"`
	LineCount        int64           `gorm:"not null" json:"line_count"`
	TotalUnits       int64           `gorm:"not null" json:"total_units"`
	TotalPrice       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_price"`
	NotificationSent bool            `gorm:"not null" json:"notification_sent"`
	Version          int64           `gorm:"not null" json:"-"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	LastMovementAt   *time.Time      `gorm:"index:idx_carts_sweep,priority:2" json:"last_movement_at,omitempty"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartLine is one product entry of a cart. LinePriceTotal is the price
// snapshot taken when the line was last written.
type CartLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_lines_cart_product" json:"cart_id"`
	ProductID      string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_cart_lines_cart_product" json:"product_id"`
	Quantity       int64           `gorm:"not null" json:"quantity"`
	LinePriceTotal decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"line_price_total"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LastActivity is the timestamp the abandonment sweep compares against.
func (c *Cart) LastActivity() time.Time {
	if c.LastMovementAt != nil {
		return *c.LastMovementAt
	}
	return c.CreatedAt
}

// IdleBefore reports whether the cart is active with no activity at or after
// cutoff.
func (c *Cart) IdleBefore(cutoff time.Time) bool {
	return c.Active && c.LastActivity().Before(cutoff)
}

// Recompute derives the aggregates from lines.
func (c *Cart) Recompute(lines []CartLine) {
	var units int64
	total := decimal.Zero
	for _, l := range lines {
		units += l.Quantity
		total = total.Add(l.LinePriceTotal)
	}
	c.LineCount = int64(len(lines))
	c.TotalUnits = units
	c.TotalPrice = total
}

// Touch records a mutation: the cart becomes active again and eligible for a
// fresh abandonment notification.
func (c *Cart) Touch(now time.Time) {
	c.LastMovementAt = &now
	c.Active = true
	c.NotificationSent = false
}

// Status is the presentation label of the active flag.
func (c *Cart) Status() string {
	if c.Active {
		return CartStatusActive
	}
	return CartStatusInactive
}

const (
	CartStatusActive   = "active"
	CartStatusInactive = "inactive"
)

// LineChanges is the set of line writes that accompany one aggregate update.
type LineChanges struct {
	Upsert []*CartLine
	Delete []uuid.UUID
}
