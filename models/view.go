package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Placeholders shown when a lookup could not be resolved.
const (
	UnavailableUserName           = "user unavailable"
	UnavailableUserField          = "unavailable"
	UnavailableProductName        = "product name unavailable"
	UnavailableProductDescription = "product description unavailable"
)

// CartView is the enriched cart returned to clients.
type CartView struct {
	CartID         uuid.UUID       `json:"cart_id"`
	UserID         string          `json:"user_id"`
	UserName       string          `json:"user_name"`
	UserAddress    string          `json:"user_address"`
	UserPhone      string          `json:"user_phone"`
	Status         string          `json:"status"`
	LineCount      int64           `json:"line_count"`
	TotalUnits     int64           `json:"total_units"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	CreatedAt      time.Time       `json:"created_at"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	Products       []LineView      `json:"products"`
}

// LineView is one enriched line. Quantity and LinePriceTotal always come from
// the stored line; the rest from the product lookup or its placeholders.
type LineView struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LinePriceTotal decimal.Decimal `json:"line_price_total"`
	Available      bool            `json:"available"`
}

// CartSummary is the admin listing row.
type CartSummary struct {
	CartID         uuid.UUID  `json:"cart_id"`
	UserID         string     `json:"user_id"`
	UserName       string     `json:"user_name"`
	LineCount      int64      `json:"line_count"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastMovementAt *time.Time `json:"last_movement_at,omitempty"`
}

// UserProfile is what the identity service returns for a user.
type UserProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Product is what the inventory service returns for a product. Stock is nil
// when the inventory has no record of stock for it.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"price"`
	Stock       *int64          `json:"stock"`
}
