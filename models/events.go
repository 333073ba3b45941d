package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCartCheckedOut = "cart.checked_out"
	EventCartAbandoned  = "cart.abandoned"

	NotificationCartAbandoned = "CART_ABANDONED"
)

// CartEvent is published on the cart events bus.
type CartEvent struct {
	EventType  string          `json:"event_type"`
	CartID     string          `json:"cart_id"`
	UserID     string          `json:"user_id"`
	OrderID    string          `json:"order_id,omitempty"`
	LineCount  int64           `json:"line_count"`
	TotalUnits int64           `json:"total_units"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// EmailNotification is handed to the notification transport.
type EmailNotification struct {
	Destination string `json:"destination"`
	Subject     string `json:"subject"`
	BodyHTML    string `json:"body_html"`
	EventType   string `json:"event_type"`
}

// AbandonedCart is the data rendered into the abandoned-cart email.
type AbandonedCart struct {
	CustomerName  string
	CustomerEmail string
	LoginURL      string
	Products      []AbandonedProduct
	Year          int
}

type AbandonedProduct struct {
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
}
