package models

// OrderRequest is sent to the order service at checkout. It carries raw
// identifiers and quantities only.
type OrderRequest struct {
	UserID string      `json:"user_id"`
	Lines  []OrderLine `json:"lines"`
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// OrderAck is the order service's acknowledgement.
type OrderAck struct {
	OrderID string `json:"order_id"`
}
