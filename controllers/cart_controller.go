package controllers

import (
	"net/http"

	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/common/middleware"
	"github.com/arka/cart-service/services"
	"github.com/gin-gonic/gin"
)

// IdempotencyHeader lets clients retry a checkout safely.
const IdempotencyHeader = "Idempotency-Key"

// CartController handles HTTP requests for the caller's own cart.
type CartController struct {
	carts    services.CartService
	checkout services.CheckoutService
}

func NewCartController(carts services.CartService, checkout services.CheckoutService) *CartController {
	return &CartController{carts: carts, checkout: checkout}
}

// AddItemRequest is the body of POST /api/v1/carts/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

// AddItem handles POST /api/v1/carts/items
func (cc *CartController) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid payload: "+err.Error(), err))
		return
	}

	view, err := cc.carts.AddOrUpdateLine(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// RemoveItem handles DELETE /api/v1/carts/items/:productId
func (cc *CartController) RemoveItem(c *gin.Context) {
	view, err := cc.carts.RemoveLine(c.Request.Context(), middleware.GetUserID(c), c.Param("productId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetCart handles GET /api/v1/carts
func (cc *CartController) GetCart(c *gin.Context) {
	view, err := cc.carts.View(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ClearCart handles DELETE /api/v1/carts
func (cc *CartController) ClearCart(c *gin.Context) {
	view, err := cc.carts.Clear(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Checkout handles POST /api/v1/carts/checkout
func (cc *CartController) Checkout(c *gin.Context) {
	view, err := cc.checkout.Checkout(c.Request.Context(), middleware.GetUserID(c), c.GetHeader(IdempotencyHeader))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}
