package routes

import (
	"github.com/arka/cart-service/common/middleware"
	"github.com/arka/cart-service/controllers"
	"github.com/gin-gonic/gin"
)

// RegisterCartRoutes sets up the caller-scoped cart endpoints.
func RegisterCartRoutes(r *gin.Engine, cc *controllers.CartController, limiter *middleware.RateLimiter) {
	carts := r.Group("/api/v1/carts")
	carts.Use(middleware.AuthMiddleware())
	if limiter != nil {
		carts.Use(middleware.RateLimit(limiter))
	}

	carts.GET("", cc.GetCart)
	carts.DELETE("", cc.ClearCart)
	carts.POST("/items", cc.AddItem)
	carts.DELETE("/items/:productId", cc.RemoveItem)
	carts.POST("/checkout", cc.Checkout)
}

// RegisterAdminRoutes sets up the cross-user listings, admin role only.
func RegisterAdminRoutes(r *gin.Engine, ac *controllers.AdminController) {
	admin := r.Group("/api/v1/admin/carts")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminOnly())

	admin.GET("", ac.ListCarts)
	admin.GET("/abandoned", ac.ListAbandonedCarts)
	admin.GET("/:id", ac.GetCart)
}
