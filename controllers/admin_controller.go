package controllers

import (
	"net/http"

	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminController serves cross-user cart listings.
type AdminController struct {
	admin services.AdminService
}

func NewAdminController(admin services.AdminService) *AdminController {
	return &AdminController{admin: admin}
}

// ListCarts handles GET /api/v1/admin/carts
func (ac *AdminController) ListCarts(c *gin.Context) {
	carts, err := ac.admin.ListCarts(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carts": carts, "total": len(carts)})
}

// ListAbandonedCarts handles GET /api/v1/admin/carts/abandoned
func (ac *AdminController) ListAbandonedCarts(c *gin.Context) {
	carts, err := ac.admin.ListAbandonedCarts(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carts": carts, "total": len(carts)})
}

// GetCart handles GET /api/v1/admin/carts/:id
func (ac *AdminController) GetCart(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid cart id", err))
		return
	}

	view, err := ac.admin.GetCart(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}
