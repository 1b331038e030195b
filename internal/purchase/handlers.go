package purchase

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/transactions"
)

// Handler provides HTTP endpoints for purchases.
type Handler struct {
	service *Service
}

// NewHandler creates a new purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up routes for the authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/purchases", h.Buy)
	r.PUT("/transactions/:id", h.UpdateStatus)
}

// BuyRequest is the body of POST /api/purchases.
type BuyRequest struct {
	ProductID string `json:"productId"`
	Shipping  int64  `json:"shipping"`
}

// UpdateStatusRequest is the body of PUT /api/transactions/:id.
type UpdateStatusRequest struct {
	Status transactions.Status `json:"status"`
}

// Buy handles POST /api/purchases
func (h *Handler) Buy(c *gin.Context) {
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}

	tx, err := h.service.Buy(c.Request.Context(), c.GetString("authUserID"), req.ProductID, req.Shipping)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// UpdateStatus handles PUT /api/transactions/:id
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}

	tx, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), c.GetString("authUserID"), req.Status)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}
