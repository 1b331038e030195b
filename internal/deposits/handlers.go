package deposits

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/logging"
)

const maxWebhookBytes = 64 << 10

// Handler provides HTTP endpoints for deposits.
type Handler struct {
	service       *Service
	webhookSecret string
}

// NewHandler creates a new deposit handler. An empty webhookSecret disables
// the Stripe webhook route.
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes sets up unauthenticated routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	if h.webhookSecret != "" {
		r.POST("/deposits/webhook/stripe", h.StripeWebhook)
	}
}

// RegisterProtectedRoutes sets up routes for the authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/deposits", h.CreateDeposit)
	r.GET("/deposits", h.ListDeposits)
	r.GET("/deposits/:id", h.GetDeposit)
}

// RegisterAdminRoutes sets up operator routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/deposits/:id/confirm", h.ConfirmDeposit)
}

// CreateDepositRequest is the body of POST /api/deposits.
type CreateDepositRequest struct {
	Amount int64  `json:"amount"`
	Method Method `json:"method"`
}

// CreateDeposit handles POST /api/deposits
func (h *Handler) CreateDeposit(c *gin.Context) {
	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}

	d, err := h.service.Create(c.Request.Context(), c.GetString("authUserID"), req.Amount, req.Method)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetDeposit handles GET /api/deposits/:id
func (h *Handler) GetDeposit(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("authUserID"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ListDeposits handles GET /api/deposits
func (h *Handler) ListDeposits(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}
	list, err := h.service.ListByUser(c.Request.Context(), c.GetString("authUserID"), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if list == nil {
		list = []*Deposit{}
	}
	c.JSON(http.StatusOK, gin.H{
		"deposits": list,
		"count":    len(list),
	})
}

// ConfirmDeposit handles POST /api/admin/deposits/:id/confirm
func (h *Handler) ConfirmDeposit(c *gin.Context) {
	d, err := h.service.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	logging.L(c.Request.Context()).Info("deposit confirmed by operator",
		"deposit_id", d.ID, "user_id", d.UserID, "amount", d.Amount)
	c.JSON(http.StatusOK, d)
}

// StripeWebhook handles POST /api/deposits/webhook/stripe
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		apperr.Respond(c, apperr.Validation("unreadable webhook body"))
		return
	}

	event, err := ParseStripeEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logging.L(c.Request.Context()).Warn("rejected stripe webhook", "error", err)
		apperr.Respond(c, apperr.Validation("invalid webhook signature"))
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case eventPaymentSucceeded:
		d, err := h.service.ConfirmByExternalRef(ctx, event.PaymentIntentID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		logging.L(ctx).Info("card deposit confirmed", "deposit_id", d.ID, "amount", d.Amount)
	case eventPaymentFailed:
		if _, err := h.service.FailByExternalRef(ctx, event.PaymentIntentID); err != nil {
			apperr.Respond(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
