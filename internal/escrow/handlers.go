package escrow

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/logging"
)

// ReleaseListener is told about tickets an operator released.
type ReleaseListener interface {
	EscrowReleased(ctx context.Context, ticket *Ticket)
}

// Handler provides HTTP endpoints for escrow tickets.
type Handler struct {
	service   *Service
	listeners []ReleaseListener
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithReleaseListener adds a listener for operator releases.
func (h *Handler) WithReleaseListener(l ReleaseListener) *Handler {
	h.listeners = append(h.listeners, l)
	return h
}

// RegisterProtectedRoutes sets up routes for the authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/escrow", h.ListEscrow)
	r.GET("/escrow/:id", h.GetTicket)
}

// RegisterAdminRoutes sets up manual reconciliation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/escrow/:id/release", h.ReleaseTicket)
}

// GetTicket handles GET /api/escrow/:id
func (h *Handler) GetTicket(c *gin.Context) {
	ticket, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	caller := c.GetString("authUserID")
	if caller != ticket.UserID && caller != ticket.SellerID {
		// Same response as a missing ticket.
		apperr.Respond(c, ErrTicketNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// ListEscrow handles GET /api/escrow
func (h *Handler) ListEscrow(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}

	tickets, err := h.service.ListByUser(c.Request.Context(), c.GetString("authUserID"), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// ReleaseTicket handles POST /api/admin/escrow/:id/release
func (h *Handler) ReleaseTicket(c *gin.Context) {
	ticket, err := h.service.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	logging.L(c.Request.Context()).Info("escrow ticket released by operator",
		"ticket_id", ticket.ID, "user_id", ticket.UserID, "amount", ticket.Amount)
	for _, l := range h.listeners {
		l.EscrowReleased(c.Request.Context(), ticket)
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}
