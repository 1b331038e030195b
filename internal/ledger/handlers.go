package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
)

// Handler provides HTTP endpoints for ledger operations
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterProtectedRoutes sets up ledger routes for the authenticated user
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/balance", h.GetBalance)
	r.GET("/ledger", h.GetHistory)
}

// GetBalance handles GET /api/balance
func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.ledger.GetBalance(c.Request.Context(), c.GetString("authUserID"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

// GetHistory handles GET /api/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}

	page, err := h.ledger.HistoryPage(c.Request.Context(), c.GetString("authUserID"), limit, c.Query("cursor"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":    page.Entries,
		"count":      len(page.Entries),
		"nextCursor": page.NextCursor,
		"hasMore":    page.HasMore,
	})
}
