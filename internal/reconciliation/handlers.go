package reconciliation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
)

// Handler exposes reconciliation reports to operators.
type Handler struct {
	service *Service
}

// NewHandler creates a new reconciliation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes sets up reconciliation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/reconciliation", h.GetReport)
	r.POST("/admin/reconciliation", h.RunNow)
}

// GetReport handles GET /api/admin/reconciliation
func (h *Handler) GetReport(c *gin.Context) {
	report := h.service.Last()
	if report == nil {
		h.RunNow(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// RunNow handles POST /api/admin/reconciliation
func (h *Handler) RunNow(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
