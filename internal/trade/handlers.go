package trade

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/logging"
)

// Handler provides HTTP endpoints for trade offers.
type Handler struct {
	service *Service
}

// NewHandler creates a new trade handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up routes for the authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/direct-trade-offers", h.ProposeTrade)
	r.POST("/trade/confirm", h.ConfirmTrade)
	r.GET("/trade-offers", h.ListOffers)
	r.GET("/trade-offers/:id", h.GetOffer)
	r.POST("/trade-offers/:id/accept", h.AcceptOffer)
	r.POST("/trade-offers/:id/cancel", h.CancelOffer)
}

// ProposeTradeRequest is the body of POST /api/direct-trade-offers.
type ProposeTradeRequest struct {
	ProductID              string   `json:"productId"`
	OfferedItemName        string   `json:"offeredItemName"`
	OfferedItemDescription string   `json:"offeredItemDescription"`
	OfferedItemValue       int64    `json:"offeredItemValue"`
	OfferedItemImages      []string `json:"offeredItemImages"`
	Notes                  string   `json:"notes"`
}

// ConfirmTradeRequest is the body of POST /api/trade/confirm.
type ConfirmTradeRequest struct {
	MessageID string `json:"messageId"`
	Role      Role   `json:"role"`
}

// CancelOfferRequest is the optional body of POST /api/trade-offers/:id/cancel.
type CancelOfferRequest struct {
	Reason string `json:"reason"`
}

// ProposeTrade handles POST /api/direct-trade-offers
func (h *Handler) ProposeTrade(c *gin.Context) {
	var req ProposeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}

	offer, msg, err := h.service.Propose(c.Request.Context(), ProposeRequest{
		ProductID:  req.ProductID,
		ProposerID: c.GetString("authUserID"),
		Item: OfferedItem{
			Name:        req.OfferedItemName,
			Description: req.OfferedItemDescription,
			Value:       req.OfferedItemValue,
			Images:      req.OfferedItemImages,
		},
		Notes: req.Notes,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"tradeOfferId": offer.ID,
		"offer":        offer,
		"message":      msg,
	})
}

// ConfirmTrade handles POST /api/trade/confirm
func (h *Handler) ConfirmTrade(c *gin.Context) {
	var req ConfirmTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}
	if req.MessageID == "" {
		apperr.Respond(c, apperr.Validation("messageId is required"))
		return
	}

	result, err := h.service.ConfirmByMessage(c.Request.Context(), req.MessageID, c.GetString("authUserID"), req.Role)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if result.Triggered {
		logging.L(c.Request.Context()).Info("trade completed",
			"offer_id", result.Offer.ID, "transaction_id", result.Transaction.ID)
	}

	resp := gin.H{
		"isFullyConfirmed": result.IsFullyConfirmed,
		"offer":            result.Offer,
	}
	if result.Transaction != nil {
		resp["transaction"] = result.Transaction
	}
	c.JSON(http.StatusOK, resp)
}

// AcceptOffer handles POST /api/trade-offers/:id/accept
func (h *Handler) AcceptOffer(c *gin.Context) {
	result, err := h.service.Accept(c.Request.Context(), c.Param("id"), c.GetString("authUserID"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	message := "Trade offer accepted, waiting for the buyer to confirm"
	if result.IsFullyConfirmed {
		message = "Trade completed"
	}
	resp := gin.H{
		"message": message,
		"offer":   result.Offer,
	}
	if result.Transaction != nil {
		resp["transaction"] = result.Transaction
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOffer handles POST /api/trade-offers/:id/cancel
func (h *Handler) CancelOffer(c *gin.Context) {
	var req CancelOfferRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Validation("invalid request body"))
			return
		}
	}

	offer, err := h.service.Cancel(c.Request.Context(), c.Param("id"), c.GetString("authUserID"), req.Reason)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// GetOffer handles GET /api/trade-offers/:id
func (h *Handler) GetOffer(c *gin.Context) {
	offer, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetString("authUserID"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// ListOffers handles GET /api/trade-offers
func (h *Handler) ListOffers(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}

	offers, err := h.service.ListByUser(c.Request.Context(), c.GetString("authUserID"), limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if offers == nil {
		offers = []*Offer{}
	}
	c.JSON(http.StatusOK, gin.H{
		"offers": offers,
		"count":  len(offers),
	})
}
