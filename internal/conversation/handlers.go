package conversation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/apperr"
)

// Handler provides HTTP endpoints for conversations.
type Handler struct {
	service *Service
}

// NewHandler creates a new conversation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up routes for the authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/messages", h.SendMessage)
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
}

// SendMessage handles POST /api/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), c.GetString("authUserID"), req.RecipientID, PlainBody{Text: req.Text})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListConversations handles GET /api/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.service.ListConversations(c.Request.Context(), c.GetString("authUserID"), queryLimit(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if convs == nil {
		convs = []*Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"count":         len(convs),
	})
}

// ListMessages handles GET /api/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.service.ListMessages(c.Request.Context(), c.Param("id"), c.GetString("authUserID"), queryLimit(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func queryLimit(c *gin.Context) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			return parsed
		}
	}
	return 0
}
