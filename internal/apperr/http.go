package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merakimarket/meraki/internal/logging"
)

// Status maps an error to its HTTP status and machine-readable code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Respond writes err as {"error": code, "message": ...}. Internal errors are
// logged with the request context and replaced with a generic message.
func Respond(c *gin.Context, err error) {
	status, code := Status(err)
	body := gin.H{"error": code, "message": err.Error()}

	var funds *InsufficientFundsError
	if errors.As(err, &funds) {
		body["required"] = funds.Required
		body["available"] = funds.Available
	}

	var detailed interface{ Details() any }
	if errors.As(err, &detailed) {
		body["details"] = detailed.Details()
	}

	if status == http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
		body["message"] = "An internal error occurred"
	}

	c.AbortWithStatusJSON(status, body)
}
