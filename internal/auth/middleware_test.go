package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/merakimarket/meraki/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Middleware())
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":    UserID(c),
			"logUser": logging.UserID(c.Request.Context()),
		})
	})
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_SetsUser(t *testing.T) {
	w := get(newRouter(), map[string]string{HeaderUserID: " bob "})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"bob","logUser":"bob"}`, w.Body.String())
}

func TestMiddleware_Anonymous(t *testing.T) {
	w := get(newRouter(), nil)
	assert.JSONEq(t, `{"user":"","logUser":""}`, w.Body.String())
}

func TestMiddleware_IgnoresOversizedID(t *testing.T) {
	w := get(newRouter(), map[string]string{HeaderUserID: strings.Repeat("x", 65)})
	assert.JSONEq(t, `{"user":"","logUser":""}`, w.Body.String())
}

func TestRequireAuth(t *testing.T) {
	r := newRouter(RequireAuth())

	w := get(r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	w = get(r, map[string]string{HeaderUserID: "bob"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"matching secret", "s3cret", "s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "guess", http.StatusForbidden},
		{"missing header", "s3cret", "", http.StatusForbidden},
		{"admin disabled", "", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(RequireAdmin(tt.secret))
			headers := map[string]string{}
			if tt.header != "" {
				headers[HeaderAdminSecret] = tt.header
			}
			assert.Equal(t, tt.want, get(r, headers).Code)
		})
	}
}
