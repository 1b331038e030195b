package deposits

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func setupTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _, _ := newTestService(t)
	h := NewHandler(svc, testWebhookSecret)

	r := gin.New()
	api := r.Group("/api")
	h.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set("authUserID", id)
		}
		c.Next()
	})
	h.RegisterProtectedRoutes(protected)
	h.RegisterAdminRoutes(protected)
	return r, svc
}

// signStripe builds a Stripe-Signature header for payload.
func signStripe(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookRequest(r *gin.Engine, eventType, intentID, signature string, payload []byte) *httptest.ResponseRecorder {
	if payload == nil {
		payload = []byte(fmt.Sprintf(`{
			"id": "evt_1",
			"object": "event",
			"type": %q,
			"api_version": "2024-09-30.acacia",
			"data": {"object": {"id": %q, "object": "payment_intent"}}
		}`, eventType, intentID))
	}
	if signature == "" {
		signature = signStripe(payload, testWebhookSecret, time.Now())
	}
	req := httptest.NewRequest(http.MethodPost, "/api/deposits/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateDeposit(t *testing.T) {
	r, _ := setupTestRouter(t)

	body, _ := json.Marshal(gin.H{"amount": 250000, "method": "card"})
	req := httptest.NewRequest(http.MethodPost, "/api/deposits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "bob")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var d Deposit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, StatusPending, d.Status)
	assert.NotEmpty(t, d.ClientSecret)
}

func TestHandler_StripeWebhookConfirms(t *testing.T) {
	r, svc := setupTestRouter(t)
	d, err := svc.Create(context.Background(), "bob", 90000, MethodCard)
	require.NoError(t, err)

	w := webhookRequest(r, eventPaymentSucceeded, d.ExternalRef, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := svc.Get(context.Background(), d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	// Stripe retries deliveries; a repeat is harmless.
	w = webhookRequest(r, eventPaymentSucceeded, d.ExternalRef, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_StripeWebhookFailure(t *testing.T) {
	r, svc := setupTestRouter(t)
	d, err := svc.Create(context.Background(), "bob", 90000, MethodCard)
	require.NoError(t, err)

	w := webhookRequest(r, eventPaymentFailed, d.ExternalRef, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := svc.Get(context.Background(), d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestHandler_StripeWebhookRejectsBadSignature(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := webhookRequest(r, eventPaymentSucceeded, "pi_1", "t=1,v1=deadbeef", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	w = webhookRequest(r, "", "", signStripe(payload, "whsec_other", time.Now()), payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_StripeWebhookIgnoresOtherEvents(t *testing.T) {
	r, _ := setupTestRouter(t)
	w := webhookRequest(r, "charge.refunded", "ch_1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_AdminConfirm(t *testing.T) {
	r, svc := setupTestRouter(t)
	d, err := svc.Create(context.Background(), "bob", 1000, MethodBankTransfer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/deposits/"+d.ID+"/confirm", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got Deposit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatusConfirmed, got.Status)
}
