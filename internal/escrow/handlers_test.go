package escrow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/ledger"
	"github.com/merakimarket/meraki/internal/money"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := ledger.New(ledger.NewMemoryStore())
	require.NoError(t, l.Deposit(context.Background(), "buyer", 100000, "seed"))
	svc := NewService(NewMemoryStore(), realLedger{l}, money.MustFeeRate("0.10"))
	h := NewHandler(svc)

	r := gin.New()
	api := r.Group("/api")
	// Stand-in for the auth middleware.
	api.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set("authUserID", id)
		}
		c.Next()
	})
	h.RegisterProtectedRoutes(api)
	h.RegisterAdminRoutes(api)
	return r, svc
}

func doRequest(r *gin.Engine, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_GetTicket(t *testing.T) {
	r, svc := setupTestRouter(t)
	ticket, err := svc.Reserve(context.Background(), "buyer", 5000, "off_1")
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/escrow/"+ticket.ID, "buyer")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ticket Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ticket.ID, resp.Ticket.ID)
	assert.Equal(t, StatusHeld, resp.Ticket.Status)
}

func TestHandler_GetTicket_HiddenFromOtherUsers(t *testing.T) {
	r, svc := setupTestRouter(t)
	ticket, _ := svc.Reserve(context.Background(), "buyer", 5000, "off_1")

	w := doRequest(r, http.MethodGet, "/api/escrow/"+ticket.ID, "stranger")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestHandler_ListEscrow(t *testing.T) {
	r, svc := setupTestRouter(t)
	ctx := context.Background()
	_, _ = svc.Reserve(ctx, "buyer", 1000, "off_1")
	_, _ = svc.Reserve(ctx, "buyer", 2000, "off_2")

	w := doRequest(r, http.MethodGet, "/api/escrow?limit=1", "buyer")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tickets []Ticket `json:"tickets"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestHandler_ReleaseTicket(t *testing.T) {
	r, svc := setupTestRouter(t)
	ticket, _ := svc.Reserve(context.Background(), "buyer", 5000, "off_1")

	w := doRequest(r, http.MethodPost, "/api/admin/escrow/"+ticket.ID+"/release", "")
	require.Equal(t, http.StatusOK, w.Code)

	got, _ := svc.Get(context.Background(), ticket.ID)
	assert.Equal(t, StatusReleased, got.Status)
}

func TestHandler_ReleaseSettledTicketConflicts(t *testing.T) {
	r, svc := setupTestRouter(t)
	ctx := context.Background()
	ticket, _ := svc.Reserve(ctx, "buyer", 5000, "off_1")
	_, err := svc.Settle(ctx, SettleRequest{BuyerTicketID: ticket.ID, SellerID: "seller", Amount: 5000})
	require.NoError(t, err)

	w := doRequest(r, http.MethodPost, "/api/admin/escrow/"+ticket.ID+"/release", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

type recordingListener struct {
	released []string
}

func (l *recordingListener) EscrowReleased(ctx context.Context, ticket *Ticket) {
	l.released = append(l.released, ticket.ID)
}

func TestHandler_ReleaseNotifiesListeners(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := ledger.New(ledger.NewMemoryStore())
	require.NoError(t, l.Deposit(context.Background(), "buyer", 10000, "seed"))
	svc := NewService(NewMemoryStore(), realLedger{l}, money.MustFeeRate("0.10"))
	listener := &recordingListener{}

	r := gin.New()
	NewHandler(svc).WithReleaseListener(listener).RegisterAdminRoutes(r.Group("/api"))

	ticket, err := svc.Reserve(context.Background(), "buyer", 5000, "pur_1")
	require.NoError(t, err)

	w := doRequest(r, http.MethodPost, "/api/admin/escrow/"+ticket.ID+"/release", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{ticket.ID}, listener.released)

	w = doRequest(r, http.MethodPost, "/api/admin/escrow/missing/release", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, listener.released, 1)
}
