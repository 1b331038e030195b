package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

func TestRegistry_Empty(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistry_Aggregates(t *testing.T) {
	r := NewRegistry()
	r.Register(PingChecker("postgres", fakeDB{}))
	r.Register(PingChecker("catalog", fakeDB{err: errors.New("database is locked")}))

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, "database is locked", statuses[1].Detail)
}

func TestRegistry_ChecksHaveDeadline(t *testing.T) {
	r := NewRegistry()
	r.Register(func(ctx context.Context) Status {
		_, ok := ctx.Deadline()
		return Status{Name: "deadline", Healthy: ok}
	})
	healthy, _ := r.CheckAll(context.Background())
	assert.True(t, healthy)
}

func TestRunningChecker(t *testing.T) {
	running := false
	check := RunningChecker("offer_timer", func() bool { return running })

	assert.False(t, check(context.Background()).Healthy)
	running = true
	assert.True(t, check(context.Background()).Healthy)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRegistry()
	db := &fakeDB{}
	r.Register(func(ctx context.Context) Status { return PingChecker("postgres", *db)(ctx) })

	router := gin.New()
	router.GET("/health", r.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	db.err = errors.New("connection refused")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status     string   `json:"status"`
		Subsystems []Status `json:"subsystems"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Subsystems[0].Detail)
}
