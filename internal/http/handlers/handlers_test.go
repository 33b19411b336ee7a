package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tasksync/internal/docstore"
	"tasksync/internal/service"
	"tasksync/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	service.InitJWT("handlers-test-secret")
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func withUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) { c.Set("user_id", id) }
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		deps   map[string]Pinger
		path   string
		code   int
		status string
	}{
		{"health ok", map[string]Pinger{"docstore": healthy}, "/health", http.StatusOK, "ok"},
		{"health down", map[string]Pinger{"docstore": down}, "/health", http.StatusServiceUnavailable, "unhealthy"},
		{"ready ok", map[string]Pinger{"docstore": healthy}, "/readyz", http.StatusOK, "healthy"},
		{"ready down", map[string]Pinger{"docstore": healthy, "redis": down}, "/readyz", http.StatusServiceUnavailable, "unhealthy"},
		{"live", map[string]Pinger{"docstore": down}, "/healthz", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.deps, "test", func() int { return 3 })
			r := gin.New()
			r.GET("/health", h.Health)
			r.GET("/healthz", h.Liveness)
			r.GET("/readyz", h.Readiness)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.status, decodeBody(t, w)["status"])
		})
	}
}

func TestReadinessReportsChecks(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"docstore": docstore.NewMemory()}, "v1", func() int { return 2 })
	r := gin.New()
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Checks["docstore"])
	assert.Equal(t, "2", resp.Checks["ws_sessions"])
	assert.Equal(t, "v1", resp.Version)
}

func newTestHandler(devMode bool) *Handler {
	hub := ws.NewHub(docstore.NewMemory(), ws.HubConfig{OpTimeout: time.Second})
	return NewHandler(hub, HandlerConfig{DevMode: devMode})
}

func TestUpdateProfile(t *testing.T) {
	h := newTestHandler(false)
	r := gin.New()
	r.PUT("/user", withUser("u1"), h.UpdateProfile)

	put := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/user", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := put(`{"id":"someone-else","name":"Ada","email":"ada@example.com","phone":"+14155550100"}`)
	require.Equal(t, http.StatusOK, w.Code)
	user := decodeBody(t, w)["user"].(map[string]any)
	assert.Equal(t, "u1", user["id"], "identity comes from the token, not the body")
	assert.Equal(t, "Ada", user["name"])

	assert.Equal(t, http.StatusBadRequest, put(`{"email":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{`).Code)
}

func TestUpdateProfileNeedsUser(t *testing.T) {
	h := newTestHandler(false)
	r := gin.New()
	r.PUT("/user", h.UpdateProfile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/user", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetUserID(t *testing.T) {
	tests := []struct {
		name   string
		set    bool
		value  any
		wantID string
		wantOK bool
	}{
		{"missing", false, nil, "", false},
		{"not a string", true, 42, "", false},
		{"empty", true, "", "", false},
		{"set", true, "u1", "u1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.set {
				c.Set("user_id", tt.value)
			}
			id, ok := getUserID(c)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestMe(t *testing.T) {
	h := newTestHandler(false)
	r := gin.New()
	r.GET("/me", withUser("u1"), h.Me)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "u1", body["id"])
	assert.EqualValues(t, 0, body["sessions"])
}

func TestDevToken(t *testing.T) {
	h := newTestHandler(true)
	r := gin.New()
	r.POST("/dev-token", h.DevToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/dev-token", strings.NewReader(`{"user_id":"alice"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "alice", body["user_id"])

	id, err := service.ParseJWT(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/dev-token", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["user_id"])
}

func TestWSRejectsBadToken(t *testing.T) {
	h := newTestHandler(false)
	r := gin.New()
	r.GET("/ws", h.WS)

	for _, q := range []string{"", "?token=garbage"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws"+q, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, q)
	}
}
