package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/ledger"
	"github.com/resumeassist/usagegate/pkg/models"
	"github.com/resumeassist/usagegate/pkg/router"
	"github.com/resumeassist/usagegate/pkg/tracker"
)

func setup(t *testing.T, upstream string) (*Gateway, *ledger.Ledger) {
	t.Helper()
	tr, err := tracker.New(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	rt, err := router.New(config.GatewayConfig{Upstream: upstream, Features: models.DefaultFeatures()})
	require.NoError(t, err)

	l := ledger.New(tr)
	return New(rt, l, nil, nil), l
}

func post(g *Gateway, feature, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/features/"+feature+"?lang=en", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	g.ServeFeature(w, req, feature)
	return w
}

func TestProxiesApprovedRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Got-Path", r.URL.Path)
		w.Header().Set("X-Got-Query", r.URL.RawQuery)
		w.Header().Set("X-Got-Body", string(b))
		_, _ = io.WriteString(w, `{"summary":"ok"}`)
	}))
	defer upstream.Close()

	g, l := setup(t, upstream.URL)
	w := post(g, "analyze", "u1", "resume text")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/analyze", w.Header().Get("X-Got-Path"))
	assert.Equal(t, "lang=en", w.Header().Get("X-Got-Query"))
	assert.Equal(t, "resume text", w.Header().Get("X-Got-Body"))
	assert.Equal(t, "10", w.Header().Get("X-Usage-Cost"))

	usage, err := l.GetUsage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CostAnalyze, usage)
}

func TestDeniedWhenBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	g, l := setup(t, upstream.URL)
	ok, err := l.CheckAndConsume(context.Background(), "u1", 95)
	require.NoError(t, err)
	require.True(t, ok)

	w := post(g, "analyze", "u1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int32(0), calls.Load())

	// a cheaper feature still fits
	w = post(g, "revision", "u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestErrors(t *testing.T) {
	g, _ := setup(t, "http://127.0.0.1:1")

	w := post(g, "unknown", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(g, "chat", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), HeaderUserID)

	w = post(g, "chat", "   ", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing user id"}`, w.Body.String())
}

func TestUpstreamFailureKeepsCharge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := upstream.URL
	upstream.Close()

	g, l := setup(t, addr)
	w := post(g, "chat", "u1", "hello")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	usage, _ := l.GetUsage(context.Background(), "u1")
	assert.Equal(t, models.CostChat, usage)
}

type brokenLedger struct{}

func (brokenLedger) CheckAndConsume(context.Context, string, int64) (bool, error) {
	return false, errors.Join(ledger.ErrStoreUnavailable, errors.New("timeout"))
}

func TestStoreFailureFailsClosed(t *testing.T) {
	rt, err := router.New(config.GatewayConfig{Upstream: "http://127.0.0.1:1", Features: models.DefaultFeatures()})
	require.NoError(t, err)
	g := New(rt, brokenLedger{}, nil, nil)

	w := post(g, "chat", "u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeHTTPUsesPathValue(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer upstream.Close()

	g, _ := setup(t, upstream.URL)
	mux := http.NewServeMux()
	mux.Handle("POST /api/features/{feature}", g)

	req := httptest.NewRequest(http.MethodPost, "/api/features/chat", nil)
	req.Header.Set(HeaderUserID, "u1")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/chatbot/respond", w.Body.String())
}
