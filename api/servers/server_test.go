package servers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/tee-secret-management/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ping/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func newTestServer(t *testing.T, readiness func(context.Context) error) (*Server, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	srv, err := New(&api.HTTPServerConfig{
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadinessCheck: readiness,
	}, registry, pingHandler{})
	require.NoError(t, err)
	return srv, registry
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestDrainUndrain(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	assert.Equal(t, http.StatusOK, get(t, router, "/livez").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)

	rr := get(t, router, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, rr.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/readyz").Code)
	assert.JSONEq(t, `{"status":"already draining"}`, get(t, router, "/drain").Body.String())

	// Liveness is independent of draining.
	assert.Equal(t, http.StatusOK, get(t, router, "/livez").Code)

	assert.JSONEq(t, `{"status":"ready"}`, get(t, router, "/undrain").Body.String())
	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)
	assert.JSONEq(t, `{"status":"already ready"}`, get(t, router, "/undrain").Body.String())
}

func TestReadinessCheck(t *testing.T) {
	var failing error
	srv, _ := newTestServer(t, func(context.Context) error { return failing })
	router := srv.Router()

	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)
	failing = errors.New("database is locked")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/readyz").Code)
}

func TestRequestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()

	get(t, router, "/ping/1")
	get(t, router, "/ping/2")
	get(t, router, "/nowhere")

	assert.Equal(t, 2.0, promtest.ToFloat64(srv.metrics.request.WithLabelValues("/ping/{id}", http.MethodGet, "418")))
	assert.Equal(t, 1.0, promtest.ToFloat64(srv.metrics.request.WithLabelValues("unmatched", http.MethodGet, "404")))
}
