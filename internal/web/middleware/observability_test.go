package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["status"] != int64(200) {
		t.Errorf("unexpected entry for /ok: %v %v", entries[0].Level, entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["status"] != int64(500) {
		t.Errorf("unexpected entry for /fail: %v %v", entries[1].Level, entries[1].ContextMap())
	}
}

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/identities/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/identities/alice", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/identities/bob", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/identities/{id}", "404"))
	if got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
}
