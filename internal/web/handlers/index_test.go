package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestIndexHandler_Health(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", "Alice", axisX, axisY)
	handler := NewIndexHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Health(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	result := decodeBody(t, recorder)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", result["status"])
	}
	idx, _ := result["index"].(map[string]any)
	if idx["state"] != "current" || idx["mode"] != "exact" {
		t.Errorf("unexpected index state: %v", idx)
	}
	if idx["vectors"] != float64(2) || idx["identities"] != float64(1) {
		t.Errorf("unexpected index sizes: %v", idx)
	}
	if _, ok := idx["built_at"]; !ok {
		t.Error("expected built_at to be set")
	}
	policy, _ := result["policy"].(map[string]any)
	if policy["threshold"] != 0.45 || policy["max_results"] != float64(3) {
		t.Errorf("unexpected policy: %v", policy)
	}
	if policy["min_images"] != float64(4) || policy["min_faces"] != float64(2) {
		t.Errorf("unexpected enrollment policy: %v", policy)
	}
}

func TestIndexHandler_Rebuild(t *testing.T) {
	env := newTestEnv(t)
	handler := NewIndexHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Rebuild(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if env.store.ListEmbeddingsCalls != 2 {
		t.Errorf("expected a second store scan, got %d", env.store.ListEmbeddingsCalls)
	}
}

func TestIndexHandler_RebuildFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.ListEmbeddingsError = errors.New("timeout")
	handler := NewIndexHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Rebuild(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", recorder.Code)
	}
	if got := decodeBody(t, recorder)["error"]; got != "index rebuild failed" {
		t.Errorf("unexpected error: %v", got)
	}
}
