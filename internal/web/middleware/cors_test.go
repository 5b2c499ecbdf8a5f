package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := originSet([]string{"https://app.example.com", " ", ""})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"http://localhost:5173", true},
		{"https://localhost", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			if got := isOriginAllowed(tc.origin, allowed); got != tc.want {
				t.Errorf("isOriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func TestIsOriginAllowed_Wildcard(t *testing.T) {
	allowed := originSet([]string{"*"})
	if !isOriginAllowed("https://anything.example", allowed) {
		t.Error("expected wildcard to allow any origin")
	}
}

func TestCORS_Preflight(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the next handler")
	})
	handler := CORS([]string{"https://app.example.com"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recognize", nil)
	req.Header.Set("Origin", "https://app.example.com")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := CORS(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, req)

	if !called {
		t.Error("expected request to reach the next handler")
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no Access-Control-Allow-Origin, got %q", got)
	}
}
