package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func recognizeRequest(t *testing.T, image []byte) *http.Request {
	t.Helper()
	return multipartRequest(t, "/api/v1/recognize", nil, "image", [][]byte{image})
}

func TestRecognitionHandler_Match(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", "Alice", axisX, axisX)
	env.enroll(t, "bob", "Bob", axisY, axisY)
	handler := NewRecognitionHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, recognizeRequest(t, env.extractor.face("query", axisX...)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	matches, _ := decodeBody(t, recorder)["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	match := matches[0].(map[string]any)
	if match["user_id"] != "alice" || match["name"] != "Alice" || match["email"] != "alice@example.com" {
		t.Errorf("unexpected match: %v", match)
	}
	if match["similarity"] != float64(1) {
		t.Errorf("expected similarity 1, got %v", match["similarity"])
	}
}

func TestRecognitionHandler_NoMatch(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", "Alice", axisX, axisX)
	handler := NewRecognitionHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, recognizeRequest(t, env.extractor.face("query", axisY...)))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", recorder.Code)
	}
	result := decodeBody(t, recorder)
	if result["error"] != "No matching user found" {
		t.Errorf("unexpected error: %v", result["error"])
	}
	if result["message"] != "The face in the image doesn't match any registered users" {
		t.Errorf("unexpected message: %v", result["message"])
	}
	if result["top_similarity"] != float64(0) {
		t.Errorf("expected top_similarity 0, got %v", result["top_similarity"])
	}
}

func TestRecognitionHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, env *testEnv) *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name: "no upload",
			setup: func(t *testing.T, env *testEnv) *http.Request {
				return multipartRequest(t, "/api/v1/recognize", map[string]string{"foo": "bar"}, "image", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No image uploaded",
		},
		{
			name: "empty upload",
			setup: func(t *testing.T, env *testEnv) *http.Request {
				return recognizeRequest(t, []byte{})
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No image uploaded",
		},
		{
			name: "no face",
			setup: func(t *testing.T, env *testEnv) *http.Request {
				env.enroll(t, "alice", "Alice", axisX, axisX)
				return recognizeRequest(t, []byte("landscape"))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No face detected in the uploaded image. Please upload a clear image with a visible face",
		},
		{
			name: "empty gallery",
			setup: func(t *testing.T, env *testEnv) *http.Request {
				return recognizeRequest(t, env.extractor.face("query", axisX...))
			},
			wantStatus: http.StatusNotFound,
			wantError:  "No users registered in the system yet",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := NewRecognitionHandler(env.engine, zap.NewNop())
			recorder := httptest.NewRecorder()

			handler.Recognize(recorder, tc.setup(t, env))

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
			if got := decodeBody(t, recorder)["error"]; got != tc.wantError {
				t.Errorf("expected error %q, got %q", tc.wantError, got)
			}
		})
	}
}

func TestRecognitionHandler_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", "Alice", axisX, axisX)
	env.store.GetIdentityError = errors.New("connection refused")
	handler := NewRecognitionHandler(env.engine, zap.NewNop())

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, recognizeRequest(t, env.extractor.face("query", axisX...)))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", recorder.Code)
	}
	msg, _ := decodeBody(t, recorder)["error"].(string)
	if !strings.HasPrefix(msg, "Recognition failed: ") {
		t.Errorf("unexpected error message: %q", msg)
	}
}
