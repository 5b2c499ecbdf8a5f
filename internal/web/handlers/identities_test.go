package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"go.uber.org/zap"
)

var (
	axisX = []float32{1, 0, 0, 0}
	axisY = []float32{0, 1, 0, 0}
	axisZ = []float32{0, 0, 1, 0}
)

func newIdentitiesHandler(env *testEnv) *IdentitiesHandler {
	return NewIdentitiesHandler(env.engine, 4, 2, zap.NewNop())
}

func registerFields() map[string]string {
	return map[string]string{"user_id": "alice", "name": "Alice", "email": "alice@example.com"}
}

func TestIdentitiesHandler_Register_Success(t *testing.T) {
	env := newTestEnv(t)
	handler := newIdentitiesHandler(env)

	images := [][]byte{
		env.extractor.face("img1", axisX...),
		env.extractor.face("img2", axisX...),
		env.extractor.face("img3", axisY...),
		[]byte("no face here"),
	}
	req := multipartRequest(t, "/api/v1/identities", registerFields(), "images", images)
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	result := decodeBody(t, recorder)
	if result["message"] != "User alice registered successfully with 3 face embeddings" {
		t.Errorf("unexpected message: %v", result["message"])
	}
	if result["user_id"] != "alice" || result["name"] != "Alice" {
		t.Errorf("unexpected identity in response: %v", result)
	}
	if result["processed_images"] != float64(3) {
		t.Errorf("expected 3 processed images, got %v", result["processed_images"])
	}
	if _, ok := result["warning"]; ok {
		t.Errorf("unexpected warning: %v", result["warning"])
	}
	if got := len(env.store.Embeddings("alice")); got != 3 {
		t.Errorf("expected 3 stored embeddings, got %d", got)
	}
}

func TestIdentitiesHandler_Register_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		images    func(env *testEnv) [][]byte
		wantError string
	}{
		{
			name:   "missing fields",
			fields: map[string]string{"user_id": "alice", "name": "  "},
			images: func(env *testEnv) [][]byte {
				return [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
			},
			wantError: "Missing required fields: user_id, name, and email are required",
		},
		{
			name:   "too few images",
			fields: registerFields(),
			images: func(env *testEnv) [][]byte {
				return [][]byte{env.extractor.face("a", axisX...), env.extractor.face("b", axisX...), []byte("c")}
			},
			wantError: "Please upload at least 4 face images for better recognition accuracy",
		},
		{
			name:   "no faces",
			fields: registerFields(),
			images: func(env *testEnv) [][]byte {
				return [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
			},
			wantError: "No valid face detected in any image. Please ensure images contain clear, visible faces",
		},
		{
			name:   "one face",
			fields: registerFields(),
			images: func(env *testEnv) [][]byte {
				return [][]byte{env.extractor.face("a", axisX...), []byte("b"), []byte("c"), []byte("d")}
			},
			wantError: "At least 2 images with valid faces are required for registration",
		},
		{
			name:   "too many images",
			fields: registerFields(),
			images: func(env *testEnv) [][]byte {
				images := make([][]byte, 33)
				for i := range images {
					images[i] = []byte("x")
				}
				return images
			},
			wantError: "Too many images, at most 32 are accepted",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			handler := newIdentitiesHandler(env)
			req := multipartRequest(t, "/api/v1/identities", tc.fields, "images", tc.images(env))
			recorder := httptest.NewRecorder()

			handler.Register(recorder, req)

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", recorder.Code, recorder.Body.String())
			}
			if got := decodeBody(t, recorder)["error"]; got != tc.wantError {
				t.Errorf("expected error %q, got %q", tc.wantError, got)
			}
			if env.store.CommitCalls != 0 {
				t.Errorf("expected no commit, got %d", env.store.CommitCalls)
			}
		})
	}
}

func TestIdentitiesHandler_Register_NotMultipart(t *testing.T) {
	env := newTestEnv(t)
	handler := newIdentitiesHandler(env)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", recorder.Code)
	}
}

func TestIdentitiesHandler_Register_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.CommitError = errors.New("disk full")
	handler := newIdentitiesHandler(env)

	images := [][]byte{
		env.extractor.face("img1", axisX...),
		env.extractor.face("img2", axisX...),
		[]byte("c"),
		[]byte("d"),
	}
	req := multipartRequest(t, "/api/v1/identities", registerFields(), "images", images)
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", recorder.Code)
	}
	msg, _ := decodeBody(t, recorder)["error"].(string)
	if !strings.HasPrefix(msg, "Registration failed: ") || !strings.Contains(msg, "disk full") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestIdentitiesHandler_Register_RebuildFailureWarns(t *testing.T) {
	env := newTestEnv(t)
	env.store.ListEmbeddingsError = errors.New("connection reset")
	handler := newIdentitiesHandler(env)

	images := [][]byte{
		env.extractor.face("img1", axisX...),
		env.extractor.face("img2", axisX...),
		[]byte("c"),
		[]byte("d"),
	}
	req := multipartRequest(t, "/api/v1/identities", registerFields(), "images", images)
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if _, ok := decodeBody(t, recorder)["warning"]; !ok {
		t.Error("expected a warning about the index refresh")
	}
}

func TestIdentitiesHandler_List(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "tk", "Tomáš Kozák", axisX, axisX)
	env.enroll(t, "al", "Alice", axisY, axisY, axisY)
	handler := newIdentitiesHandler(env)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	result := decodeBody(t, recorder)
	identities, _ := result["identities"].([]any)
	if len(identities) != 2 || result["count"] != float64(2) {
		t.Fatalf("expected 2 identities, got %v", result)
	}
	first := identities[0].(map[string]any)
	if first["user_id"] != "al" || first["embedding_count"] != float64(3) {
		t.Errorf("expected al with 3 embeddings first, got %v", first)
	}
}

func TestIdentitiesHandler_List_NameFilter(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "tk", "Tomáš Kozák", axisX, axisX)
	env.enroll(t, "al", "Alice", axisY, axisY)
	handler := newIdentitiesHandler(env)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities?name=tomas", nil))

	identities, _ := decodeBody(t, recorder)["identities"].([]any)
	if len(identities) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(identities))
	}
	if got := identities[0].(map[string]any)["name"]; got != "Tomáš Kozák" {
		t.Errorf("expected Tomáš Kozák, got %v", got)
	}
}

func TestIdentitiesHandler_List_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.ListIdentitiesError = errors.New("boom")
	handler := newIdentitiesHandler(env)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", recorder.Code)
	}
}

func TestIdentitiesHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", "Alice", axisX, axisZ)
	handler := newIdentitiesHandler(env)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing", "alice", http.StatusOK},
		{"missing", "bob", http.StatusNotFound},
		{"empty", "", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/identities/x", nil),
				map[string]string{"id": tc.id})
			recorder := httptest.NewRecorder()

			handler.Get(recorder, req)

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, recorder.Code)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			result := decodeBody(t, recorder)
			if result["email"] != "alice@example.com" || result["embedding_count"] != float64(2) {
				t.Errorf("unexpected identity: %v", result)
			}
		})
	}
}

func TestIdentitiesHandler_Register_BlankFileInputsCount(t *testing.T) {
	env := newTestEnv(t)
	handler := newIdentitiesHandler(env)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range registerFields() {
		writer.WriteField(key, value)
	}
	faces := [][]byte{env.extractor.face("img1", axisX...), env.extractor.face("img2", axisY...)}
	for i, data := range faces {
		part, err := writer.CreateFormFile("images", "face"+string(rune('0'+i))+".jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	for range 2 {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="images"; filename=""`)
		header.Set("Content-Type", "application/octet-stream")
		if _, err := writer.CreatePart(header); err != nil {
			t.Fatalf("failed to create blank part: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if got := decodeBody(t, recorder)["processed_images"]; got != float64(2) {
		t.Errorf("expected 2 processed images, got %v", got)
	}
}

func TestFormField(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"id", "user_id"},
		{"display_name", "name"},
		{"contact", "email"},
		{"image", "image"},
	}
	for _, tt := range tests {
		if got := formField(tt.field); got != tt.want {
			t.Errorf("formField(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}
