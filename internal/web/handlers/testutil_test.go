package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/extractor"
	"github.com/kozaktomas/face-registry/internal/index"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

const testDim = 4

// fakeExtractor returns a fixed vector per image content; unknown images have no face
type fakeExtractor struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vec, ok := f.vectors[string(image)]; ok {
		return append([]float32(nil), vec...), nil
	}
	return nil, extractor.ErrNoFace
}

func (f *fakeExtractor) face(image string, vec ...float32) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[image] = vec
	return []byte(image)
}

type testEnv struct {
	engine    *recognition.Engine
	store     *mock.MockEmbeddingStore
	extractor *fakeExtractor
}

// newTestEnv creates an engine backed by the in-memory store
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.NewMockEmbeddingStore()
	ext := &fakeExtractor{vectors: make(map[string][]float32)}
	policy := config.MatchingConfig{
		Threshold:      0.45,
		MaxResults:     3,
		MaxSearchWidth: 10,
		MinImages:      4,
		MinFaces:       2,
		EmbeddingDim:   testDim,
	}
	engine := recognition.New(store, ext, index.New(index.ModeExact), policy, zap.NewNop(), nil)
	if err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}
	return &testEnv{engine: engine, store: store, extractor: ext}
}

// enroll registers an identity directly through the engine with one face per axis entry
func (e *testEnv) enroll(t *testing.T, id, name string, vectors ...[]float32) {
	t.Helper()
	var images [][]byte
	for i, v := range vectors {
		images = append(images, e.extractor.face(id+"-"+string(rune('a'+i)), v...))
	}
	for len(images) < 4 {
		images = append(images, []byte("noface"))
	}
	_, err := e.engine.Enroll(context.Background(), recognition.EnrollRequest{
		ID: id, DisplayName: name, Contact: id + "@example.com", Images: images,
	})
	if err != nil {
		t.Fatalf("enroll %s: %v", id, err)
	}
}

// multipartRequest builds a multipart POST with the given fields and files
func multipartRequest(t *testing.T, path string, fields map[string]string, fileField string, files [][]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for i, data := range files {
		part, err := writer.CreateFormFile(fileField, "image"+string(rune('0'+i))+".jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody unmarshals a JSON response body
func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return result
}
