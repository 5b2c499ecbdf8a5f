package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

const (
	defaultExtractorURL   = "http://localhost:8000"
	defaultExtractorModel = "buffalo_l" // model name for reference only
	faceEndpoint          = "/embed/face"
)

// ClientOptions configures an HTTPClient.
type ClientOptions struct {
	BaseURL           string
	Model             string
	Dim               int           // expected embedding dimension, 0 skips the check
	MaxImageSize      int           // images are re-encoded and downscaled when > 0
	RequestsPerSecond float64       // 0 disables rate limiting
	Timeout           time.Duration // per request, 0 means no timeout
}

// HTTPClient extracts face embeddings using the embedding server.
type HTTPClient struct {
	baseURL      string
	model        string
	dim          int
	maxImageSize int
	client       *http.Client
	limiter      *rate.Limiter
}

// NewHTTPClient creates a new extractor backed by the embedding server
func NewHTTPClient(opts ClientOptions) *HTTPClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	model := opts.Model
	if model == "" {
		model = defaultExtractorModel
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}
	return &HTTPClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		dim:          opts.Dim,
		maxImageSize: opts.MaxImageSize,
		client:       &http.Client{Timeout: opts.Timeout},
		limiter:      limiter,
	}
}

// Model returns the model name being used
func (c *HTTPClient) Model() string {
	return c.model
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract detects faces in the image and returns the normalized embedding of
// the face with the largest bounding box.
func (c *HTTPClient) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}

	data := image
	if c.maxImageSize > 0 {
		prepared, err := PrepareImage(image, c.maxImageSize)
		if err != nil {
			return nil, fmt.Errorf("preparing image: %w", err)
		}
		data = prepared
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	faceResp, err := c.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, err
	}
	return c.selectEmbedding(faceResp)
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *HTTPClient) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

func (c *HTTPClient) selectEmbedding(faceResp *FaceResponse) ([]float32, error) {
	if len(faceResp.Faces) == 0 {
		return nil, ErrNoFace
	}

	boxes := make([][]float64, len(faceResp.Faces))
	for i, face := range faceResp.Faces {
		boxes[i] = face.BBox
	}
	face := faceResp.Faces[facematch.LargestBBox(boxes)]

	if len(face.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if c.dim > 0 && len(face.Embedding) != c.dim {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(face.Embedding), c.dim)
	}
	normalized := database.Normalize(face.Embedding)
	if normalized == nil {
		return nil, errors.New("zero-norm embedding returned")
	}
	return normalized, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *HTTPClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
