package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

// IdentitiesHandler handles enrollment and identity lookup endpoints.
type IdentitiesHandler struct {
	engine    Engine
	minImages int
	minFaces  int
	logger    *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler. minImages and
// minFaces only shape the error messages; the engine enforces the policy.
func NewIdentitiesHandler(engine Engine, minImages, minFaces int, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{
		engine:    engine,
		minImages: minImages,
		minFaces:  minFaces,
		logger:    logger,
	}
}

// IdentityResponse is the JSON view of an enrolled identity.
type IdentityResponse struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	EmbeddingCount int       `json:"embedding_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toIdentityResponse(s database.IdentitySummary) IdentityResponse {
	return IdentityResponse{
		UserID:         s.ID,
		Name:           s.DisplayName,
		Email:          s.Contact,
		EmbeddingCount: s.EmbeddingCount,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// readUploadedImages reads every uploaded file into memory.
func readUploadedImages(files []*multipart.FileHeader) ([][]byte, error) {
	images := make([][]byte, 0, len(files))
	for _, fileHeader := range files {
		data, err := func() ([]byte, error) {
			file, err := fileHeader.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %s", fileHeader.Filename)
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %s", fileHeader.Filename)
			}
			return data, nil
		}()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// Register enrolls an identity from a multipart form with user_id, name,
// email and one or more images.
func (h *IdentitiesHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["images"]
	// A file input left empty arrives as a part with filename="", which
	// mime/multipart stores as a form value. It still counts towards the
	// minimum image count and is skipped as an empty image.
	blanks := len(r.MultipartForm.Value["images"])
	if len(files)+blanks > constants.MaxImagesPerEnrollment {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Too many images, at most %d are accepted", constants.MaxImagesPerEnrollment))
		return
	}
	images, err := readUploadedImages(files)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for range blanks {
		images = append(images, nil)
	}

	result, err := h.engine.Enroll(r.Context(), recognition.EnrollRequest{
		ID:          r.FormValue("user_id"),
		DisplayName: r.FormValue("name"),
		Contact:     r.FormValue("email"),
		Images:      images,
	})
	if err != nil {
		h.respondEnrollError(w, err)
		return
	}

	resp := map[string]any{
		"message": fmt.Sprintf("User %s registered successfully with %d face embeddings",
			result.IdentityID, result.AcceptedVectors),
		"user_id":          result.IdentityID,
		"name":             result.DisplayName,
		"processed_images": result.AcceptedVectors,
	}
	if result.RebuildErr != nil {
		resp["warning"] = "enrollment stored but the index could not be refreshed; it will be retried"
	}
	respondJSON(w, http.StatusOK, resp)
}

// formField maps an enrollment field to the multipart form field carrying it.
func formField(field string) string {
	switch field {
	case "id":
		return "user_id"
	case "display_name":
		return "name"
	case "contact":
		return "email"
	}
	return field
}

func (h *IdentitiesHandler) respondEnrollError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recognition.ErrValidation):
		var vErr *recognition.ValidationError
		if errors.As(err, &vErr) {
			h.logger.Debug("registration rejected", zap.String("form_field", formField(vErr.Field)))
		}
		respondError(w, http.StatusBadRequest, "Missing required fields: user_id, name, and email are required")
	case errors.Is(err, recognition.ErrInsufficientInput):
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Please upload at least %d face images for better recognition accuracy", h.minImages))
	case errors.Is(err, recognition.ErrNoFaceDetected):
		respondError(w, http.StatusBadRequest,
			"No valid face detected in any image. Please ensure images contain clear, visible faces")
	case errors.Is(err, recognition.ErrInsufficientFaces):
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("At least %d images with valid faces are required for registration", h.minFaces))
	default:
		h.logger.Error("registration failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Registration failed: %v", err))
	}
}

// List returns enrolled identities, optionally filtered by ?name=.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.engine.ListIdentities(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		h.logger.Error("listing identities failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}

	identities := make([]IdentityResponse, 0, len(summaries))
	for _, s := range summaries {
		identities = append(identities, toIdentityResponse(s))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": identities,
		"count":      len(identities),
	})
}

// Get returns a single identity with its embedding count.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing identity ID")
		return
	}

	summary, err := h.engine.GetIdentity(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		h.logger.Error("loading identity failed", zap.String("identity", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load identity")
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(*summary))
}
