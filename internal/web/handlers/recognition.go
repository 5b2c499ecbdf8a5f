package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

// RecognitionHandler handles the recognition endpoint.
type RecognitionHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(engine Engine, logger *zap.Logger) *RecognitionHandler {
	return &RecognitionHandler{engine: engine, logger: logger}
}

// MatchResponse is one recognized identity.
type MatchResponse struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Similarity float32 `json:"similarity"`
}

// Recognize matches the face in the uploaded image against the gallery.
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No image uploaded")
		return
	}
	image, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded image")
		return
	}

	candidates, err := h.engine.Recognize(r.Context(), image)
	if err != nil {
		h.respondRecognizeError(w, err)
		return
	}

	matches := make([]MatchResponse, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, MatchResponse{
			UserID:     c.IdentityID,
			Name:       c.DisplayName,
			Email:      c.Contact,
			Similarity: c.Similarity,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *RecognitionHandler) respondRecognizeError(w http.ResponseWriter, err error) {
	var noMatch *recognition.NoMatchError
	switch {
	case errors.Is(err, recognition.ErrValidation):
		respondError(w, http.StatusBadRequest, "No image uploaded")
	case errors.Is(err, recognition.ErrNoFaceDetected):
		respondError(w, http.StatusBadRequest,
			"No face detected in the uploaded image. Please upload a clear image with a visible face")
	case errors.Is(err, recognition.ErrEmptyGallery):
		respondError(w, http.StatusNotFound, "No users registered in the system yet")
	case errors.As(err, &noMatch):
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":          "No matching user found",
			"message":        "The face in the image doesn't match any registered users",
			"top_similarity": noMatch.TopSimilarity,
		})
	default:
		h.logger.Error("recognition failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Recognition failed: %v", err))
	}
}
