package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

// Engine is the part of the recognition engine the HTTP handlers use.
type Engine interface {
	Enroll(ctx context.Context, req recognition.EnrollRequest) (*recognition.EnrollResult, error)
	Recognize(ctx context.Context, image []byte) ([]recognition.MatchCandidate, error)
	ListIdentities(ctx context.Context, name string) ([]database.IdentitySummary, error)
	GetIdentity(ctx context.Context, id string) (*database.IdentitySummary, error)
	Rebuild(ctx context.Context) error
	Stats() recognition.IndexStats
	Policy() config.MatchingConfig
}

var _ Engine = (*recognition.Engine)(nil)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
