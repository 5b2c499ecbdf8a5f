package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// IndexHandler exposes index health and maintenance endpoints.
type IndexHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(engine Engine, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{engine: engine, logger: logger}
}

// IndexStatsResponse describes the published index snapshot.
type IndexStatsResponse struct {
	State      string     `json:"state"`
	Mode       string     `json:"mode"`
	Vectors    int        `json:"vectors"`
	Identities int        `json:"identities"`
	Generation string     `json:"generation,omitempty"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
}

func (h *IndexHandler) stats() IndexStatsResponse {
	s := h.engine.Stats()
	resp := IndexStatsResponse{
		State:      s.State.String(),
		Mode:       string(s.Mode),
		Vectors:    s.Vectors,
		Identities: s.Identities,
		Generation: s.Generation,
	}
	if !s.BuiltAt.IsZero() {
		builtAt := s.BuiltAt
		resp.BuiltAt = &builtAt
	}
	return resp
}

// PolicyResponse is the matching policy the engine runs with.
type PolicyResponse struct {
	Threshold    float32 `json:"threshold"`
	MaxResults   int     `json:"max_results"`
	MinImages    int     `json:"min_images"`
	MinFaces     int     `json:"min_faces"`
	EmbeddingDim int     `json:"embedding_dim"`
}

// Health reports liveness together with the index state and matching policy.
func (h *IndexHandler) Health(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Policy()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"index":  h.stats(),
		"policy": PolicyResponse{
			Threshold:    p.Threshold,
			MaxResults:   p.MaxResults,
			MinImages:    p.MinImages,
			MinFaces:     p.MinFaces,
			EmbeddingDim: p.EmbeddingDim,
		},
	})
}

// Rebuild reloads the index from the store.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Rebuild(r.Context()); err != nil {
		h.logger.Error("index rebuild failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "index rebuild failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"index": h.stats()})
}
