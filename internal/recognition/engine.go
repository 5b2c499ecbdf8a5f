// Package recognition implements the matching engine: enrollment of
// identities from face images, recognition of a face against the enrolled
// gallery, and the synchronization of the in-memory index with the store.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/extractor"
	"github.com/kozaktomas/face-registry/internal/index"
	"github.com/kozaktomas/face-registry/internal/logging"
)

// IndexState describes how the published snapshot relates to the store.
type IndexState int32

const (
	// StateUninitialized means no snapshot has been published yet.
	StateUninitialized IndexState = iota
	// StateStale means the store changed after the published snapshot was built.
	StateStale
	// StateRebuilding means a rebuild is in progress.
	StateRebuilding
	// StateCurrent means the published snapshot mirrors the store.
	StateCurrent
)

func (s IndexState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStale:
		return "stale"
	case StateRebuilding:
		return "rebuilding"
	case StateCurrent:
		return "current"
	}
	return fmt.Sprintf("IndexState(%d)", int32(s))
}

// EnrollRequest is one enrollment submission.
type EnrollRequest struct {
	ID          string
	DisplayName string
	Contact     string
	Images      [][]byte
}

// EnrollResult describes a committed enrollment. RebuildErr is set when the
// enrollment was stored but the index could not be rebuilt afterwards.
type EnrollResult struct {
	OperationID     string
	IdentityID      string
	DisplayName     string
	AcceptedVectors int
	SkippedImages   int
	RebuildErr      error
}

// MatchCandidate is one recognized identity.
type MatchCandidate struct {
	IdentityID  string
	DisplayName string
	Contact     string
	Similarity  float32
}

// IndexStats is a point-in-time view of the published snapshot.
type IndexStats struct {
	State      IndexState
	Mode       index.Mode
	Vectors    int
	Identities int
	Generation string
	BuiltAt    time.Time
}

// Engine orchestrates extraction, storage and the similarity index.
type Engine struct {
	store       database.EmbeddingStore
	extractor   extractor.Extractor
	index       *index.Index
	policy      config.MatchingConfig
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics

	// writeMu serializes enrollment commits and index rebuilds so a rebuild
	// always reads the store after every preceding commit.
	writeMu sync.Mutex
	state   atomic.Int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of parallel extractions per enrollment.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an engine. The index starts uninitialized; call Rebuild once
// at startup to load the gallery.
func New(store database.EmbeddingStore, ext extractor.Extractor, idx *index.Index, policy config.MatchingConfig,
	logger *zap.Logger, metrics *Metrics, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:       store,
		extractor:   ext,
		index:       idx,
		policy:      policy,
		concurrency: 4,
		logger:      logger.Named("recognition"),
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	if idx.Initialized() {
		e.state.Store(int32(StateCurrent))
	}
	return e
}

// State returns the current index state.
func (e *Engine) State() IndexState {
	return IndexState(e.state.Load())
}

// Stats describes the published snapshot.
func (e *Engine) Stats() IndexStats {
	snap := e.index.Current()
	return IndexStats{
		State:      e.State(),
		Mode:       e.index.Mode(),
		Vectors:    snap.Len(),
		Identities: snap.IdentityCount(),
		Generation: snap.Generation(),
		BuiltAt:    snap.BuiltAt(),
	}
}

// Policy returns the matching policy in use.
func (e *Engine) Policy() config.MatchingConfig {
	return e.policy
}

// Enroll stores an identity with the embeddings of its usable images,
// replacing any earlier enrollment, and rebuilds the index.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	opID := uuid.NewString()
	log := logging.WithOperation(e.logger, "recognition.enroll", opID)

	req.ID = strings.TrimSpace(req.ID)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Contact = strings.TrimSpace(req.Contact)

	switch {
	case req.ID == "":
		e.metrics.enrollment(outcomeInvalid)
		return nil, &ValidationError{Field: "id"}
	case req.DisplayName == "":
		e.metrics.enrollment(outcomeInvalid)
		return nil, &ValidationError{Field: "display_name"}
	case req.Contact == "":
		e.metrics.enrollment(outcomeInvalid)
		return nil, &ValidationError{Field: "contact"}
	}
	log = log.With(zap.String("identity_id", req.ID))

	if len(req.Images) < e.policy.MinImages {
		e.metrics.enrollment(outcomeInsufficientInput)
		return nil, &InsufficientInputError{Got: len(req.Images), Want: e.policy.MinImages}
	}

	vectors, err := e.extractAll(ctx, log, req.Images)
	if err != nil {
		e.metrics.enrollment(outcomeError)
		return nil, logging.NewOperationError("recognition.enroll.extract", opID, err)
	}
	switch {
	case len(vectors) == 0:
		e.metrics.enrollment(outcomeNoFace)
		return nil, ErrNoFaceDetected
	case len(vectors) < e.policy.MinFaces:
		e.metrics.enrollment(outcomeInsufficientFaces)
		return nil, &InsufficientFacesError{Got: len(vectors), Want: e.policy.MinFaces}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	err = e.store.WithEnrollmentTx(ctx, func(tx database.EnrollmentTx) error {
		if err := tx.UpsertIdentity(ctx, database.Identity{
			ID:          req.ID,
			DisplayName: req.DisplayName,
			Contact:     req.Contact,
		}); err != nil {
			return fmt.Errorf("upsert identity: %w", err)
		}
		if err := tx.ReplaceEmbeddings(ctx, req.ID, vectors); err != nil {
			return fmt.Errorf("replace embeddings: %w", err)
		}
		return nil
	})
	if err != nil {
		wrapped := logging.NewOperationError("recognition.enroll.commit", opID, err)
		log.Error("enrollment rolled back", zap.Error(wrapped))
		e.metrics.enrollment(outcomeError)
		return nil, wrapped
	}
	e.state.Store(int32(StateStale))
	log.Info("identity enrolled",
		zap.Int("accepted_vectors", len(vectors)),
		zap.Int("skipped_images", len(req.Images)-len(vectors)))

	result := &EnrollResult{
		OperationID:     opID,
		IdentityID:      req.ID,
		DisplayName:     req.DisplayName,
		AcceptedVectors: len(vectors),
		SkippedImages:   len(req.Images) - len(vectors),
	}
	if err := e.rebuildLocked(ctx, log); err != nil {
		result.RebuildErr = err
	}
	e.metrics.enrollment(outcomeSuccess)
	return result, nil
}

// extractAll extracts every image concurrently and returns the usable
// vectors in input order. Images without a face and extraction faults are
// skipped. It fails only when ctx is done.
func (e *Engine) extractAll(ctx context.Context, log *zap.Logger, images [][]byte) ([][]float32, error) {
	slots := make([][]float32, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, img := range images {
		g.Go(func() error {
			slots[i] = e.extractOne(gctx, log.With(zap.Int("image", i)), img)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(images))
	for _, v := range slots {
		if v != nil {
			vectors = append(vectors, v)
		}
	}
	return vectors, nil
}

// extractOne returns the unit vector for one enrollment image, or nil when
// the image has to be skipped.
func (e *Engine) extractOne(ctx context.Context, log *zap.Logger, img []byte) []float32 {
	if len(img) == 0 {
		e.metrics.extraction(extractionEmpty)
		log.Debug("skipping empty image")
		return nil
	}
	vec, err := e.extract(ctx, img)
	switch {
	case errors.Is(err, extractor.ErrNoFace):
		e.metrics.extraction(extractionNoFace)
		log.Debug("no face detected, skipping image")
		return nil
	case err != nil:
		e.metrics.extraction(extractionFault)
		log.Warn("face extraction failed, skipping image", zap.Error(err))
		return nil
	}
	e.metrics.extraction(extractionFace)
	return vec
}

// extract calls the extractor and enforces the embedding contract:
// the configured dimension and unit norm.
func (e *Engine) extract(ctx context.Context, img []byte) ([]float32, error) {
	vec, err := e.extractor.Extract(ctx, img)
	if err != nil {
		return nil, err
	}
	if e.policy.EmbeddingDim > 0 && len(vec) != e.policy.EmbeddingDim {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(vec), e.policy.EmbeddingDim)
	}
	if !database.IsUnitNorm(vec) {
		if vec = database.Normalize(vec); vec == nil {
			return nil, errors.New("zero-norm embedding")
		}
	}
	return vec, nil
}

// Recognize identifies the face in image against the enrolled gallery.
func (e *Engine) Recognize(ctx context.Context, image []byte) ([]MatchCandidate, error) {
	opID := uuid.NewString()
	log := logging.WithOperation(e.logger, "recognition.recognize", opID)

	if len(image) == 0 {
		e.metrics.recognition(outcomeInvalid)
		return nil, &ValidationError{Field: "image"}
	}

	query, err := e.extract(ctx, image)
	switch {
	case errors.Is(err, extractor.ErrNoFace):
		e.metrics.extraction(extractionNoFace)
		e.metrics.recognition(outcomeNoFace)
		return nil, ErrNoFaceDetected
	case err != nil:
		e.metrics.extraction(extractionFault)
		e.metrics.recognition(outcomeError)
		wrapped := logging.NewOperationError("recognition.recognize.extract", opID, err)
		log.Error("face extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}
	e.metrics.extraction(extractionFace)

	rebuildErr := e.refreshIfStale(ctx, log)

	snap := e.index.Current()
	if snap == nil && rebuildErr != nil {
		e.metrics.recognition(outcomeError)
		return nil, rebuildErr
	}
	if snap.Len() == 0 {
		e.metrics.recognition(outcomeEmptyGallery)
		return nil, ErrEmptyGallery
	}

	hits := snap.Search(query, SearchWidth(snap.IdentityCount(), e.policy.MaxSearchWidth))
	ranked := Rank(hits, e.policy.Threshold, e.policy.MaxResults)
	noMatch := func() error {
		e.metrics.recognition(outcomeNoMatch)
		var top float32
		if len(hits) > 0 {
			top = hits[0].Score
		}
		log.Debug("no identity above threshold", zap.Float32("top_similarity", top))
		return &NoMatchError{TopSimilarity: top}
	}
	if len(ranked) == 0 {
		return nil, noMatch()
	}

	matches := make([]MatchCandidate, 0, len(ranked))
	for _, hit := range ranked {
		identity, err := e.store.GetIdentity(ctx, hit.OwnerID)
		if errors.Is(err, database.ErrNotFound) {
			log.Error("dropping candidate", zap.Error(&ConsistencyFault{OwnerID: hit.OwnerID}))
			continue
		}
		if err != nil {
			e.metrics.recognition(outcomeError)
			return nil, logging.NewOperationError("recognition.recognize.resolve", opID, err)
		}
		matches = append(matches, MatchCandidate{
			IdentityID:  identity.ID,
			DisplayName: identity.DisplayName,
			Contact:     identity.Contact,
			Similarity:  hit.Score,
		})
	}
	if len(matches) == 0 {
		return nil, noMatch()
	}

	e.metrics.recognition(outcomeMatch)
	return matches, nil
}

// refreshIfStale retries a pending rebuild when no writer holds the lock.
// A running enrollment will rebuild on its own, so recognition never waits.
func (e *Engine) refreshIfStale(ctx context.Context, log *zap.Logger) error {
	if e.State() == StateCurrent {
		return nil
	}
	if !e.writeMu.TryLock() {
		return nil
	}
	defer e.writeMu.Unlock()
	if e.State() == StateCurrent {
		return nil
	}
	return e.rebuildLocked(ctx, log)
}

// Rebuild reloads every embedding from the store and publishes a new
// snapshot. It waits for a running enrollment to finish.
func (e *Engine) Rebuild(ctx context.Context) error {
	log := logging.WithOperation(e.logger, "recognition.rebuild", uuid.NewString())
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.rebuildLocked(ctx, log)
}

// rebuildLocked must be called with writeMu held. On failure the previous
// snapshot stays published and the state falls back to stale.
func (e *Engine) rebuildLocked(ctx context.Context, log *zap.Logger) error {
	e.state.Store(int32(StateRebuilding))
	start := time.Now()

	records, err := e.store.ListEmbeddings(ctx)
	var snap *index.Snapshot
	if err == nil {
		snap, err = e.index.Rebuild(records)
	}
	if err != nil {
		if e.index.Initialized() {
			e.state.Store(int32(StateStale))
		} else {
			e.state.Store(int32(StateUninitialized))
		}
		e.metrics.rebuildFailed()
		rebuildErr := &RebuildError{Err: err}
		log.Error("index rebuild failed, serving previous snapshot", zap.Error(rebuildErr))
		return rebuildErr
	}

	e.state.Store(int32(StateCurrent))
	elapsed := time.Since(start)
	e.metrics.rebuilt(elapsed, snap.Len(), snap.IdentityCount())
	log.Info("index rebuilt",
		zap.Int("vectors", snap.Len()),
		zap.Int("identities", snap.IdentityCount()),
		zap.String("generation", snap.Generation()),
		zap.Duration("duration", elapsed))
	return nil
}
