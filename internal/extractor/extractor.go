// Package extractor turns face images into unit-norm embedding vectors.
package extractor

import (
	"context"
	"errors"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// Extractor computes the embedding of the most prominent face in an image.
// Implementations return a unit-norm vector or ErrNoFace. Any other error
// is an extraction fault.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(ctx context.Context, image []byte) ([]float32, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, image []byte) ([]float32, error) {
	return f(ctx, image)
}
