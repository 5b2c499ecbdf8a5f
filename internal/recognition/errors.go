package recognition

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientInput = errors.New("insufficient input")
	ErrNoFaceDetected    = errors.New("no face detected")
	ErrInsufficientFaces = errors.New("insufficient faces")
	ErrEmptyGallery      = errors.New("no identities enrolled")
	ErrNoMatch           = errors.New("no match found")
)

// ValidationError reports a required field that is missing or blank.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InsufficientInputError reports that fewer images were supplied than the
// enrollment policy requires.
type InsufficientInputError struct {
	Got  int
	Want int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("at least %d images are required, got %d", e.Want, e.Got)
}

func (e *InsufficientInputError) Is(target error) bool {
	return target == ErrInsufficientInput
}

// InsufficientFacesError reports that too few images produced a usable face.
type InsufficientFacesError struct {
	Got  int
	Want int
}

func (e *InsufficientFacesError) Error() string {
	return fmt.Sprintf("at least %d images with a detectable face are required, got %d", e.Want, e.Got)
}

func (e *InsufficientFacesError) Is(target error) bool {
	return target == ErrInsufficientFaces
}

// NoMatchError is returned when no candidate reaches the similarity
// threshold. TopSimilarity is the best raw score before thresholding.
type NoMatchError struct {
	TopSimilarity float32
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no match found (top similarity %.4f)", e.TopSimilarity)
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}

// RebuildError reports a failed index rebuild. The previous snapshot keeps
// serving queries and the rebuild is retried lazily.
type RebuildError struct {
	Err error
}

func (e *RebuildError) Error() string {
	return fmt.Sprintf("index rebuild failed: %v", e.Err)
}

func (e *RebuildError) Unwrap() error {
	return e.Err
}

// ConsistencyFault describes an index entry whose identity record cannot be
// found. It is logged and the candidate is dropped, never returned to callers.
type ConsistencyFault struct {
	OwnerID string
}

func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("index references unknown identity %q", e.OwnerID)
}
