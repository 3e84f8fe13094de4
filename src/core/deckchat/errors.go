package deckchat

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUninitialized       = errors.New("language model and embeddings not initialized")
	ErrConfig              = errors.New("invalid configuration")
	ErrValidation          = errors.New("invalid request")
	ErrNotFound            = errors.New("no index found")
	ErrCorrupt             = errors.New("index is corrupt")
	ErrExtraction          = errors.New("document extraction failed")
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	ErrModelUnavailable    = errors.New("language model unavailable")
	ErrTimeout             = errors.New("operation timed out")

	ErrEmptyIndex        = errors.New("index is empty")
	ErrInvalidK          = errors.New("k must be positive")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// collaboratorError classifies a failed collaborator call. A deadline hit on
// ctx becomes ErrTimeout, anything else is wrapped with kind.
func collaboratorError(ctx context.Context, kind error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}
