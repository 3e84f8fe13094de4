package deckchat

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	indexFormat  = "deckrag-index"
	indexVersion = 1
)

type indexEnvelope struct {
	Format         string          `json:"format"`
	Version        int             `json:"version"`
	Metric         Metric          `json:"metric"`
	Dimension      int             `json:"dimension"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Chunks         []EmbeddedChunk `json:"chunks"`
}

// EncodeIndex serializes an index for durable storage.
func EncodeIndex(ix *VectorIndex) ([]byte, error) {
	env := indexEnvelope{
		Format:         indexFormat,
		Version:        indexVersion,
		Metric:         ix.Metric,
		Dimension:      ix.Dimension,
		EmbeddingModel: ix.EmbeddingModel,
		CreatedAt:      ix.CreatedAt,
		Chunks:         ix.Chunks,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return data, nil
}

// DecodeIndex parses and validates a serialized index. Any failure is ErrCorrupt.
func DecodeIndex(data []byte) (*VectorIndex, error) {
	var env indexEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Format != indexFormat || env.Version != indexVersion {
		return nil, fmt.Errorf("%w: unsupported format %q version %d", ErrCorrupt, env.Format, env.Version)
	}

	ix := &VectorIndex{
		Metric:         env.Metric,
		Dimension:      env.Dimension,
		EmbeddingModel: env.EmbeddingModel,
		CreatedAt:      env.CreatedAt,
		Chunks:         env.Chunks,
	}
	if err := ix.Validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Validate checks the invariants a loaded index must satisfy.
func (ix *VectorIndex) Validate() error {
	if _, err := ParseMetric(string(ix.Metric)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(ix.Chunks) == 0 {
		return fmt.Errorf("%w: no chunks", ErrCorrupt)
	}
	if ix.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", ErrCorrupt, ix.Dimension)
	}
	for i, c := range ix.Chunks {
		if len(c.Vector) != ix.Dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", ErrCorrupt, i, len(c.Vector), ix.Dimension)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: chunk %d is empty", ErrCorrupt, i)
		}
	}
	return nil
}
