package deckchat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Metric is the distance function of an index.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"

	DefaultEmbedBatchSize = 64
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("%w: unknown distance metric %q", ErrConfig, s)
	}
}

// VectorIndex holds the embedded chunks of one user's document and answers
// exact nearest-neighbour queries over them.
type VectorIndex struct {
	Metric         Metric
	Dimension      int
	EmbeddingModel string
	CreatedAt      time.Time
	Chunks         []EmbeddedChunk
}

// Len returns the number of chunks in the index.
func (ix *VectorIndex) Len() int {
	return len(ix.Chunks)
}

type buildOptions struct {
	metric     Metric
	model      string
	batchSize  int
	timeout    time.Duration
	onProgress func(done, total int)
}

type BuildOption func(o *buildOptions)

func WithMetric(m Metric) BuildOption {
	return func(o *buildOptions) {
		o.metric = m
	}
}

// WithEmbeddingModel records the model name in the index.
func WithEmbeddingModel(model string) BuildOption {
	return func(o *buildOptions) {
		o.model = model
	}
}

func WithBatchSize(n int) BuildOption {
	return func(o *buildOptions) {
		o.batchSize = n
	}
}

// WithEmbedTimeout bounds every single embedder call.
func WithEmbedTimeout(d time.Duration) BuildOption {
	return func(o *buildOptions) {
		o.timeout = d
	}
}

// WithProgress is called after every embedded batch.
func WithProgress(fn func(done, total int)) BuildOption {
	return func(o *buildOptions) {
		o.onProgress = fn
	}
}

// BuildIndex embeds every chunk and assembles the index. Nothing is returned
// unless all chunks were embedded.
func BuildIndex(ctx context.Context, chunks []Chunk, embedder Embedder, opts ...BuildOption) (*VectorIndex, error) {
	o := buildOptions{
		metric:    MetricL2,
		batchSize: DefaultEmbedBatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = 1
	}

	ix := &VectorIndex{
		Metric:         o.metric,
		EmbeddingModel: o.model,
		CreatedAt:      time.Now().UTC(),
		Chunks:         make([]EmbeddedChunk, 0, len(chunks)),
	}

	for from := 0; from < len(chunks); from += o.batchSize {
		to := min(from+o.batchSize, len(chunks))
		vectors, err := embedBatch(ctx, embedder, chunks[from:to], o.timeout)
		if err != nil {
			return nil, err
		}
		for i, v := range vectors {
			if err := ix.checkDimension(v); err != nil {
				return nil, fmt.Errorf("%w: chunk %d: %v", ErrEmbedderUnavailable, from+i, err)
			}
			ix.Chunks = append(ix.Chunks, EmbeddedChunk{Chunk: chunks[from+i], Vector: v})
		}
		if o.onProgress != nil {
			o.onProgress(to, len(chunks))
		}
	}

	return ix, nil
}

func embedBatch(ctx context.Context, embedder Embedder, chunks []Chunk, timeout time.Duration) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	if be, ok := embedder.(BatchEmbedder); ok && len(texts) > 1 {
		callCtx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		vectors, err := be.EmbedBatch(callCtx, texts)
		if err != nil {
			return nil, collaboratorError(callCtx, ErrEmbedderUnavailable, "embed batch", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedderUnavailable, len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := embedOne(ctx, embedder, text, timeout)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func embedOne(ctx context.Context, embedder Embedder, text string, timeout time.Duration) ([]float32, error) {
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	v, err := embedder.Embed(callCtx, text)
	if err != nil {
		return nil, collaboratorError(callCtx, ErrEmbedderUnavailable, "embed", err)
	}
	return v, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (ix *VectorIndex) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	if ix.Dimension == 0 {
		ix.Dimension = len(v)
		return nil
	}
	if len(v) != ix.Dimension {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, ix.Dimension, len(v))
	}
	return nil
}

// Query returns the k chunks closest to vector by ascending distance. Equal
// distances keep chunk order.
func (ix *VectorIndex) Query(vector []float32, k int) ([]Match, error) {
	if len(ix.Chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(vector) != ix.Dimension {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, ix.Dimension, len(vector))
	}

	matches := make([]Match, len(ix.Chunks))
	for i, c := range ix.Chunks {
		matches[i] = Match{EmbeddedChunk: c, Distance: ix.distance(c.Vector, vector)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

func (ix *VectorIndex) distance(a, b []float32) float64 {
	if ix.Metric == MetricCosine {
		return cosineDistance(a, b)
	}
	return squaredL2(a, b)
}

// squaredL2 orders identically to L2 and skips the square root.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
