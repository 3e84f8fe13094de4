package deckchat

import "context"

// Embedder maps a text segment to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed several texts in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LanguageModel produces text for a prompt, either at once or incrementally.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream calls onToken for every fragment in the order produced. Returning
	// an error from onToken aborts the generation.
	Stream(ctx context.Context, prompt string, onToken func(string) error) error
}

// Extractor turns a document on disk into its ordered elements.
type Extractor interface {
	Extract(ctx context.Context, filePath string) ([]Element, error)
}
