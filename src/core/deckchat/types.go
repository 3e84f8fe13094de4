package deckchat

// Element is one unit of extracted content, e.g. a text block on a slide.
type Element struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// Chunk is a bounded text segment with provenance back to its elements.
// Start and End are rune offsets into the joined document text.
type Chunk struct {
	Order    int    `json:"order"`
	Text     string `json:"text"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Elements []int  `json:"elements,omitempty"`
	Slides   []int  `json:"slides,omitempty"`
}

// EmbeddedChunk is a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// Match is a query hit.
type Match struct {
	EmbeddedChunk
	Distance float64
}

// Fragment is a piece of a streamed answer. The last fragment of a failed
// stream carries Err.
type Fragment struct {
	Text string
	Err  error
}

// IngestResult is returned by a successful ingestion.
type IngestResult struct {
	DocumentID int64    `json:"document_id"`
	ChunkCount int      `json:"chunk_count"`
	Questions  []string `json:"queries"`
}
