package deckchat

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 10

	// elementSeparator joins element texts into the document text.
	elementSeparator = "\n\n"
)

// Chunker splits document text into overlapping segments of at most size
// runes. Consecutive chunks share exactly overlap runes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

type span struct {
	element    int
	start, end int
	page       int
}

// JoinElements returns the document text built from the non-blank elements.
func JoinElements(elements []Element) string {
	text, _ := joinElements(elements)
	return text
}

func joinElements(elements []Element) (string, []span) {
	var (
		b     strings.Builder
		spans []span
		pos   int
	)
	for i, el := range elements {
		if strings.TrimSpace(el.Text) == "" {
			continue
		}
		if len(spans) > 0 {
			b.WriteString(elementSeparator)
			pos += len([]rune(elementSeparator))
		}
		n := len([]rune(el.Text))
		b.WriteString(el.Text)
		spans = append(spans, span{element: i, start: pos, end: pos + n, page: el.PageNumber})
		pos += n
	}
	return b.String(), spans
}

// Split chunks the joined text of elements and records which elements and
// slides each chunk came from.
func (c *Chunker) Split(elements []Element) []Chunk {
	text, spans := joinElements(elements)
	return c.split([]rune(text), spans)
}

// SplitText chunks raw text without provenance.
func (c *Chunker) SplitText(text string) []Chunk {
	return c.split([]rune(text), nil)
}

func (c *Chunker) split(runes []rune, spans []span) []Chunk {
	var chunks []Chunk
	n := len(runes)
	solid := nextSolid(runes)
	start := 0
	for start < n {
		end := n
		if n-start > c.size {
			end = c.cut(runes, solid, start)
		}

		chunk := Chunk{
			Order: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		}
		chunk.Elements, chunk.Slides = provenance(spans, start, end)
		chunks = append(chunks, chunk)

		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// nextSolid maps every position to the index of the first non-space rune at
// or after it, or len(runes) when only whitespace follows.
func nextSolid(runes []rune) []int {
	next := make([]int, len(runes)+1)
	next[len(runes)] = len(runes)
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			next[i] = next[i+1]
		} else {
			next[i] = i
		}
	}
	return next
}

// boundaries are tried in order; each reports whether a cut right before
// position p ends on that kind of boundary.
var boundaries = []func(r []rune, p int) bool{
	// paragraph
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	// line
	func(r []rune, p int) bool { return r[p-1] == '\n' },
	// sentence
	func(r []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?", r[p-2])
	},
	// word
	func(r []rune, p int) bool { return unicode.IsSpace(r[p-1]) },
}

// cut picks the end of the chunk starting at start. The end must leave the
// next chunk starting after start, so it is searched in (start+overlap, start+size].
// Boundaries that would leave this chunk or the next window without any
// non-space rune are passed over while another boundary is available.
func (c *Chunker) cut(runes []rune, solid []int, start int) int {
	lo := start + c.overlap + 1
	hi := start + c.size
	keepsText := func(p int) bool {
		next := p - c.overlap
		return solid[start] < p && solid[next] < min(len(runes), next+c.size)
	}

	for _, isBoundary := range boundaries {
		for p := hi; p >= lo; p-- {
			if isBoundary(runes, p) && keepsText(p) {
				return p
			}
		}
	}
	for _, isBoundary := range boundaries {
		for p := hi; p >= lo; p-- {
			if isBoundary(runes, p) {
				return p
			}
		}
	}
	return hi
}

func provenance(spans []span, start, end int) ([]int, []int) {
	var elements, slides []int
	seen := map[int]bool{}
	for _, s := range spans {
		if s.start < end && s.end > start {
			elements = append(elements, s.element)
			if s.page > 0 && !seen[s.page] {
				seen[s.page] = true
				slides = append(slides, s.page)
			}
		}
	}
	sort.Ints(slides)
	return elements, slides
}
