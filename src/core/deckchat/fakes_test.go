package deckchat_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"deckrag/src/core/deckchat"
)

// keywordEmbedder counts vocabulary words, plus a constant bias dimension.
type keywordEmbedder struct {
	mu     sync.Mutex
	vocab  []string
	calls  int
	err    error
	texts  []string
	dimFor map[string]int
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	if dim, ok := e.dimFor[text]; ok {
		return make([]float32, dim), nil
	}
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(e.vocab)] = 1
	return v, nil
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// batchEmbedder records the size of every batch.
type batchEmbedder struct {
	*keywordEmbedder
	batches []int
}

func (e *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, len(texts))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// blockingEmbedder waits for its context to end.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeModel struct {
	mu         sync.Mutex
	completion string
	completeFn func(ctx context.Context) error
	tokens     []string
	streamErr  error
	endless    bool
	prompts    []string
	calls      int
	aborted    error
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	fn := m.completeFn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx); err != nil {
			return "", err
		}
	}
	return m.completion, nil
}

func (m *fakeModel) Stream(ctx context.Context, prompt string, onToken func(string) error) error {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	for i := 0; m.endless || i < len(m.tokens); i++ {
		token := fmt.Sprintf("token-%d ", i)
		if !m.endless {
			token = m.tokens[i]
		}
		if err := onToken(token); err != nil {
			m.mu.Lock()
			m.aborted = err
			m.mu.Unlock()
			return err
		}
	}
	return m.streamErr
}

func (m *fakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *fakeModel) Aborted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

type fakeExtractor struct {
	mu       sync.Mutex
	elements []deckchat.Element
	err      error
	calls    int
}

func (x *fakeExtractor) Extract(ctx context.Context, filePath string) ([]deckchat.Element, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	if x.err != nil {
		return nil, x.err
	}
	return x.elements, nil
}

func (x *fakeExtractor) Calls() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

// memBlobs is an in-memory deckchat.Blobs.
type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, fs.ErrNotExist)
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, fs.ErrNotExist)
	}
	delete(b.data, key)
	return nil
}

// failingStore returns err from every call.
type failingStore struct {
	err error
}

func (s failingStore) Persist(ctx context.Context, userID string, ix *deckchat.VectorIndex) error {
	return s.err
}

func (s failingStore) Load(ctx context.Context, userID string) (*deckchat.VectorIndex, error) {
	return nil, s.err
}

func (s failingStore) Delete(ctx context.Context, userID string) error {
	return s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []deckchat.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt deckchat.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []deckchat.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]deckchat.Event(nil), p.events...)
}

var errBoom = errors.New("boom")

// collect drains an answer stream.
func collect(ch <-chan deckchat.Fragment) []deckchat.Fragment {
	var out []deckchat.Fragment
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func joinText(fragments []deckchat.Fragment) string {
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f.Text)
	}
	return b.String()
}
