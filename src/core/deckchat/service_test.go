package deckchat_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
)

type serviceFixture struct {
	svc       *deckchat.Service
	store     deckchat.IndexStore
	embedder  *keywordEmbedder
	model     *fakeModel
	extractor *fakeExtractor
	events    *recordingPublisher
	deck      string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	dir := t.TempDir()
	deck := filepath.Join(dir, "quarterly.pptx")
	require.NoError(t, os.WriteFile(deck, []byte("PK\x03\x04"), 0o644))

	f := &serviceFixture{
		store:    deckchat.NewBlobIndexStore(newMemBlobs(), ""),
		embedder: newKeywordEmbedder("revenue", "q3", "hiring", "roadmap"),
		model: &fakeModel{
			completion: "What was Q3 revenue?\nWho is hiring?\n\nWhat is on the roadmap?\nWhen do we launch?\nWhy now?",
			tokens:     []string{"Q3 revenue ", "was ", "$5M."},
		},
		extractor: &fakeExtractor{elements: []deckchat.Element{
			{Type: "Title", Text: "Quarterly review", PageNumber: 1},
			{Type: "NarrativeText", Text: "Revenue in Q3 was $5M", PageNumber: 2},
			{Type: "NarrativeText", Text: "Hiring plan: two engineers", PageNumber: 3},
			{Type: "NarrativeText", Text: "Roadmap: ship the mobile app", PageNumber: 4},
		}},
		events: &recordingPublisher{},
		deck:   deck,
	}

	factory := func(ctx context.Context, s deckchat.Settings) (*deckchat.Session, error) {
		if s.APIKey == "" {
			return nil, errBoom
		}
		return &deckchat.Session{Embedder: f.embedder, Model: f.model, Extractor: f.extractor}, nil
	}

	cfg := deckchat.DefaultConfig()
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 5
	cfg.TopK = 1

	svc, err := deckchat.NewService(cfg, f.store, fsutil.NewLocalFileStore(), factory, deckchat.WithEventPublisher(f.events))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *serviceFixture) initialize(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Initialize(context.Background(), deckchat.Settings{APIKey: "sk-test", ExtractionAPIKey: "un-test"}))
}

func TestNewServiceValidation(t *testing.T) {
	factory := func(ctx context.Context, s deckchat.Settings) (*deckchat.Session, error) { return nil, nil }
	store := deckchat.NewBlobIndexStore(newMemBlobs(), "")
	files := fsutil.NewLocalFileStore()

	_, err := deckchat.NewService(deckchat.DefaultConfig(), nil, files, factory)
	assert.Error(t, err)
	_, err = deckchat.NewService(deckchat.DefaultConfig(), store, nil, factory)
	assert.Error(t, err)
	_, err = deckchat.NewService(deckchat.DefaultConfig(), store, files, nil)
	assert.Error(t, err)

	cfg := deckchat.DefaultConfig()
	cfg.ChunkOverlap = cfg.ChunkSize
	_, err = deckchat.NewService(cfg, store, files, factory)
	assert.ErrorIs(t, err, deckchat.ErrConfig)

	cfg = deckchat.DefaultConfig()
	cfg.Metric = "manhattan"
	_, err = deckchat.NewService(cfg, store, files, factory)
	assert.ErrorIs(t, err, deckchat.ErrConfig)
}

func TestServiceRequiresInitialize(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	assert.False(t, f.svc.Initialized())

	_, err := f.svc.Ingest(ctx, "u1", f.deck)
	assert.ErrorIs(t, err, deckchat.ErrUninitialized)

	_, err = f.svc.Ask(ctx, "u1", "What was Q3 revenue?")
	assert.ErrorIs(t, err, deckchat.ErrUninitialized)

	assert.ErrorIs(t, f.svc.Forget(ctx, "u1"), deckchat.ErrUninitialized)
	assert.Zero(t, f.extractor.Calls())
}

func TestServiceInitialize(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	err := f.svc.Initialize(ctx, deckchat.Settings{})
	assert.ErrorIs(t, err, deckchat.ErrConfig)
	assert.False(t, f.svc.Initialized())

	f.initialize(t)
	assert.True(t, f.svc.Initialized())

	err = f.svc.Initialize(ctx, deckchat.Settings{Model: "gpt-4o"})
	assert.ErrorIs(t, err, deckchat.ErrConfig)
	assert.True(t, f.svc.Initialized(), "a failed initialize keeps the previous session")
}

func TestServiceIngestValidation(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)

	pdf := filepath.Join(filepath.Dir(f.deck), "report.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	folder := filepath.Join(t.TempDir(), "folder.pptx")
	require.NoError(t, os.Mkdir(folder, 0o755))

	tests := []struct {
		name     string
		userID   string
		filePath string
	}{
		{name: "wrong extension", userID: "u1", filePath: pdf},
		{name: "missing file", userID: "u1", filePath: filepath.Join(filepath.Dir(f.deck), "missing.pptx")},
		{name: "directory", userID: "u1", filePath: folder},
		{name: "empty path", userID: "u1", filePath: ""},
		{name: "bad user id", userID: "../u1", filePath: f.deck},
		{name: "empty user id", userID: "", filePath: f.deck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), tt.userID, tt.filePath)
			assert.ErrorIs(t, err, deckchat.ErrValidation)
		})
	}
	assert.Zero(t, f.extractor.Calls())
	assert.Zero(t, f.embedder.Calls())
}

func TestServiceIngestAndAsk(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)
	ctx := context.Background()

	var progress []int
	result, err := f.svc.Ingest(ctx, "u1", f.deck, deckchat.WithIngestProgress(func(done, total int) {
		progress = append(progress, done)
	}))
	require.NoError(t, err)

	assert.NotZero(t, result.DocumentID)
	assert.Greater(t, result.ChunkCount, 1)
	assert.Equal(t, []string{"What was Q3 revenue?", "Who is hiring?", "What is on the roadmap?", "When do we launch?"}, result.Questions)
	assert.Equal(t, []int{result.ChunkCount}, progress)
	assert.Contains(t, f.model.LastPrompt(), "Revenue in Q3 was $5M")

	ix, err := f.store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, ix.Len())
	assert.Equal(t, deckchat.DefaultEmbeddingModel, ix.EmbeddingModel)

	stream, err := f.svc.Ask(ctx, "u1", "What was Q3 revenue?")
	require.NoError(t, err)
	fragments := collect(stream)
	assert.Equal(t, "Q3 revenue was $5M.", joinText(fragments))

	prompt := f.model.LastPrompt()
	assert.Contains(t, prompt, "$5M")
	assert.NotContains(t, prompt, "mobile app")

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, deckchat.EventIndexed, events[0].Type)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, result.DocumentID, events[0].DocumentID)
	assert.Equal(t, result.ChunkCount, events[0].ChunkCount)
}

func TestServiceIngestAcceptsUpperCaseExtension(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)

	deck := filepath.Join(t.TempDir(), "DECK.PPTX")
	require.NoError(t, os.WriteFile(deck, []byte("PK"), 0o644))

	_, err := f.svc.Ingest(context.Background(), "u1", deck)
	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.Calls())
}

func TestServiceIngestFailuresKeepStoreUntouched(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *serviceFixture)
		wantErr error
	}{
		{
			name:    "extraction fails",
			setup:   func(f *serviceFixture) { f.extractor.err = errBoom },
			wantErr: deckchat.ErrExtraction,
		},
		{
			name:    "deck without text",
			setup:   func(f *serviceFixture) { f.extractor.elements = []deckchat.Element{{Text: " "}} },
			wantErr: deckchat.ErrExtraction,
		},
		{
			name:    "embedder fails",
			setup:   func(f *serviceFixture) { f.embedder.err = errBoom },
			wantErr: deckchat.ErrEmbedderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.initialize(t)
			tt.setup(f)

			_, err := f.svc.Ingest(context.Background(), "u1", f.deck)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = f.store.Load(context.Background(), "u1")
			assert.ErrorIs(t, err, deckchat.ErrNotFound)
			assert.Empty(t, f.events.Events())
		})
	}
}

func TestServiceSuggestionFailureKeepsIndex(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)
	f.model.completeFn = func(ctx context.Context) error { return errBoom }

	_, err := f.svc.Ingest(context.Background(), "u1", f.deck)
	assert.ErrorIs(t, err, deckchat.ErrModelUnavailable)

	ix, err := f.store.Load(context.Background(), "u1")
	require.NoError(t, err)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, deckchat.EventIndexed, events[0].Type)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, f.deck, events[0].FilePath)
	assert.Equal(t, ix.Len(), events[0].ChunkCount)
	assert.NotZero(t, events[0].DocumentID)
}

func TestServiceReingestReplacesIndex(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, "u1", f.deck)
	require.NoError(t, err)

	f.extractor.elements = []deckchat.Element{{Text: "Roadmap only", PageNumber: 1}}
	result, err := f.svc.Ingest(ctx, "u1", f.deck)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)

	ix, err := f.store.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())
	assert.Equal(t, "Roadmap only", ix.Chunks[0].Text)
}

func TestServiceAskValidation(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)

	_, err := f.svc.Ask(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, deckchat.ErrValidation)

	_, err = f.svc.Ask(context.Background(), "u 1", "Question?")
	assert.ErrorIs(t, err, deckchat.ErrValidation)
}

func TestServiceForget(t *testing.T) {
	f := newServiceFixture(t)
	f.initialize(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Forget(ctx, "u1"), deckchat.ErrNotFound)

	_, err := f.svc.Ingest(ctx, "u1", f.deck)
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, "u2", f.deck)
	require.NoError(t, err)

	require.NoError(t, f.svc.Forget(ctx, "u1"))

	stream, err := f.svc.Ask(ctx, "u1", "What was Q3 revenue?")
	require.NoError(t, err)
	fragments := collect(stream)
	require.Len(t, fragments, 1)
	assert.ErrorIs(t, fragments[0].Err, deckchat.ErrNotFound)

	_, err = f.store.Load(ctx, "u2")
	assert.NoError(t, err)

	events := f.events.Events()
	require.Len(t, events, 3)
	assert.Equal(t, deckchat.EventForgotten, events[2].Type)
	assert.Equal(t, "u1", events[2].UserID)
}
