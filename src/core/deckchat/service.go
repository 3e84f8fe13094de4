package deckchat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"deckrag/src/fsutil"
	"deckrag/src/log"
)

const SupportedExtension = ".pptx"

// Config holds the pipeline parameters.
type Config struct {
	ChunkSize            int
	ChunkOverlap         int
	TopK                 int
	Suggestions          int
	SuggestionInputLimit int
	Metric               Metric
	EmbedTimeout         time.Duration
	ModelTimeout         time.Duration
	StreamTimeout        time.Duration
	NodeID               int64
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:            DefaultChunkSize,
		ChunkOverlap:         DefaultChunkOverlap,
		TopK:                 DefaultTopK,
		Suggestions:          DefaultSuggestionCount,
		SuggestionInputLimit: DefaultSuggestionInputLimit,
		Metric:               MetricL2,
		EmbedTimeout:         30 * time.Second,
		ModelTimeout:         60 * time.Second,
		StreamTimeout:        3 * time.Minute,
		NodeID:               1,
	}
}

// Service is the boundary of the ingestion and chat pipeline. Every operation
// but Initialize fails with ErrUninitialized until a session exists.
type Service struct {
	cfg     Config
	store   IndexStore
	files   fsutil.FileStore
	factory SessionFactory
	chunker *Chunker
	ids     *snowflake.Node
	events  EventPublisher

	mu      sync.RWMutex
	session *Session
}

type Option func(s *Service)

// WithEventPublisher makes the service announce indexed and forgotten decks.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func NewService(cfg Config, store IndexStore, files fsutil.FileStore, factory SessionFactory, opts ...Option) (*Service, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if _, err := ParseMetric(string(cfg.Metric)); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		files:   files,
		factory: factory,
		chunker: chunker,
		ids:     node,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.validateDependencies(); err != nil {
		return nil, fmt.Errorf("failed to validate dependencies: %w", err)
	}
	return s, nil
}

func (s *Service) validateDependencies() error {
	if s.store == nil {
		return fmt.Errorf("index store is required")
	}
	if s.files == nil {
		return fmt.Errorf("file store is required")
	}
	if s.factory == nil {
		return fmt.Errorf("session factory is required")
	}
	return nil
}

// Initialize builds a new session from settings. On failure the previous
// session, if any, stays in place.
func (s *Service) Initialize(ctx context.Context, settings Settings) error {
	settings = settings.Normalize()

	session, err := s.factory(ctx, settings)
	if err != nil {
		if errors.Is(err, ErrConfig) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := session.validate(); err != nil {
		return err
	}
	if session.Settings.Provider == "" {
		session.Settings = settings
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	log.Info("session initialized", "provider", session.Settings.Provider, "model", session.Settings.Model, "embedding_model", session.Settings.EmbeddingModel)
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (s *Service) Initialized() bool {
	_, err := s.current()
	return err == nil
}

func (s *Service) current() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrUninitialized
	}
	return s.session, nil
}

type ingestOptions struct {
	onProgress func(done, total int)
}

type IngestOption func(o *ingestOptions)

// WithIngestProgress reports embedding progress.
func WithIngestProgress(fn func(done, total int)) IngestOption {
	return func(o *ingestOptions) {
		o.onProgress = fn
	}
}

// ValidateDocument checks that filePath names an existing presentation.
func (s *Service) ValidateDocument(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("%w: file path is required", ErrValidation)
	}
	if !strings.EqualFold(filepath.Ext(filePath), SupportedExtension) {
		return fmt.Errorf("%w: only %s files are allowed", ErrValidation, SupportedExtension)
	}
	ok, err := s.files.Exists(filePath)
	if err != nil {
		return fmt.Errorf("failed to check file %s: %w", filePath, err)
	}
	if !ok {
		return fmt.Errorf("%w: invalid file path %s", ErrValidation, filePath)
	}
	return nil
}

// Ingest indexes the document at filePath for userID, replacing any previous
// index, and returns suggested questions. The index is persisted only after
// every chunk has been embedded.
func (s *Service) Ingest(ctx context.Context, userID, filePath string, opts ...IngestOption) (*IngestResult, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := s.ValidateDocument(filePath); err != nil {
		return nil, err
	}

	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	elements, err := session.Extractor.Extract(ctx, filePath)
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return nil, err
		}
		return nil, collaboratorError(ctx, ErrExtraction, "extract "+filepath.Base(filePath), err)
	}
	log.Info("document extracted", "user_id", userID, "elements", len(elements))

	chunks := s.chunker.Split(elements)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text found in %s", ErrExtraction, filepath.Base(filePath))
	}
	log.Info("document split", "user_id", userID, "chunks", len(chunks))

	buildOpts := []BuildOption{
		WithMetric(s.cfg.Metric),
		WithEmbeddingModel(session.Settings.EmbeddingModel),
		WithEmbedTimeout(s.cfg.EmbedTimeout),
	}
	if o.onProgress != nil {
		buildOpts = append(buildOpts, WithProgress(o.onProgress))
	}
	ix, err := BuildIndex(ctx, chunks, session.Embedder, buildOpts...)
	if err != nil {
		return nil, err
	}

	if err := s.store.Persist(ctx, userID, ix); err != nil {
		return nil, err
	}
	log.Info("index persisted", "user_id", userID, "chunks", ix.Len(), "dimension", ix.Dimension)

	result := &IngestResult{
		DocumentID: s.ids.Generate().Int64(),
		ChunkCount: ix.Len(),
	}

	// The index is live from here on, whether or not suggestions succeed.
	s.publish(ctx, Event{
		Type:           EventIndexed,
		UserID:         userID,
		DocumentID:     result.DocumentID,
		FilePath:       filePath,
		ChunkCount:     result.ChunkCount,
		EmbeddingModel: ix.EmbeddingModel,
	})

	generator := NewQueryGenerator(session.Model, s.cfg.ModelTimeout, s.cfg.SuggestionInputLimit)
	questions, err := generator.Suggest(ctx, JoinElements(elements), s.cfg.Suggestions)
	if err != nil {
		return nil, err
	}
	result.Questions = questions
	return result, nil
}

// Ask streams the answer to question. Request validation errors are returned
// directly; every later failure arrives as the final fragment of the stream.
func (s *Service) Ask(ctx context.Context, userID, question string) (<-chan Fragment, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}

	answerer := NewRetrievalAnswerer(s.store, session.Embedder, session.Model, s.cfg.TopK, s.cfg.EmbedTimeout, s.cfg.StreamTimeout)
	return answerer.Answer(ctx, userID, question), nil
}

// Forget deletes the index of userID.
func (s *Service) Forget(ctx context.Context, userID string) error {
	if _, err := s.current(); err != nil {
		return err
	}
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	log.Info("index deleted", "user_id", userID)

	s.publish(ctx, Event{Type: EventForgotten, UserID: userID})
	return nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Error(err, "failed to publish deck event", "type", evt.Type, "user_id", evt.UserID)
	}
}
