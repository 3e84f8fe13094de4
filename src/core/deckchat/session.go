package deckchat

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultProvider       = "openai"
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Settings selects the model provider and carries its credentials.
type Settings struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	EmbeddingModel   string `json:"embedding_model"`
	APIKey           string `json:"api_key"`
	ExtractionAPIKey string `json:"unstructured_api_key"`
}

// Normalize trims the settings and fills in the default provider. Models are
// defaulted for the default provider only.
func (s Settings) Normalize() Settings {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	s.Model = strings.TrimSpace(s.Model)
	s.EmbeddingModel = strings.TrimSpace(s.EmbeddingModel)
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.ExtractionAPIKey = strings.TrimSpace(s.ExtractionAPIKey)

	if s.Provider == "" {
		s.Provider = DefaultProvider
	}
	if s.Provider != DefaultProvider {
		return s
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.EmbeddingModel == "" {
		s.EmbeddingModel = DefaultEmbeddingModel
	}
	return s
}

// Session holds the collaborators built by a successful initialize. It is
// read-only once created and shared by all requests.
type Session struct {
	Settings  Settings
	Embedder  Embedder
	Model     LanguageModel
	Extractor Extractor
}

func (s *Session) validate() error {
	if s == nil {
		return fmt.Errorf("%w: no session built", ErrConfig)
	}
	if s.Embedder == nil {
		return fmt.Errorf("%w: embedder is required", ErrConfig)
	}
	if s.Model == nil {
		return fmt.Errorf("%w: language model is required", ErrConfig)
	}
	if s.Extractor == nil {
		return fmt.Errorf("%w: extractor is required", ErrConfig)
	}
	return nil
}

// SessionFactory builds the collaborators for the given settings.
type SessionFactory func(ctx context.Context, settings Settings) (*Session, error)
