package integrations

import (
	"context"
	"fmt"
	"net/http"

	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
	"deckrag/src/infrastructure/integrations/ollama"
	"deckrag/src/infrastructure/integrations/openai"
	"deckrag/src/infrastructure/integrations/unstructured"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultOllamaModel          = "llama3.1"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

// Config holds the endpoints the session collaborators talk to. Credentials
// come from the initialize settings.
type Config struct {
	OpenAIBaseURL        string
	OllamaURL            string
	UnstructuredURL      string
	UnstructuredStrategy string
	HTTPClient           *http.Client
}

// NewSessionFactory returns a factory building the embedder, language model
// and extractor for the selected provider.
func NewSessionFactory(cfg Config, files fsutil.FileStore) deckchat.SessionFactory {
	return func(ctx context.Context, settings deckchat.Settings) (*deckchat.Session, error) {
		extractor, err := newExtractor(cfg, files, settings)
		if err != nil {
			return nil, err
		}

		session := &deckchat.Session{Settings: settings, Extractor: extractor}
		switch settings.Provider {
		case ProviderOpenAI:
			client, err := openai.NewClient(settings.APIKey,
				openai.WithModel(settings.Model),
				openai.WithEmbeddingModel(settings.EmbeddingModel),
				openai.WithBaseURL(cfg.OpenAIBaseURL),
			)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", deckchat.ErrConfig, err)
			}
			session.Embedder = client
			session.Model = client
			session.Settings.Model = client.ModelName()
			session.Settings.EmbeddingModel = client.EmbeddingModelName()

		case ProviderOllama:
			if session.Settings.Model == "" {
				session.Settings.Model = DefaultOllamaModel
			}
			if session.Settings.EmbeddingModel == "" {
				session.Settings.EmbeddingModel = DefaultOllamaEmbeddingModel
			}
			provider := ollama.NewProvider(
				ollama.NewClient(cfg.OllamaURL, cfg.HTTPClient),
				session.Settings.Model,
				session.Settings.EmbeddingModel,
			)
			session.Embedder = provider
			session.Model = provider

		default:
			return nil, fmt.Errorf("%w: unsupported provider %q", deckchat.ErrConfig, settings.Provider)
		}

		return session, nil
	}
}

// newExtractor requires an API key only for the hosted partition API.
func newExtractor(cfg Config, files fsutil.FileStore, settings deckchat.Settings) (*unstructured.UnstructuredService, error) {
	url := cfg.UnstructuredURL
	if url == "" {
		url = unstructured.DefaultURL
	}
	if url == unstructured.DefaultURL && settings.ExtractionAPIKey == "" {
		return nil, fmt.Errorf("%w: unstructured_api_key is required", deckchat.ErrConfig)
	}

	opts := []unstructured.Option{}
	if cfg.UnstructuredStrategy != "" {
		opts = append(opts, unstructured.WithStrategy(cfg.UnstructuredStrategy))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, unstructured.WithHTTPClient(cfg.HTTPClient))
	}
	return unstructured.NewUnstructuredService(url, settings.ExtractionAPIKey, files, opts...), nil
}
