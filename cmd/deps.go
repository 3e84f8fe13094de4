package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/viper"

	"deckrag/src/core/deckchat"
	"deckrag/src/fsutil"
	"deckrag/src/infrastructure/events"
	"deckrag/src/infrastructure/integrations"
	"deckrag/src/log"
	"deckrag/src/storage/minioctrl"
	"deckrag/src/storage/weaviate"
)

func serviceConfig() (deckchat.Config, error) {
	metric, err := deckchat.ParseMetric(viper.GetString("rag.metric"))
	if err != nil {
		return deckchat.Config{}, err
	}

	cfg := deckchat.DefaultConfig()
	cfg.ChunkSize = viper.GetInt("rag.chunk_size")
	cfg.ChunkOverlap = viper.GetInt("rag.chunk_overlap")
	cfg.TopK = viper.GetInt("rag.top_k")
	cfg.Suggestions = viper.GetInt("rag.suggestions")
	cfg.SuggestionInputLimit = viper.GetInt("rag.suggestion_input_limit")
	cfg.Metric = metric
	cfg.EmbedTimeout = viper.GetDuration("rag.embed_timeout")
	cfg.ModelTimeout = viper.GetDuration("rag.model_timeout")
	cfg.StreamTimeout = viper.GetDuration("rag.stream_timeout")
	cfg.NodeID = viper.GetInt64("rag.node_id")
	return cfg, nil
}

func settingsFromConfig() deckchat.Settings {
	return deckchat.Settings{
		Provider:         viper.GetString("llm.provider"),
		Model:            viper.GetString("llm.model"),
		EmbeddingModel:   viper.GetString("llm.embedding_model"),
		APIKey:           viper.GetString("openai.api_key"),
		ExtractionAPIKey: viper.GetString("unstructured.api_key"),
	}.Normalize()
}

func newIndexStore(ctx context.Context, files fsutil.FileStore) (deckchat.IndexStore, error) {
	prefix := viper.GetString("storage.prefix")

	switch backend := viper.GetString("storage.backend"); backend {
	case "local":
		return deckchat.NewBlobIndexStore(fsutil.NewBlobs(files, viper.GetString("storage.root")), prefix), nil

	case "minio":
		minioService, err := minioctrl.NewMinioService(
			viper.GetString("minio.endpoint"),
			viper.GetString("minio.access_key"),
			viper.GetString("minio.secret_key"),
			viper.GetBool("minio.use_ssl"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio service: %w", err)
		}
		bucket, err := minioctrl.NewBucket(ctx, minioService, viper.GetString("minio.index_bucket"))
		if err != nil {
			return nil, err
		}
		return deckchat.NewBlobIndexStore(bucket, prefix), nil

	case "weaviate":
		wc, err := weaviate.NewClient(viper.GetString("weaviate.scheme"), viper.GetString("weaviate.host"))
		if err != nil {
			return nil, err
		}
		return weaviate.NewIndexStore(weaviate.NewSDK(wc)), nil

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", deckchat.ErrConfig, backend)
	}
}

// newEventPublisher returns nil when events are disabled.
func newEventPublisher() (deckchat.EventPublisher, message.Publisher, error) {
	if !viper.GetBool("events.enabled") {
		return nil, nil, nil
	}

	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		events.NewLoggerAdapter(log.WithName("amqp")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return events.NewPublisher(amqpPublisher), amqpPublisher, nil
}

func newService(ctx context.Context, publisher deckchat.EventPublisher) (*deckchat.Service, fsutil.FileStore, error) {
	cfg, err := serviceConfig()
	if err != nil {
		return nil, nil, err
	}

	files := fsutil.NewLocalFileStore()
	store, err := newIndexStore(ctx, files)
	if err != nil {
		return nil, nil, err
	}

	factory := integrations.NewSessionFactory(integrations.Config{
		OpenAIBaseURL:        viper.GetString("openai.base_url"),
		OllamaURL:            viper.GetString("ollama.url"),
		UnstructuredURL:      viper.GetString("unstructured.url"),
		UnstructuredStrategy: viper.GetString("unstructured.strategy"),
		HTTPClient:           &http.Client{},
	}, files)

	var opts []deckchat.Option
	if publisher != nil {
		opts = append(opts, deckchat.WithEventPublisher(publisher))
	}

	svc, err := deckchat.NewService(cfg, store, files, factory, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, files, nil
}

// newInitializedService builds a service and initializes it from the
// llm.* configuration, as the command line tools have no initialize call.
func newInitializedService(ctx context.Context) (*deckchat.Service, func(), error) {
	publisher, closer, err := newEventPublisher()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closer != nil {
			closer.Close()
		}
	}

	svc, _, err := newService(ctx, publisher)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := svc.Initialize(ctx, settingsFromConfig()); err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
