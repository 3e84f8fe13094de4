package ollama

import "context"

// Provider binds a client to a chat model and an embedding model.
type Provider struct {
	client         *Client
	model          string
	embeddingModel string
}

func NewProvider(client *Client, model, embeddingModel string) *Provider {
	return &Provider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
	}
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.client.GetEmbedding(ctx, p.embeddingModel, text)
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.GetEmbeddings(ctx, p.embeddingModel, texts)
}

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return p.client.Generate(ctx, p.model, "", prompt, nil)
}

func (p *Provider) Stream(ctx context.Context, prompt string, onToken func(string) error) error {
	return p.client.GenerateStream(ctx, p.model, "", prompt, nil, onToken)
}
