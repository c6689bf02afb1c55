package ontology

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sixfold/sixfold/errors"
)

// Embedder turns text into a vector. The knowledge store works without one;
// entries then carry no embedding and are excluded from similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder. baseURL may be empty for the
// default API endpoint; model defaults to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   1536,
	}
}

// Embed generates an embedding for the given text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string { return e.model }

// Dimensions returns the embedding vector size
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }
