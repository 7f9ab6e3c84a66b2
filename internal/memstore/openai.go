package memstore

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder produces embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder. Model may be empty to use
// text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.SmallEmbedding3
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: m}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}
