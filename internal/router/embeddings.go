package router

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingModel balances quality against per-query cost; flowchart
// titles are short, so the small model is plenty.
const DefaultEmbeddingModel = openai.SmallEmbedding3

// OpenAIEmbeddingFunc returns a chromem embedding function backed by the
// OpenAI embeddings API. An empty model selects the default.
func OpenAIEmbeddingFunc(apiKey string, model openai.EmbeddingModel) chromem.EmbeddingFunc {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	client := openai.NewClient(apiKey)

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(resp.Data))
		}
		return resp.Data[0].Embedding, nil
	}
}
