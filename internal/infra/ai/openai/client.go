package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/automaton-risk/internal/domain/memory"
)

// maxInputRunes keeps embedding input inside the model's context window.
const maxInputRunes = 8000

// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429).
var ErrQuotaExceeded = errors.New("embedding quota exceeded")

// Embedder implements memory.Embedder on top of the OpenAI embeddings API.
type Embedder struct {
	*openai.Client
	model openai.EmbeddingModel
}

var _ memory.Embedder = (*Embedder)(nil)

func NewEmbedder(apiKey, model string) *Embedder {
	return newEmbedder(openai.DefaultConfig(apiKey), model)
}

// NewEmbedderWithBaseURL targets an OpenAI compatible endpoint.
func NewEmbedderWithBaseURL(apiKey, baseURL, model string) *Embedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newEmbedder(cfg, model)
}

func newEmbedder(cfg openai.ClientConfig, model string) *Embedder {
	if model == "" {
		model = memory.DefaultEmbeddingModel
	}
	return &Embedder{Client: openai.NewClientWithConfig(cfg), model: openai.EmbeddingModel(model)}
}

func (e *Embedder) Model() string { return string(e.model) }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes])
	}
	resp, err := e.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}
