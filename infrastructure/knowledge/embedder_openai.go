package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	coreconfig "github.com/AzielCF/az-crm/core/config"
)

// OpenAIEmbedder is the adapter for OpenAI-compatible embedding endpoints.
// By default it points at the platform proxy so embedding traffic shares
// the proxy's routing and quotas.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates the embedder from the LLM configuration.
func NewOpenAIEmbedder(cfg coreconfig.LLMConfig) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.ProxyURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.ProxyURL, "/")+"/v1"))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  cfg.EmbedModel,
	}
}

// EmbedTexts implements knowledge.IEmbedder with a single batched call.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if int(d.Index) < len(out) {
			out[d.Index] = vec
		}
	}
	return out, nil
}
