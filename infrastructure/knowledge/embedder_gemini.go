package knowledge

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	coreconfig "github.com/AzielCF/az-crm/core/config"
)

// DefaultGeminiEmbedModel is used when no embed model is configured.
const DefaultGeminiEmbedModel = "gemini-embedding-001"

// GeminiEmbedder is the adapter for the Google Gemini embedding API, used
// when the tenant platform is configured with embed_provider=gemini.
type GeminiEmbedder struct {
	apiKey string
	model  string
}

// NewGeminiEmbedder creates the embedder from the LLM configuration.
func NewGeminiEmbedder(cfg coreconfig.LLMConfig) *GeminiEmbedder {
	model := cfg.EmbedModel
	if model == "" {
		model = DefaultGeminiEmbedModel
	}
	return &GeminiEmbedder{apiKey: cfg.GeminiAPIKey, model: model}
}

// EmbedTexts implements knowledge.IEmbedder with a single batched call.
func (e *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("gemini embedder has no API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, ""))
	}

	resp, err := client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
