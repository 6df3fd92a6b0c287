// internal/knowledge/embed/gemini.go
package embed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/config"
)

// Gemini embeds text through the Gemini embedding API, truncated to the
// collection's vector size so local and remote embeddings stay
// interchangeable at the storage layer.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
	logger *zap.Logger
}

var _ schemas.Embedder = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.GeminiModel,
		dim:    cfg.VectorSize,
		logger: logger.Named("embed.gemini"),
	}, nil
}

func (g *Gemini) Dimension() int { return g.dim }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(g.dim)
	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini returned no embedding values")
	}

	values := resp.Embeddings[0].Values
	if len(values) > g.dim {
		values = values[:g.dim]
	}
	return values, nil
}
