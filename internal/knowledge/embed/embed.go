// Package embed provides the text-embedding providers behind the knowledge
// store: a dependency-free local feature hasher and a remote Gemini backend.
// Which one runs is configuration, not a caller decision.
package embed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/config"
)

// New builds the embedder the configuration selects.
func New(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (schemas.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderLocal:
		return NewLocal(cfg.VectorSize), nil
	case config.EmbedderGemini:
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}
