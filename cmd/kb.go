package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/internal/observability"
	"github.com/xkilldash9x/wander-cli/internal/store"
)

// newKBCmd groups knowledge-base maintenance commands.
func newKBCmd() *cobra.Command {
	kbCmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the agent's knowledge base and run history",
	}
	kbCmd.AddCommand(newKBInitCmd())
	return kbCmd
}

// newKBInitCmd creates the `kb init` command: it provisions the vector
// collection and the run-history schema so the first run does not have to.
func newKBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Provision the vector collection and the run-history schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if cfg.Knowledge.Enabled {
				if _, err := buildKnowledgeStore(ctx, cfg, logger); err != nil {
					return err
				}
				logger.Info("Knowledge collection ready.",
					zap.String("collection", cfg.Knowledge.Collection),
					zap.String("qdrant_url", cfg.Knowledge.QdrantURL))
			} else {
				logger.Info("Knowledge store disabled; skipping collection setup.")
			}

			if cfg.Database.URL != "" {
				dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer dbPool.Close()

				dbStore, err := store.New(ctx, dbPool, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize run store: %w", err)
				}
				if err := dbStore.EnsureSchema(ctx); err != nil {
					return fmt.Errorf("failed to create run-history schema: %w", err)
				}
				logger.Info("Run-history schema ready.")
			} else {
				logger.Info("No database configured; skipping run-history schema.")
			}

			fmt.Println("Knowledge base initialized.")
			return nil
		},
	}
}
