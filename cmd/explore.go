package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/agent"
	"github.com/xkilldash9x/wander-cli/internal/browser"
	"github.com/xkilldash9x/wander-cli/internal/config"
	"github.com/xkilldash9x/wander-cli/internal/knowledge"
	"github.com/xkilldash9x/wander-cli/internal/knowledge/embed"
	"github.com/xkilldash9x/wander-cli/internal/knowledge/qdrant"
	"github.com/xkilldash9x/wander-cli/internal/learner"
	"github.com/xkilldash9x/wander-cli/internal/observability"
	"github.com/xkilldash9x/wander-cli/internal/store"
)

// newExploreCmd creates the `explore` command, the main entry point for a run.
func newExploreCmd() *cobra.Command {
	exploreCmd := &cobra.Command{
		Use:   "explore [target]",
		Short: "Starts an autonomous exploration run against the target URL",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override file and environment values with
			// the right precedence.
			if err := viper.BindPFlag("agent.step_budget", cmd.Flags().Lookup("steps")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlag("knowledge.enabled", cmd.Flags().Lookup("knowledge"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Flags were bound in PreRunE, so reload for the final values.
			loaded, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize configuration: %w", err)
			}
			cfg = loaded

			target := args[0]
			if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
				target = "https://" + target
			}

			logger.Info("Starting exploration",
				zap.String("target", target),
				zap.Int("step_budget", cfg.Agent.StepBudget),
				zap.Bool("knowledge", cfg.Knowledge.Enabled),
			)

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			runner := agent.NewRunner(cfg, components.Driver, components.Knowledge, components.Learner, components.Repo, logger)
			summary, err := runner.Run(ctx, target)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted", zap.String("run_id", summary.RunID))
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}

			fmt.Printf("\nRun Complete. Run ID: %s\n", summary.RunID)
			fmt.Printf("Steps: %d  Failures: %d  Anomalies: %d\n",
				summary.TotalSteps, summary.Failures, summary.Anomalies)
			return nil
		},
	}

	exploreCmd.Flags().IntP("steps", "n", 0, "Maximum number of steps for this run. (Overrides config/env)")
	exploreCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	exploreCmd.Flags().Bool("knowledge", true, "Enable the knowledge store for memory-guided decisions.")

	return exploreCmd
}

// runComponents holds the initialized services for one exploration run.
type runComponents struct {
	Driver    schemas.Driver
	Knowledge *knowledge.Store
	Learner   *learner.Learner
	Repo      schemas.RunRepository
	DBPool    *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown closes the browser session and the database pool.
func (rc *runComponents) Shutdown() {
	if rc.Driver != nil {
		if err := rc.Driver.Close(); err != nil {
			rc.logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection for a run. The
// persistence store and the knowledge store are both optional: a missing
// database URL or a disabled knowledge section degrades the run rather than
// failing it.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{logger: logger}

	// 1. Database-backed run repository (optional).
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize run store: %w", err)
		}
		if err := dbStore.EnsureSchema(ctx); err != nil {
			return components, fmt.Errorf("failed to ensure run store schema: %w", err)
		}
		components.Repo = dbStore
	} else {
		logger.Info("No database configured; run history will not be persisted.")
	}

	// 2. Knowledge store and learner (optional).
	if cfg.Knowledge.Enabled {
		kstore, err := buildKnowledgeStore(ctx, cfg, logger)
		if err != nil {
			return components, err
		}
		components.Knowledge = kstore
		components.Learner = learner.NewLearner(kstore, logger)
	} else {
		logger.Info("Knowledge store disabled; running memoryless.")
	}

	// 3. Browser session.
	artifactsDir, err := cfg.ArtifactsDir()
	if err != nil {
		return components, fmt.Errorf("failed to resolve artifacts directory: %w", err)
	}
	session, err := browser.NewSession(ctx, cfg.Browser, artifactsDir, logger)
	if err != nil {
		return components, fmt.Errorf("failed to start browser session: %w", err)
	}
	components.Driver = session

	return components, nil
}

// buildKnowledgeStore wires the embedder, the vector backend, and the store,
// and makes sure the collection exists.
func buildKnowledgeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*knowledge.Store, error) {
	embedder, err := embed.New(ctx, cfg.Knowledge, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	timeout := cfg.Knowledge.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backend := qdrant.NewClient(cfg.Knowledge.QdrantURL, cfg.Knowledge.Collection, timeout, logger)

	kstore := knowledge.NewStore(backend, embedder, logger)
	if err := kstore.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge collection: %w", err)
	}
	return kstore, nil
}
