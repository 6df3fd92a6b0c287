// Package store persists run, step, and anomaly records to PostgreSQL.
// Every write is fire-and-forget from the agent's perspective; the runner
// logs persistence failures and keeps going.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the PostgreSQL implementation of schemas.RunRepository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunRepository = (*Store)(nil)

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlCreateSchema = `
CREATE TABLE IF NOT EXISTS agent_runs (
    run_id      TEXT PRIMARY KEY,
    target_url  TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    status      TEXT NOT NULL,
    total_steps INT NOT NULL DEFAULT 0,
    failures    INT NOT NULL DEFAULT 0,
    anomalies   INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS agent_steps (
    run_id             TEXT NOT NULL,
    step_index         INT NOT NULL,
    action_id          TEXT NOT NULL,
    action_type        TEXT NOT NULL,
    parameters         JSONB NOT NULL DEFAULT '{}',
    status             TEXT NOT NULL,
    screenshot_ref     TEXT,
    network_call_count INT NOT NULL DEFAULT 0,
    console_errors     JSONB NOT NULL DEFAULT '[]',
    state_id           TEXT NOT NULL,
    reasoning          TEXT,
    PRIMARY KEY (run_id, step_index)
);
CREATE TABLE IF NOT EXISTS agent_anomalies (
    run_id      TEXT NOT NULL,
    step_index  INT NOT NULL,
    severity    TEXT NOT NULL,
    category    TEXT NOT NULL,
    action_id   TEXT NOT NULL,
    description TEXT NOT NULL,
    evidence    JSONB NOT NULL DEFAULT '{}'
);
`

// EnsureSchema creates the tables on first use. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const sqlUpsertRun = `
INSERT INTO agent_runs (run_id, target_url, started_at, completed_at, status, total_steps, failures, anomalies)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO UPDATE SET
    completed_at = EXCLUDED.completed_at,
    status = EXCLUDED.status,
    total_steps = EXCLUDED.total_steps,
    failures = EXCLUDED.failures,
    anomalies = EXCLUDED.anomalies;
`

// UpsertRunSummary writes the run-level record, updating the terminal
// fields once the run finishes.
func (s *Store) UpsertRunSummary(ctx context.Context, summary schemas.RunSummary) error {
	var completedAt any
	if !summary.CompletedAt.IsZero() {
		completedAt = summary.CompletedAt.UTC()
	}

	_, err := s.pool.Exec(ctx, sqlUpsertRun,
		summary.RunID, summary.TargetURL, summary.StartedAt.UTC(), completedAt,
		string(summary.Status), summary.TotalSteps, summary.Failures, summary.Anomalies,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run summary: %w", err)
	}
	return nil
}

const sqlInsertStep = `
INSERT INTO agent_steps (run_id, step_index, action_id, action_type, parameters, status, screenshot_ref, network_call_count, console_errors, state_id, reasoning)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`

// InsertStep persists one trace entry.
func (s *Store) InsertStep(ctx context.Context, runID string, step schemas.AgentStep) error {
	parameters, err := jsonOrDefault(step.Action.Parameters, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode step parameters: %w", err)
	}
	consoleErrors, err := jsonOrDefault(step.Observation.ConsoleErrors, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode console errors: %w", err)
	}

	status := "executed"
	if step.Observation.Skipped {
		status = "skipped"
	}

	_, err = s.pool.Exec(ctx, sqlInsertStep,
		runID, step.StepIndex, step.Action.ActionID, actionType(step.Action.ActionID),
		parameters, status, step.Observation.ScreenshotRef,
		len(step.Observation.NetworkCalls), consoleErrors,
		step.StateID, step.Reasoning,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step %d: %w", step.StepIndex, err)
	}
	return nil
}

const sqlInsertAnomaly = `
INSERT INTO agent_anomalies (run_id, step_index, severity, category, action_id, description, evidence)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

// InsertAnomalies persists every anomaly of one step in a single batch.
func (s *Store) InsertAnomalies(ctx context.Context, runID string, stepIndex int, anomalies []schemas.AnomalyReport) error {
	if len(anomalies) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range anomalies {
		evidence, err := jsonOrDefault(a.Evidence, "{}")
		if err != nil {
			return fmt.Errorf("failed to encode anomaly evidence: %w", err)
		}
		batch.Queue(sqlInsertAnomaly,
			runID, stepIndex, string(a.Severity), string(a.Category),
			a.ActionID, a.Description, evidence,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send anomaly batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := range anomalies {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert anomaly %d/%d: %w", i+1, len(anomalies), err)
		}
	}
	return nil
}

// actionType pulls the role prefix out of an action id.
func actionType(actionID string) string {
	if actionID == schemas.ActionBrowserBack {
		return "navigation"
	}
	if idx := strings.Index(actionID, "_"); idx > 0 {
		return actionID[:idx]
	}
	return "unknown"
}

func jsonOrDefault(v any, empty string) (json.RawMessage, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(encoded) == 0 || string(encoded) == "null" {
		return json.RawMessage(empty), nil
	}
	return encoded, nil
}
