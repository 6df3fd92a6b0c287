// Package agent owns the top-level exploration loop: one run, one browser
// session, strictly sequential steps. Per step it decides, executes,
// re-fingerprints, checks invariants, updates the circuit breakers, and
// feeds outcomes to the learner. It is the only component that mutates
// RunState.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/anomaly"
	"github.com/xkilldash9x/wander-cli/internal/config"
	"github.com/xkilldash9x/wander-cli/internal/decision"
	"github.com/xkilldash9x/wander-cli/internal/executor"
	"github.com/xkilldash9x/wander-cli/internal/fingerprint"
	"github.com/xkilldash9x/wander-cli/internal/knowledge"
	"github.com/xkilldash9x/wander-cli/internal/learner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// dismissalWords is the fixed vocabulary the modal-priority override matches
// against untried action ids. A blocking overlay starves every other
// invariant, so dismissing one always wins.
var dismissalWords = []string{"close", "cancel", "ok", "dismiss", "accept", "continue", "agree"}

// Runner drives one exploration run to completion.
type Runner struct {
	cfg      *config.Config
	driver   schemas.Driver
	exec     *executor.Executor
	detector *anomaly.Detector
	engine   *decision.Engine

	// Optional collaborators; a nil value disables the concern.
	memory *knowledge.Store
	learn  *learner.Learner
	repo   schemas.RunRepository

	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRunner wires the per-run components around the given driver session.
func NewRunner(cfg *config.Config, driver schemas.Driver, memory *knowledge.Store, learn *learner.Learner, repo schemas.RunRepository, logger *zap.Logger) *Runner {
	limit := rate.Inf
	if cfg.Agent.StepsPerSecond > 0 {
		limit = rate.Limit(cfg.Agent.StepsPerSecond)
	}
	return &Runner{
		cfg:      cfg,
		driver:   driver,
		exec:     executor.NewExecutor(driver, cfg.Browser, logger),
		detector: anomaly.NewDetector(logger),
		engine:   decision.NewEngine(logger),
		memory:   memory,
		learn:    learn,
		repo:     repo,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("agent"),
	}
}

// Run executes the exploration loop against the target and always returns a
// summary, even for a degenerate zero-step run.
func (r *Runner) Run(ctx context.Context, target string) (schemas.RunSummary, error) {
	runID := uuid.New().String()
	log := r.logger.With(zap.String("run_id", runID))
	log.Info("Starting exploration run.", zap.String("target", target))

	summary := schemas.RunSummary{
		RunID:     runID,
		TargetURL: target,
		StartedAt: time.Now().UTC(),
		Status:    schemas.RunStatusRunning,
	}
	r.persistSummary(ctx, summary)

	state := &schemas.RunState{RunID: runID, TargetURL: target}
	state.Current = r.openTarget(ctx, target, log)

	r.loop(ctx, state, log)

	summary.CompletedAt = time.Now().UTC()
	summary.Status = schemas.RunStatusCompleted
	summary.TotalSteps = len(state.Steps)
	for _, step := range state.Steps {
		if step.Observation.Skipped {
			summary.Failures++
		}
		summary.Anomalies += len(step.Anomalies)
	}
	if summary.TotalSteps == 0 {
		summary.Status = schemas.RunStatusFailed
	}

	// Learning writes must land before the run is declared finished.
	if r.learn != nil {
		r.learn.PersistRun(ctx, state)
	}
	r.writeTrace(state, log)
	r.persistSummary(ctx, summary)

	log.Info("Run finished.",
		zap.Int("steps", summary.TotalSteps),
		zap.Int("failures", summary.Failures),
		zap.Int("anomalies", summary.Anomalies))
	return summary, nil
}

// openTarget performs initial navigation and discovery, with one local
// recovery attempt before degrading.
func (r *Runner) openTarget(ctx context.Context, target string, log *zap.Logger) schemas.UIState {
	if err := r.driver.Navigate(ctx, target); err != nil {
		log.Warn("Initial navigation failed.", zap.Error(err))
		return fingerprint.Degraded(err)
	}
	_ = r.driver.WaitForStability(ctx)

	state, err := r.discover(ctx)
	if err == nil {
		return state
	}

	log.Warn("Initial discovery failed; retrying once.", zap.Error(err))
	if nerr := r.driver.Navigate(ctx, target); nerr != nil {
		return fingerprint.Degraded(nerr)
	}
	_ = r.driver.WaitForStability(ctx)
	state, _ = r.discover(ctx)
	return state
}

func (r *Runner) loop(ctx context.Context, state *schemas.RunState, log *zap.Logger) {
	for stepIdx := 0; stepIdx < r.cfg.Agent.StepBudget; stepIdx++ {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Info("Run context cancelled.", zap.Error(err))
			return
		}
		if state.ConsecutiveFailures >= r.cfg.Agent.MaxConsecutiveFails {
			log.Warn("Consecutive-failure breaker tripped.",
				zap.Int("failures", state.ConsecutiveFailures))
			return
		}
		if state.NoActionSteps >= r.cfg.Agent.MaxNoActionSteps {
			log.Warn("No-action breaker tripped.",
				zap.Int("no_action_steps", state.NoActionSteps))
			return
		}

		d := r.decide(ctx, state)
		if d.Control != schemas.ControlContinue || d.NextAction == nil {
			log.Info("Decision engine signalled termination.", zap.String("reasoning", d.Reasoning))
			return
		}

		log.Info("Executing action.",
			zap.Int("step", stepIdx),
			zap.String("action_id", d.NextAction.ActionID),
			zap.Float64("confidence", d.Confidence))

		prev := state.Current
		obs := r.exec.Execute(ctx, *d.NextAction)

		next, err := r.discover(ctx)
		if err != nil {
			// A failed refresh keeps the previous picture rather than
			// poisoning the fingerprint history with a degraded state.
			log.Warn("UI refresh failed; keeping previous state.", zap.Error(err))
			next = prev
		}

		reports := r.detector.Detect(prev, next, obs)
		r.updateBreakers(state, prev, next, obs)

		step := schemas.AgentStep{
			StepIndex:   stepIdx,
			Action:      *d.NextAction,
			Observation: obs,
			StateID:     prev.StateID,
			Reasoning:   d.Reasoning,
			Anomalies:   reports,
		}
		state.Steps = append(state.Steps, step)
		state.Current = next

		r.persistStep(ctx, state.RunID, step)
		if r.learn != nil {
			r.learn.Learn(ctx, state, d, step)
		}
	}
	log.Info("Step budget exhausted.", zap.Int("budget", r.cfg.Agent.StepBudget))
}

// decide applies the modal-priority override, then queries memory and runs
// the decision engine.
func (r *Runner) decide(ctx context.Context, state *schemas.RunState) schemas.Decision {
	if forced := r.dismissalOverride(state); forced != "" {
		r.logger.Info("Forcing modal dismissal before anything else.",
			zap.String("action_id", forced))
		return schemas.Decision{
			NextAction: &schemas.ActionContract{ActionID: forced, Parameters: map[string]string{}},
			Control:    schemas.ControlContinue,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("dismissing blocking overlay via %q before continuing", forced),
		}
	}

	var memories []schemas.KnowledgeItem
	if r.memory != nil {
		memories = r.memory.QueryForDecision(ctx, memoryQuery(state), 3)
	}
	return r.engine.Decide(state, memories)
}

// dismissalOverride returns the first untried action in the current state
// matching the dismissal vocabulary, or empty.
func (r *Runner) dismissalOverride(state *schemas.RunState) string {
	tried := state.TriedActions(state.Current.StateID)
	for _, actionID := range state.Current.AvailableActions {
		if tried[actionID] {
			continue
		}
		if isDismissal(actionID) {
			return actionID
		}
	}
	return ""
}

// updateBreakers applies progress detection to the two circuit-breaker
// counters: a step fails when it was skipped or moved nothing, and a
// dismissed modal resets the failure streak because the UI just unlocked.
func (r *Runner) updateBreakers(state *schemas.RunState, prev, next schemas.UIState, obs schemas.Observation) {
	added, removed := diffActions(prev.AvailableActions, next.AvailableActions)
	modalDismissed := countDismissals(prev.AvailableActions) > 0 && countDismissals(next.AvailableActions) == 0

	if len(added) > 0 {
		r.logger.Debug("New elements appeared.", zap.Strings("actions", added))
	}
	if len(removed) > 0 {
		r.logger.Debug("Elements disappeared.", zap.Strings("actions", removed))
	}

	significantChange := len(added) > 0 || len(removed) > 0 || modalDismissed
	noProgress := next.StateID == prev.StateID && !significantChange
	failed := obs.Skipped || noProgress

	if failed && !modalDismissed {
		state.ConsecutiveFailures++
	} else {
		state.ConsecutiveFailures = 0
	}

	if len(next.AvailableActions) == 0 {
		state.NoActionSteps++
	} else {
		state.NoActionSteps = 0
	}
}

func (r *Runner) discover(ctx context.Context) (schemas.UIState, error) {
	route, title, elements, err := r.driver.Discover(ctx)
	if err != nil {
		return fingerprint.Degraded(err), err
	}
	return fingerprint.Build(route, title, elements), nil
}

// persistSummary and persistStep are fire-and-forget: a dead store never
// aborts a run.
func (r *Runner) persistSummary(ctx context.Context, summary schemas.RunSummary) {
	if r.repo == nil {
		return
	}
	if err := r.repo.UpsertRunSummary(ctx, summary); err != nil {
		r.logger.Warn("Failed to persist run summary.", zap.Error(err))
	}
}

func (r *Runner) persistStep(ctx context.Context, runID string, step schemas.AgentStep) {
	if r.repo == nil {
		return
	}
	if err := r.repo.InsertStep(ctx, runID, step); err != nil {
		r.logger.Warn("Failed to persist step.", zap.Int("step", step.StepIndex), zap.Error(err))
	}
	if err := r.repo.InsertAnomalies(ctx, runID, step.StepIndex, step.Anomalies); err != nil {
		r.logger.Warn("Failed to persist anomalies.", zap.Int("step", step.StepIndex), zap.Error(err))
	}
}

// writeTrace serializes the full run state for offline inspection.
func (r *Runner) writeTrace(state *schemas.RunState, log *zap.Logger) {
	base, err := r.cfg.ArtifactsDir()
	if err != nil {
		log.Warn("Could not resolve artifact directory.", zap.Error(err))
		return
	}
	dir := filepath.Join(base, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("Could not create trace directory.", zap.Error(err))
		return
	}

	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Warn("Could not encode run trace.", zap.Error(err))
		return
	}

	path := filepath.Join(dir, state.RunID+".json")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		log.Warn("Could not write run trace.", zap.Error(err))
		return
	}
	log.Info("Run trace written.", zap.String("path", path))
}

// memoryQuery builds the similarity query for the step's memory reads from
// the latest failure evidence.
func memoryQuery(state *schemas.RunState) string {
	if last := state.LastStep(); last != nil && len(last.Anomalies) > 0 {
		parts := make([]string, 0, len(last.Anomalies))
		for _, a := range last.Anomalies {
			parts = append(parts, fmt.Sprintf("%s %s", a.Category, a.Description))
		}
		return strings.Join(parts, " ")
	}
	return "agent runtime behavior"
}

func isDismissal(actionID string) bool {
	lower := strings.ToLower(actionID)
	for _, word := range dismissalWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func countDismissals(actions []string) int {
	n := 0
	for _, a := range actions {
		if isDismissal(a) {
			n++
		}
	}
	return n
}

func diffActions(oldActions, newActions []string) (added, removed []string) {
	oldSet := make(map[string]bool, len(oldActions))
	for _, a := range oldActions {
		oldSet[a] = true
	}
	newSet := make(map[string]bool, len(newActions))
	for _, a := range newActions {
		newSet[a] = true
		if !oldSet[a] {
			added = append(added, a)
		}
	}
	for _, a := range oldActions {
		if !newSet[a] {
			removed = append(removed, a)
		}
	}
	return added, removed
}
