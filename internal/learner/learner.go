// Package learner writes outcome signal back into the knowledge store after
// each step, and persists run-level knowledge when a run finishes. All of
// its writes are best-effort: a memory failure never disturbs the run.
package learner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// reinforceBoost is the confidence shift applied when a memory-sourced
// decision is validated by its outcome.
const reinforceBoost = 0.15

// knowledgeWriter is the slice of the knowledge store the learner needs.
type knowledgeWriter interface {
	Put(ctx context.Context, item schemas.KnowledgeItem) (schemas.KnowledgeItem, error)
	Reinforce(ctx context.Context, id string, success bool, boost float64) error
}

// Learner converts completed steps into stored knowledge.
type Learner struct {
	store  knowledgeWriter
	logger *zap.Logger
}

func NewLearner(store knowledgeWriter, logger *zap.Logger) *Learner {
	return &Learner{
		store:  store,
		logger: logger.Named("learner"),
	}
}

// Learn processes one completed step: reinforce the memory the decision came
// from, record frontier successes as exploration knowledge, and record
// recovery attempts (an action taken right after an anomalous step) as fix
// knowledge keyed by the failure's signature.
func (l *Learner) Learn(ctx context.Context, run *schemas.RunState, decision schemas.Decision, step schemas.AgentStep) {
	if l.store == nil || decision.NextAction == nil {
		return
	}

	success := !step.Observation.Skipped && len(step.Anomalies) == 0

	// Sharpen or erode the memory that produced this decision instead of
	// scattering duplicates of the same fix across the store.
	if decision.FromKnowledgeID != "" {
		if err := l.store.Reinforce(ctx, decision.FromKnowledgeID, success, reinforceBoost); err != nil {
			l.logger.Warn("Failed to reinforce knowledge item.",
				zap.String("id", decision.FromKnowledgeID), zap.Error(err))
		}
		if success {
			l.put(ctx, schemas.KnowledgeItem{
				Type:         schemas.KnowledgePattern,
				Content:      fmt.Sprintf("memory-driven success: %s", decision.Reasoning),
				RunID:        run.RunID,
				Solution:     step.Action.ActionID,
				Outcome:      schemas.OutcomeSuccess,
				SuccessCount: 1,
				Metadata:     l.metadata(run),
			})
		}
	}

	if prior := priorFailureSignature(run, step); prior != "" {
		outcome := schemas.OutcomeFailure
		successCount, failureCount := 0, 1
		if success {
			outcome = schemas.OutcomeSuccess
			successCount, failureCount = 1, 0
		}
		l.put(ctx, schemas.KnowledgeItem{
			Type:           schemas.KnowledgeFix,
			Content:        fmt.Sprintf("recovery attempt %s after: %s", step.Action.ActionID, prior),
			RunID:          run.RunID,
			ErrorSignature: prior,
			Solution:       step.Action.ActionID,
			Outcome:        outcome,
			SuccessCount:   successCount,
			FailureCount:   failureCount,
			Metadata:       l.metadata(run),
		})
		return
	}

	if success {
		l.put(ctx, schemas.KnowledgeItem{
			Type:           schemas.KnowledgeExploration,
			Content:        fmt.Sprintf("successfully executed %s", step.Action.ActionID),
			RunID:          run.RunID,
			ErrorSignature: step.Action.ActionID + "_success",
			Solution:       step.Action.ActionID,
			Outcome:        schemas.OutcomeSuccess,
			SuccessCount:   1,
			Metadata:       l.metadata(run),
		})
	}
}

// PersistRun stores run-level knowledge once the loop has finished: error
// items for skipped steps and anomalies, flow items for everything that
// worked.
func (l *Learner) PersistRun(ctx context.Context, run *schemas.RunState) {
	if l.store == nil {
		return
	}

	for _, step := range run.Steps {
		if step.Observation.Skipped {
			l.put(ctx, schemas.KnowledgeItem{
				Type:     schemas.KnowledgeError,
				Content:  fmt.Sprintf("action %s failed", step.Action.ActionID),
				RunID:    run.RunID,
				Metadata: l.metadata(run),
			})
		}

		for _, anomaly := range step.Anomalies {
			l.put(ctx, schemas.KnowledgeItem{
				Type:    schemas.KnowledgeError,
				Content: fmt.Sprintf("%s: %s", anomaly.Category, anomaly.Description),
				RunID:   run.RunID,
				Metadata: map[string]string{
					"severity":  string(anomaly.Severity),
					"action_id": anomaly.ActionID,
					"endpoint":  run.TargetURL,
				},
			})
		}

		if !step.Observation.Skipped {
			l.put(ctx, schemas.KnowledgeItem{
				Type:         schemas.KnowledgeFlow,
				Content:      fmt.Sprintf("successful action: %s", step.Action.ActionID),
				RunID:        run.RunID,
				Solution:     step.Action.ActionID,
				SuccessCount: 1,
				Metadata:     l.metadata(run),
			})
		}
	}

	l.logger.Info("Persisted run knowledge.",
		zap.String("run_id", run.RunID), zap.Int("steps", len(run.Steps)))
}

func (l *Learner) put(ctx context.Context, item schemas.KnowledgeItem) {
	if _, err := l.store.Put(ctx, item); err != nil {
		l.logger.Warn("Failed to store knowledge item.",
			zap.String("type", string(item.Type)), zap.Error(err))
	}
}

func (l *Learner) metadata(run *schemas.RunState) map[string]string {
	return map[string]string{
		"endpoint":  run.TargetURL,
		"env":       "runtime",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// priorFailureSignature derives the error signature of the step immediately
// before the given one, if that step failed. The signature keys the fix item
// so later runs hitting the same failure can retrieve the recovery.
func priorFailureSignature(run *schemas.RunState, step schemas.AgentStep) string {
	idx := step.StepIndex - 1
	if idx < 0 || idx >= len(run.Steps) {
		return ""
	}
	prior := run.Steps[idx]

	if len(prior.Anomalies) > 0 {
		return prior.Anomalies[0].Description
	}
	if prior.Observation.Skipped && len(prior.Observation.ConsoleErrors) > 0 {
		return prior.Observation.ConsoleErrors[0]
	}
	return ""
}
