// Package decision is the per-step state machine that turns the run state
// and the memory query result into the next action or a termination signal.
// It never drives I/O itself and never lets an internal fault escape: the
// worst possible output is TERMINATE.
package decision

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// Memory qualification thresholds and the exploration confidence schedule.
const (
	fixConfidenceFloor      = 0.6
	patternConfidenceFloor  = 0.5
	explorationFloor        = 0.6
	explorationDecayPerStep = 0.05
)

// Engine evaluates one decision per step. The rand source only feeds input
// synthesis; the control flow itself is deterministic.
type Engine struct {
	logger *zap.Logger
	rng    *rand.Rand
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger: logger.Named("decision"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Decide runs the priority chain: hard stop on a high-severity anomaly,
// proven fix, pattern guidance, frontier exploration, one backtrack, then
// termination. Any panic inside the evaluation converts to TERMINATE.
func (e *Engine) Decide(state *schemas.RunState, memories []schemas.KnowledgeItem) (decision schemas.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Decision evaluation panicked; terminating run.", zap.Any("panic", r))
			decision = schemas.Decision{
				Control:   schemas.ControlTerminate,
				Reasoning: fmt.Sprintf("internal decision fault: %v", r),
			}
		}
	}()

	if last := state.LastStep(); last != nil && hasHighSeverity(last.Anomalies) {
		return schemas.Decision{
			Control:   schemas.ControlTerminate,
			Reasoning: "high-severity anomaly detected; stopping the run for inspection",
		}
	}

	if d, ok := e.fromMemory(memories); ok {
		return d
	}
	return e.explore(state)
}

// fromMemory applies the two memory-guided paths: a proven fix first, then
// pattern guidance. Memories arrive pre-sorted by confidence.
func (e *Engine) fromMemory(memories []schemas.KnowledgeItem) (schemas.Decision, bool) {
	var bestFix, bestPattern *schemas.KnowledgeItem
	for i := range memories {
		m := &memories[i]
		switch {
		case m.Type == schemas.KnowledgeFix && m.Confidence > fixConfidenceFloor:
			if bestFix == nil || m.Confidence > bestFix.Confidence {
				bestFix = m
			}
		case m.Type == schemas.KnowledgePattern && m.Confidence > patternConfidenceFloor:
			if bestPattern == nil || m.Confidence > bestPattern.Confidence {
				bestPattern = m
			}
		}
	}

	if bestFix != nil && bestFix.Solution != "" {
		e.logger.Info("Applying proven fix from memory.",
			zap.String("solution", bestFix.Solution),
			zap.Float64("confidence", bestFix.Confidence))
		return schemas.Decision{
			NextAction: &schemas.ActionContract{
				ActionID:   bestFix.Solution,
				Parameters: fixParameters(bestFix),
			},
			Control:         schemas.ControlContinue,
			Confidence:      bestFix.Confidence,
			Reasoning:       fmt.Sprintf("applying proven fix %q, previously successful for a similar failure", bestFix.Solution),
			FromKnowledgeID: bestFix.ID,
		}, true
	}

	if bestPattern != nil {
		solution := bestPattern.Solution
		if solution == "" {
			solution = "investigate"
		}
		e.logger.Info("Following pattern from memory.",
			zap.String("solution", solution),
			zap.Float64("confidence", bestPattern.Confidence))
		return schemas.Decision{
			NextAction: &schemas.ActionContract{
				ActionID:   solution,
				Parameters: map[string]string{},
			},
			Control:         schemas.ControlContinue,
			Confidence:      bestPattern.Confidence,
			Reasoning:       fmt.Sprintf("following discovered pattern: %s", bestPattern.Content),
			FromKnowledgeID: bestPattern.ID,
		}, true
	}

	return schemas.Decision{}, false
}

// explore picks the first untried action in the current state, falls back
// to a single backtrack once the state is exhausted, and terminates when
// neither applies.
func (e *Engine) explore(state *schemas.RunState) schemas.Decision {
	actions := state.Current.AvailableActions
	if len(actions) == 0 {
		return schemas.Decision{
			Control:   schemas.ControlTerminate,
			Reasoning: "no actions discovered in the current state",
		}
	}

	stateID := state.Current.StateID
	tried := state.TriedActions(stateID)

	for _, actionID := range actions {
		if tried[actionID] {
			continue
		}
		return schemas.Decision{
			NextAction: &schemas.ActionContract{
				ActionID:   actionID,
				Parameters: synthesizeParameters(actionID, e.rng),
			},
			Control:    schemas.ControlContinue,
			Confidence: explorationConfidence(len(state.Steps)),
			Reasoning:  fmt.Sprintf("exploring untried action %q in state %s", actionID, stateID),
		}
	}

	if !state.BacktrackAttempted(stateID) {
		return schemas.Decision{
			NextAction: &schemas.ActionContract{
				ActionID:   schemas.ActionBrowserBack,
				Parameters: map[string]string{},
			},
			Control:    schemas.ControlContinue,
			Confidence: explorationConfidence(len(state.Steps)),
			Reasoning:  fmt.Sprintf("state %s fully explored; backtracking to discover other branches", stateID),
		}
	}

	return schemas.Decision{
		Control:   schemas.ControlTerminate,
		Reasoning: fmt.Sprintf("state %s and its branches fully explored", stateID),
	}
}

func explorationConfidence(steps int) float64 {
	conf := 1.0 - explorationDecayPerStep*float64(steps)
	if conf < explorationFloor {
		return explorationFloor
	}
	return conf
}

func fixParameters(item *schemas.KnowledgeItem) map[string]string {
	params := make(map[string]string)
	for k, v := range item.Metadata {
		params[k] = v
	}
	return params
}

func hasHighSeverity(reports []schemas.AnomalyReport) bool {
	for _, r := range reports {
		if r.Severity == schemas.SeverityHigh {
			return true
		}
	}
	return false
}
