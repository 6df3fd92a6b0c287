// Package anomaly checks each completed step against a fixed set of
// behavioral invariants. Every check is independent and runs unconditionally;
// a step can trip none, one, or several of them.
package anomaly

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// Detector holds the per-run route expectations and runs the invariant set.
// It is owned by a single run and is not safe for concurrent use.
type Detector struct {
	logger *zap.Logger
	// expectedRoutes records, per (state, action) transition, the route the
	// transition produced the first time it was taken. A later divergence is
	// a route mismatch.
	expectedRoutes map[string]string
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger:         logger.Named("anomaly"),
		expectedRoutes: make(map[string]string),
	}
}

// Detect evaluates all invariants for one step: the state the action started
// from, the state it produced, and the observation captured in between.
func (d *Detector) Detect(prev, next schemas.UIState, obs schemas.Observation) []schemas.AnomalyReport {
	var reports []schemas.AnomalyReport

	reports = append(reports, d.checkAPIErrors(obs)...)
	if r := d.checkSilentSuccess(prev, next, obs); r != nil {
		reports = append(reports, *r)
	}
	if r := d.checkConsoleErrors(obs); r != nil {
		reports = append(reports, *r)
	}
	if r := d.checkRouteMismatch(prev, next, obs); r != nil {
		reports = append(reports, *r)
	}

	if len(reports) > 0 {
		d.logger.Info("Invariant violations detected.",
			zap.String("action_id", obs.ActionID), zap.Int("count", len(reports)))
	}
	return reports
}

// checkAPIErrors flags every backend response with an error status.
func (d *Detector) checkAPIErrors(obs schemas.Observation) []schemas.AnomalyReport {
	var reports []schemas.AnomalyReport
	for _, call := range obs.NetworkCalls {
		if call.Status < 400 {
			continue
		}
		reports = append(reports, schemas.AnomalyReport{
			Severity:    schemas.SeverityHigh,
			Category:    schemas.CategoryAPIError,
			ActionID:    obs.ActionID,
			Description: fmt.Sprintf("backend returned %d for %s %s", call.Status, call.Method, call.URL),
			Evidence: map[string]string{
				"method": call.Method,
				"url":    call.URL,
				"status": strconv.Itoa(call.Status),
			},
		})
	}
	return reports
}

// checkSilentSuccess catches the "backend said OK but nothing happened"
// case: a 200 response during an action that left the UI fingerprint
// untouched.
func (d *Detector) checkSilentSuccess(prev, next schemas.UIState, obs schemas.Observation) *schemas.AnomalyReport {
	if obs.Skipped || prev.StateID != next.StateID {
		return nil
	}
	for _, call := range obs.NetworkCalls {
		if call.Status != 200 {
			continue
		}
		return &schemas.AnomalyReport{
			Severity:    schemas.SeverityHigh,
			Category:    schemas.CategoryInvariantViolation,
			ActionID:    obs.ActionID,
			Description: fmt.Sprintf("successful call %s %s produced no UI state change", call.Method, call.URL),
			Evidence: map[string]string{
				"url":      call.URL,
				"state_id": prev.StateID,
			},
		}
	}
	return nil
}

func (d *Detector) checkConsoleErrors(obs schemas.Observation) *schemas.AnomalyReport {
	if len(obs.ConsoleErrors) == 0 {
		return nil
	}
	sample := obs.ConsoleErrors
	if len(sample) > 3 {
		sample = sample[:3]
	}
	return &schemas.AnomalyReport{
		Severity:    schemas.SeverityMedium,
		Category:    schemas.CategoryConsoleError,
		ActionID:    obs.ActionID,
		Description: fmt.Sprintf("%d console error(s) during action", len(obs.ConsoleErrors)),
		Evidence: map[string]string{
			"errors": strings.Join(sample, " | "),
			"count":  strconv.Itoa(len(obs.ConsoleErrors)),
		},
	}
}

// checkRouteMismatch compares the transition's resulting route against the
// route the same transition produced earlier in the run.
func (d *Detector) checkRouteMismatch(prev, next schemas.UIState, obs schemas.Observation) *schemas.AnomalyReport {
	if obs.Skipped {
		return nil
	}

	key := prev.StateID + " " + obs.ActionID
	expected, seen := d.expectedRoutes[key]
	if !seen {
		d.expectedRoutes[key] = next.Route
		return nil
	}
	if expected == next.Route {
		return nil
	}
	return &schemas.AnomalyReport{
		Severity:    schemas.SeverityMedium,
		Category:    schemas.CategoryRouteMismatch,
		ActionID:    obs.ActionID,
		Description: fmt.Sprintf("route diverged: expected %s, got %s", expected, next.Route),
		Evidence: map[string]string{
			"expected_route": expected,
			"actual_route":   next.Route,
			"from_state":     prev.StateID,
		},
	}
}

// HasHighSeverity reports whether any anomaly in the set is severe enough
// to force termination.
func HasHighSeverity(reports []schemas.AnomalyReport) bool {
	for _, r := range reports {
		if r.Severity == schemas.SeverityHigh {
			return true
		}
	}
	return false
}
