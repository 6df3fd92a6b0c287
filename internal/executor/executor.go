// Package executor turns decided actions into observations. It is the only
// component that drives the browser for interactions, and it never returns
// an error: every failure mode resolves to a skipped observation carrying
// diagnostic console entries.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/config"
)

// maxAttempts bounds the transient-failure retry loop (one initial attempt
// plus two retries).
const maxAttempts = 3

// Executor executes one ActionContract at a time against a driver session.
type Executor struct {
	driver schemas.Driver
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func NewExecutor(driver schemas.Driver, cfg config.BrowserConfig, logger *zap.Logger) *Executor {
	return &Executor{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// Execute performs the action and returns the resulting observation. The
// observation always carries a screenshot ref and whatever network calls and
// console errors fired inside the action window; Skipped marks failures.
func (e *Executor) Execute(ctx context.Context, action schemas.ActionContract) schemas.Observation {
	obs := schemas.Observation{ActionID: action.ActionID}

	capture := e.driver.Capture()
	var diagnostics []string

	if action.ActionID == schemas.ActionBrowserBack {
		if err := e.driver.NavigateBack(ctx); err != nil {
			e.logger.Warn("Back navigation failed.", zap.Error(err))
			diagnostics = append(diagnostics, fmt.Sprintf("back navigation failed: %v", err))
			obs.Skipped = true
		}
	} else {
		skipped, attemptDiags := e.interact(ctx, action)
		obs.Skipped = skipped
		diagnostics = append(diagnostics, attemptDiags...)
	}

	// The page settles and gets photographed on every path, success or not;
	// the fingerprint of the next step depends on it.
	if err := e.driver.WaitForStability(ctx); err != nil {
		e.logger.Debug("Stability wait returned an error.", zap.Error(err))
	}
	if ref, err := e.driver.Screenshot(ctx, screenshotName(action.ActionID)); err != nil {
		e.logger.Debug("Screenshot failed.", zap.Error(err))
	} else {
		obs.ScreenshotRef = ref
	}

	calls, consoleErrors := capture.Stop()
	obs.NetworkCalls = calls
	obs.ConsoleErrors = append(consoleErrors, diagnostics...)
	return obs
}

// interact runs the retry state machine over driver.Interact. Transient
// failures (overlay intercepting the pointer, timeouts, detached nodes) get
// a settle delay and another attempt; each one leaves a MODAL_BLOCKING
// marker so anomaly detection can see the interference even when a retry
// ultimately succeeds.
func (e *Executor) interact(ctx context.Context, action schemas.ActionContract) (skipped bool, diagnostics []string) {
	value := action.Parameters["value"]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := e.driver.Interact(ctx, action.ActionID, value)
		if err == nil {
			return false, diagnostics
		}

		if !schemas.IsTransientInteraction(err) {
			e.logger.Warn("Interaction failed.",
				zap.String("action_id", action.ActionID), zap.Error(err))
			diagnostics = append(diagnostics, fmt.Sprintf("interaction failed: %v", err))
			return true, diagnostics
		}

		e.logger.Debug("Transient interaction failure; will retry.",
			zap.String("action_id", action.ActionID),
			zap.Int("attempt", attempt), zap.Error(err))
		diagnostics = append(diagnostics,
			fmt.Sprintf("MODAL_BLOCKING: attempt %d for %s: %v", attempt, action.ActionID, err))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			diagnostics = append(diagnostics, fmt.Sprintf("interaction aborted: %v", ctx.Err()))
			return true, diagnostics
		case <-time.After(e.cfg.RetrySettleDelay):
		}
	}
	return true, diagnostics
}

func screenshotName(actionID string) string {
	name := strings.ToLower(actionID)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 64 {
		name = name[:64]
	}
	return "step_" + name
}
