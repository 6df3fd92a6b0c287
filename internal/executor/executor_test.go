// internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/config"
)

type fakeCapture struct {
	calls         []schemas.NetworkCall
	consoleErrors []string
	stopped       bool
}

func (f *fakeCapture) Stop() ([]schemas.NetworkCall, []string) {
	f.stopped = true
	return f.calls, f.consoleErrors
}

// fakeDriver scripts Interact results per attempt and records every call.
type fakeDriver struct {
	interactErrs  []error
	interactCalls int
	backErr       error
	backCalls     int
	stabilityWait int
	screenshots   int
	capture       *fakeCapture
}

func (f *fakeDriver) Navigate(context.Context, string) error { return nil }

func (f *fakeDriver) Discover(context.Context) (string, string, []schemas.RawElement, error) {
	return "/", "", nil, nil
}

func (f *fakeDriver) Interact(ctx context.Context, actionID, value string) error {
	i := f.interactCalls
	f.interactCalls++
	if i < len(f.interactErrs) {
		return f.interactErrs[i]
	}
	return nil
}

func (f *fakeDriver) NavigateBack(context.Context) error {
	f.backCalls++
	return f.backErr
}

func (f *fakeDriver) Screenshot(ctx context.Context, name string) (string, error) {
	f.screenshots++
	return "screenshots/" + name + ".png", nil
}

func (f *fakeDriver) WaitForStability(context.Context) error {
	f.stabilityWait++
	return nil
}

func (f *fakeDriver) Capture() schemas.CaptureSession {
	if f.capture == nil {
		f.capture = &fakeCapture{}
	}
	return f.capture
}

func (f *fakeDriver) Close() error { return nil }

var _ schemas.Driver = (*fakeDriver)(nil)

func newTestExecutor(d schemas.Driver) *Executor {
	cfg := config.NewDefaultConfig().Browser
	cfg.RetrySettleDelay = time.Millisecond
	return NewExecutor(d, cfg, zap.NewNop())
}

func TestExecute_SuccessCollectsCapture(t *testing.T) {
	driver := &fakeDriver{capture: &fakeCapture{
		calls:         []schemas.NetworkCall{{Method: "GET", URL: "/api/items", Status: 200}},
		consoleErrors: []string{"ReferenceError: boom"},
	}}
	exec := newTestExecutor(driver)

	obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: "button_save"})

	assert.False(t, obs.Skipped)
	assert.Equal(t, "button_save", obs.ActionID)
	require.Len(t, obs.NetworkCalls, 1)
	assert.Equal(t, []string{"ReferenceError: boom"}, obs.ConsoleErrors)
	assert.NotEmpty(t, obs.ScreenshotRef)
	assert.True(t, driver.capture.stopped)
	assert.Equal(t, 1, driver.stabilityWait)
}

func TestExecute_TransientFailureRetriesAndSucceeds(t *testing.T) {
	driver := &fakeDriver{interactErrs: []error{
		errors.New("element intercepts pointer events"),
	}}
	exec := newTestExecutor(driver)

	obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: "link_settings"})

	assert.False(t, obs.Skipped)
	assert.Equal(t, 2, driver.interactCalls)
	// The blocking marker survives even though the retry succeeded.
	require.Len(t, obs.ConsoleErrors, 1)
	assert.Contains(t, obs.ConsoleErrors[0], "MODAL_BLOCKING")
}

func TestExecute_TransientFailureExhaustsAttempts(t *testing.T) {
	transient := errors.New("timeout waiting for node")
	driver := &fakeDriver{interactErrs: []error{transient, transient, transient}}
	exec := newTestExecutor(driver)

	obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: "button_submit"})

	assert.True(t, obs.Skipped)
	assert.Equal(t, 3, driver.interactCalls)
	assert.Len(t, obs.ConsoleErrors, 3)
	// Failure still produces a stable screenshot of the end state.
	assert.NotEmpty(t, obs.ScreenshotRef)
}

func TestExecute_NonTransientFailureSkipsImmediately(t *testing.T) {
	driver := &fakeDriver{interactErrs: []error{schemas.ErrElementNotFound}}
	exec := newTestExecutor(driver)

	obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: "button_ghost"})

	assert.True(t, obs.Skipped)
	assert.Equal(t, 1, driver.interactCalls)
	require.Len(t, obs.ConsoleErrors, 1)
	assert.Contains(t, obs.ConsoleErrors[0], "interaction failed")
}

func TestExecute_BrowserBack(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		driver := &fakeDriver{}
		exec := newTestExecutor(driver)

		obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: schemas.ActionBrowserBack})

		assert.False(t, obs.Skipped)
		assert.Equal(t, 1, driver.backCalls)
		assert.Zero(t, driver.interactCalls)
	})

	t.Run("failure marks skipped", func(t *testing.T) {
		driver := &fakeDriver{backErr: errors.New("no history entry")}
		exec := newTestExecutor(driver)

		obs := exec.Execute(context.Background(), schemas.ActionContract{ActionID: schemas.ActionBrowserBack})

		assert.True(t, obs.Skipped)
		require.Len(t, obs.ConsoleErrors, 1)
		assert.Contains(t, obs.ConsoleErrors[0], "back navigation failed")
	})
}

func TestExecute_FillValueComesFromParameters(t *testing.T) {
	driver := &fakeDriver{}
	exec := newTestExecutor(driver)

	obs := exec.Execute(context.Background(), schemas.ActionContract{
		ActionID:   "input_email",
		Parameters: map[string]string{"value": "test@example.com"},
	})

	assert.False(t, obs.Skipped)
	assert.Equal(t, 1, driver.interactCalls)
}

func TestScreenshotName(t *testing.T) {
	assert.Equal(t, "step_button_save", screenshotName("button_save"))
	assert.Equal(t, "step_browser_back", screenshotName("BROWSER-BACK"))
}
