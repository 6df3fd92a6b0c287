// internal/browser/capture.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// stabilityTracker listens on the tab for the whole session lifetime and
// keeps a count of in-flight network requests so WaitForStability can poll
// for a quiet window.
type stabilityTracker struct {
	mu       sync.RWMutex
	inflight map[network.RequestID]struct{}
}

func newStabilityTracker(sessionCtx context.Context) *stabilityTracker {
	t := &stabilityTracker{inflight: make(map[network.RequestID]struct{})}
	chromedp.ListenTarget(sessionCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.mu.Lock()
			t.inflight[e.RequestID] = struct{}{}
			t.mu.Unlock()
		case *network.EventLoadingFinished:
			t.mu.Lock()
			delete(t.inflight, e.RequestID)
			t.mu.Unlock()
		case *network.EventLoadingFailed:
			t.mu.Lock()
			delete(t.inflight, e.RequestID)
			t.mu.Unlock()
		}
	})
	return t
}

func (t *stabilityTracker) inflightCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.inflight)
}

// waitIdle polls until there have been no in-flight requests for the quiet
// period, or the context deadline expires.
func (t *stabilityTracker) waitIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.inflightCount() > 0 {
				lastActivity = time.Now()
				continue
			}
			if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// captureSession accumulates backend responses and console errors for one
// action window. It attaches its own listener so that stopping it cannot
// disturb the session-wide stability tracker.
type captureSession struct {
	cancel context.CancelFunc

	mu sync.Mutex
	// methods remembers the verb per request so the response event, which
	// only carries the URL and status, can be completed into a NetworkCall.
	methods       map[network.RequestID]string
	calls         []schemas.NetworkCall
	consoleErrors []string
}

var _ schemas.CaptureSession = (*captureSession)(nil)

// Capture opens a scoped listener window on the session's tab.
func (s *Session) Capture() schemas.CaptureSession {
	listenCtx, cancel := context.WithCancel(s.ctx)
	c := &captureSession{
		cancel:  cancel,
		methods: make(map[network.RequestID]string),
	}
	chromedp.ListenTarget(listenCtx, c.handle)
	return c
}

func (c *captureSession) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.mu.Lock()
		c.methods[e.RequestID] = e.Request.Method
		c.mu.Unlock()

	case *network.EventResponseReceived:
		// Only backend traffic matters to anomaly detection; static assets
		// just add noise.
		switch e.Type {
		case network.ResourceTypeXHR, network.ResourceTypeFetch, network.ResourceTypeDocument:
		default:
			return
		}
		c.mu.Lock()
		method := c.methods[e.RequestID]
		if method == "" {
			method = "GET"
		}
		c.calls = append(c.calls, schemas.NetworkCall{
			Method: method,
			URL:    e.Response.URL,
			Status: int(e.Response.Status),
		})
		c.mu.Unlock()

	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError {
			return
		}
		c.mu.Lock()
		c.consoleErrors = append(c.consoleErrors, formatConsoleArgs(e.Args))
		c.mu.Unlock()

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		// The exception description carries the message and stack trace.
		text := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			text = e.ExceptionDetails.Exception.Description
		}
		c.mu.Lock()
		c.consoleErrors = append(c.consoleErrors, text)
		c.mu.Unlock()
	}
}

// Stop detaches the listener and returns copies of everything collected.
// Safe to call more than once.
func (c *captureSession) Stop() ([]schemas.NetworkCall, []string) {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]schemas.NetworkCall, len(c.calls))
	copy(calls, c.calls)
	errs := make([]string, len(c.consoleErrors))
	copy(errs, c.consoleErrors)
	return calls, errs
}

// formatConsoleArgs flattens a console call's arguments to a single line.
func formatConsoleArgs(args []*runtime.RemoteObject) string {
	out := ""
	for i, arg := range args {
		if i > 0 {
			out += " "
		}
		switch {
		case arg.Value != nil:
			out += string(arg.Value)
		case arg.Description != "":
			out += arg.Description
		default:
			out += fmt.Sprintf("<%s>", arg.Type)
		}
	}
	return out
}
