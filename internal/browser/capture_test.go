// internal/browser/capture_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCapture() *captureSession {
	_, cancel := context.WithCancel(context.Background())
	return &captureSession{
		cancel:  cancel,
		methods: make(map[network.RequestID]string),
	}
}

func TestCaptureSession_CorrelatesMethodWithResponse(t *testing.T) {
	c := newTestCapture()

	c.handle(&network.EventRequestWillBeSent{
		RequestID: "req-1",
		Request:   &network.Request{Method: "POST", URL: "https://app.local/api/items"},
	})
	c.handle(&network.EventResponseReceived{
		RequestID: "req-1",
		Type:      network.ResourceTypeXHR,
		Response:  &network.Response{URL: "https://app.local/api/items", Status: 500},
	})

	calls, consoleErrs := c.Stop()
	require.Len(t, calls, 1)
	assert.Equal(t, "POST", calls[0].Method)
	assert.Equal(t, "https://app.local/api/items", calls[0].URL)
	assert.Equal(t, 500, calls[0].Status)
	assert.Empty(t, consoleErrs)
}

func TestCaptureSession_IgnoresStaticAssets(t *testing.T) {
	c := newTestCapture()

	c.handle(&network.EventResponseReceived{
		RequestID: "req-img",
		Type:      network.ResourceTypeImage,
		Response:  &network.Response{URL: "https://app.local/logo.png", Status: 200},
	})
	c.handle(&network.EventResponseReceived{
		RequestID: "req-fetch",
		Type:      network.ResourceTypeFetch,
		Response:  &network.Response{URL: "https://app.local/api/state", Status: 200},
	})

	calls, _ := c.Stop()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://app.local/api/state", calls[0].URL)
}

func TestCaptureSession_DefaultsMethodWhenRequestUnseen(t *testing.T) {
	c := newTestCapture()

	// The request event can predate the capture window; the response alone
	// must still produce a usable record.
	c.handle(&network.EventResponseReceived{
		RequestID: "req-late",
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{URL: "https://app.local/", Status: 200},
	})

	calls, _ := c.Stop()
	require.Len(t, calls, 1)
	assert.Equal(t, "GET", calls[0].Method)
}

func TestCaptureSession_ConsoleErrorsAndExceptions(t *testing.T) {
	c := newTestCapture()

	c.handle(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeError,
		Args: []*runtime.RemoteObject{
			{Type: runtime.TypeString, Value: []byte(`"MODAL_BLOCKING: confirm dialog"`)},
		},
	})
	c.handle(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeLog,
		Args: []*runtime.RemoteObject{
			{Type: runtime.TypeString, Value: []byte(`"just a log line"`)},
		},
	})
	c.handle(&runtime.EventExceptionThrown{
		ExceptionDetails: &runtime.ExceptionDetails{
			Text: "Uncaught",
			Exception: &runtime.RemoteObject{
				Description: "TypeError: cannot read properties of undefined",
			},
		},
	})

	_, consoleErrs := c.Stop()
	require.Len(t, consoleErrs, 2)
	assert.Contains(t, consoleErrs[0], "MODAL_BLOCKING")
	assert.Contains(t, consoleErrs[1], "TypeError")
}

func TestCaptureSession_StopIsIdempotent(t *testing.T) {
	c := newTestCapture()
	c.handle(&network.EventResponseReceived{
		RequestID: "req-1",
		Type:      network.ResourceTypeFetch,
		Response:  &network.Response{URL: "https://app.local/api/a", Status: 204},
	})

	first, _ := c.Stop()
	second, _ := c.Stop()
	assert.Equal(t, first, second)
}

func TestStabilityTracker_WaitIdle(t *testing.T) {
	tracker := &stabilityTracker{inflight: make(map[network.RequestID]struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tracker.waitIdle(ctx, 40*time.Millisecond))
}

func TestStabilityTracker_WaitIdleTimesOutWhileBusy(t *testing.T) {
	tracker := &stabilityTracker{inflight: map[network.RequestID]struct{}{"busy": {}}}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := tracker.waitIdle(ctx, 40*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
