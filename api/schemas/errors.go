package schemas

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for the Driver contract.
var (
	// ErrElementNotFound means no element currently matches the action id.
	ErrElementNotFound = errors.New("element not found")
	// ErrNotInteractable means a matching element exists but has zero size,
	// is hidden, or is fully transparent.
	ErrNotInteractable = errors.New("element not interactable")
	// ErrSessionClosed means the browser session is gone.
	ErrSessionClosed = errors.New("browser session closed")
)

// transientMarkers are substrings of driver errors that indicate a failure
// class worth retrying after a settle delay: an overlay intercepting the
// pointer, a slow page, or a re-rendered (detached) node.
var transientMarkers = []string{
	"intercepts pointer events",
	"timeout",
	"deadline exceeded",
	"not attached",
	"detached",
	"node not visible",
	"could not compute box model",
	"modal",
}

// IsTransientInteraction reports whether an interaction failure belongs to
// the recognized transient class from the retry policy.
func IsTransientInteraction(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNotInteractable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
