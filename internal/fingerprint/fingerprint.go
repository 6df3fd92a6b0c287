// Package fingerprint turns raw discovered elements plus the current route
// into a UIState with a deterministic identifier. Identical route and action
// set always produce the identical state id, regardless of the order the
// driver enumerated the elements in.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// stateIDBytes is the truncated width of the hex digest (16 hex chars).
const stateIDBytes = 8

var (
	reCurrentlyParen = regexp.MustCompile(`(?i)\(currently [^)]*\)`)
	reCurrentlyMode  = regexp.MustCompile(`(?i)currently [a-z]+ mode`)
	reSelectedParen  = regexp.MustCompile(`(?i)\(selected\)`)
	reSelectedWord   = regexp.MustCompile(`(?i)\bselected\b`)
	reCounterParen   = regexp.MustCompile(`\(\d+\)`)
	reTrailingCount  = regexp.MustCompile(`\s\d+$`)
	reNonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeLabel strips state-dependent text from an element label: counter
// badges like "(3)", "(selected)" markers, and "currently ... mode" phrases
// common in theme toggles. Left in place, these make the same logical
// element fingerprint differently every step and trap the explorer in loops.
func NormalizeLabel(label string) string {
	s := reCurrentlyParen.ReplaceAllString(label, "")
	s = reCurrentlyMode.ReplaceAllString(s, "")
	s = reSelectedParen.ReplaceAllString(s, "")
	s = reSelectedWord.ReplaceAllString(s, "")
	s = reCounterParen.ReplaceAllString(s, "")
	s = reTrailingCount.ReplaceAllString(s, "")

	s = strings.ToLower(s)
	s = reNonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ActionID builds the semantically stable identifier for an element:
// "{role}_{normalized_label}", with the anchor role mapped to "link".
func ActionID(role schemas.ElementRole, label string) string {
	tag := strings.ToLower(string(role))
	if tag == "a" {
		tag = string(schemas.RoleLink)
	}
	if label == "" {
		return tag + "_unknown"
	}
	normalized := NormalizeLabel(label)
	if normalized == "" {
		normalized = "element"
	}
	return tag + "_" + normalized
}

// StateID derives the deterministic fingerprint for a route and its action
// set. The action list is sorted before hashing so enumeration order cannot
// leak into the identifier.
func StateID(route string, actions []string) string {
	sorted := make([]string, len(actions))
	copy(sorted, actions)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(route + ":" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:stateIDBytes])
}

// Build assembles a UIState from a discovery result. Elements outside the
// viewport are dropped; modal-scoped actions are ordered first so the
// decision engine and the orchestrator's safety override prefer dismissing
// blocking UI before anything else. Duplicate action ids collapse to one.
func Build(route, title string, elements []schemas.RawElement) schemas.UIState {
	var modal, page []string
	seen := make(map[string]bool, len(elements))

	for _, el := range elements {
		if !el.ViewportSafe {
			continue
		}
		id := ActionID(el.Role, el.Label)
		if seen[id] {
			continue
		}
		seen[id] = true
		if el.InModal {
			modal = append(modal, id)
		} else {
			page = append(page, id)
		}
	}

	actions := make([]string, 0, len(modal)+len(page))
	actions = append(actions, modal...)
	actions = append(actions, page...)

	return schemas.UIState{
		StateID:          StateID(route, actions),
		Route:            route,
		Title:            title,
		AvailableActions: actions,
	}
}

// Degraded returns the UIState used when discovery itself fails. The
// fingerprint is derived from the failure context so distinct failure modes
// remain distinguishable, and the empty action set steers the decision
// engine toward backtrack or termination.
func Degraded(failure error) schemas.UIState {
	context := "discovery_failure"
	if failure != nil {
		context = failure.Error()
	}
	return schemas.UIState{
		StateID: StateID("/error", []string{context}),
		Route:   "/error",
		Title:   "Error",
	}
}
