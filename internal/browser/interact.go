// internal/browser/interact.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/fingerprint"
)

// markAttr tags the element the next interaction targets. Identifier
// normalization lives in the fingerprint package only; the page just hands
// back raw candidates and Go picks the match.
const markAttr = "data-wander-idx"

// candidateScript tags every interactable candidate with an index attribute
// and reports its raw identity so the matching can happen host-side. It
// embeds the same anonymous-label fallback as the discovery script; the two
// must keep deriving identical labels or nameless elements become
// permanently unexecutable.
const candidateScript = `(() => {` + anonLabelScript + `
	const results = [];
	let idx = 0;
	for (const el of document.querySelectorAll('button, a[href], input, textarea, select')) {
		el.setAttribute('data-wander-idx', String(idx));
		const tag = el.tagName.toLowerCase();
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const interactable = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none' && style.opacity !== '0';
		let label = "";
		if (tag === 'input' || tag === 'textarea' || tag === 'select') {
			label = el.placeholder || el.name || anonLabels.get(el) || "";
		} else {
			label = el.textContent ? el.textContent.trim() : "";
			if (label.length <= 1) {
				label = el.getAttribute('aria-label') || el.getAttribute('title') || label;
			}
		}
		results.push({idx: idx, tag: tag, type: el.type || "", label: label, interactable: interactable});
		idx++;
	}
	return results;
})()`

// clearMarksScript removes the candidate tags again so they cannot leak
// into the next discovery pass.
const clearMarksScript = `document.querySelectorAll('[data-wander-idx]')
	.forEach(el => el.removeAttribute('data-wander-idx'))`

type candidate struct {
	Idx          int    `json:"idx"`
	Tag          string `json:"tag"`
	Type         string `json:"type"`
	Label        string `json:"label"`
	Interactable bool   `json:"interactable"`
}

// Interact locates the single interactable element whose recomputed
// identifier equals actionID and performs the interaction appropriate to
// its kind: click for buttons/links/checkboxes/radios, fill for text
// inputs, option selection for selects.
func (s *Session) Interact(ctx context.Context, actionID string, value string) error {
	tctx, tcancel := s.bounded(ctx, s.cfg.InteractionTimeout)
	defer tcancel()

	target, err := s.locate(tctx, actionID)
	if errors.Is(err, schemas.ErrElementNotFound) && strings.HasPrefix(actionID, "button_") {
		// Label normalization can drift between discovery and interaction
		// on dynamic pages; fall back to a text-containment lookup.
		fragment := strings.ReplaceAll(strings.TrimPrefix(actionID, "button_"), "_", " ")
		return s.interactByText(tctx, fragment)
	}
	if err != nil {
		return err
	}
	defer s.clearMarks()

	sel := fmt.Sprintf(`[%s=%q]`, markAttr, strconv.Itoa(target.Idx))

	switch {
	case target.Tag == "select":
		return s.selectOption(tctx, sel, value)
	case target.Tag == "input" && (target.Type == "checkbox" || target.Type == "radio"):
		return s.run(tctx, chromedp.Click(sel, chromedp.ByQuery))
	case target.Tag == "input" || target.Tag == "textarea":
		return s.fill(tctx, sel, value)
	default:
		return s.run(tctx, chromedp.Click(sel, chromedp.ByQuery))
	}
}

// interactByText is the fallback lookup for button actions: click the first
// button whose text contains the given fragment.
func (s *Session) interactByText(ctx context.Context, text string) error {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return err
	}
	defer s.clearMarks()

	needle := strings.ToLower(text)
	for _, c := range candidates {
		if c.Tag != "button" || !c.Interactable {
			continue
		}
		if strings.Contains(strings.ToLower(c.Label), needle) {
			sel := fmt.Sprintf(`[%s=%q]`, markAttr, strconv.Itoa(c.Idx))
			return s.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
		}
	}
	return schemas.ErrElementNotFound
}

// locate tags the candidates and returns the first interactable one whose
// recomputed identifier matches.
func (s *Session) locate(ctx context.Context, actionID string) (*candidate, error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	matched := false
	for i := range candidates {
		c := &candidates[i]
		role := c.Tag
		if c.Tag == "input" && (c.Type == "checkbox" || c.Type == "radio") {
			role = c.Type
		}
		if fingerprint.ActionID(schemas.ElementRole(role), c.Label) != actionID {
			continue
		}
		matched = true
		if c.Interactable {
			s.logger.Debug("Matched interactable element.",
				zap.String("action_id", actionID), zap.Int("idx", c.Idx))
			return c, nil
		}
	}

	s.clearMarks()
	if matched {
		return nil, schemas.ErrNotInteractable
	}
	return nil, schemas.ErrElementNotFound
}

func (s *Session) candidates(ctx context.Context) ([]candidate, error) {
	var candidates []candidate
	if err := chromedp.Run(ctx, chromedp.Evaluate(candidateScript, &candidates)); err != nil {
		return nil, fmt.Errorf("candidate enumeration failed: %w", err)
	}
	return candidates, nil
}

// clearMarks is best-effort cleanup; a navigation may already have blown
// the document away.
func (s *Session) clearMarks() {
	cctx, ccancel := s.bounded(context.Background(), s.cfg.InteractionTimeout)
	defer ccancel()
	_ = chromedp.Run(cctx, chromedp.Evaluate(clearMarksScript, nil))
}

func (s *Session) fill(ctx context.Context, sel, value string) error {
	if value == "" {
		value = "test input"
	}
	return s.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

// selectOption sets the requested option index and fires a change event,
// the same shape a real selection produces.
func (s *Session) selectOption(ctx context.Context, sel, value string) error {
	index := 0
	if value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			index = parsed
		}
	}
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el || el.options.length === 0) return false;
		el.selectedIndex = Math.min(%d, el.options.length - 1);
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, sel, index)

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return schemas.ErrElementNotFound
	}
	return nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("interaction failed: %w", err)
	}
	return nil
}
