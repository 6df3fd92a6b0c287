// internal/browser/discover.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
)

// anonLabelScript assigns stable fallback labels to inputs and selects that
// carry neither a placeholder nor a name. Both the discovery script and the
// interaction script embed this snippet, so the identifier recomputed at
// interaction time always equals the one discovery advertised.
const anonLabelScript = `
	const anonLabels = new Map();
	{
		let anon = 0;
		for (const el of document.querySelectorAll('input, textarea')) {
			const type = el.type || 'text';
			if (type === 'hidden' || type === 'submit' || type === 'button') continue;
			if (!el.placeholder && !el.name) anonLabels.set(el, 'input_' + (anon++));
		}
		for (const el of document.querySelectorAll('select')) {
			if (!el.name) anonLabels.set(el, 'select_' + (anon++));
		}
	}
`

// discoverScript enumerates every interactive element in one CDP round trip.
// Labels fall back to aria-label/title when the visible text is empty,
// inputs report their placeholder or name, and each element carries its
// viewport visibility and whether it sits inside a modal/dialog container.
const discoverScript = `(() => {` + anonLabelScript + `
	const results = [];
	const inViewport = (el) => {
		const rect = el.getBoundingClientRect();
		return rect.top >= 0 && rect.left >= 0 &&
			rect.bottom <= window.innerHeight && rect.right <= window.innerWidth;
	};
	const inModal = (el) =>
		el.closest('[role="dialog"], .modal, .popup, .overlay') !== null;
	const textOf = (el) => {
		let text = el.textContent ? el.textContent.trim() : "";
		if (text.length <= 1) {
			text = el.getAttribute('aria-label') || el.getAttribute('title') || text;
		}
		return text;
	};

	for (const el of document.querySelectorAll('button')) {
		const label = textOf(el);
		if (!label) continue;
		results.push({role: 'button', label: label, viewport_safe: inViewport(el), in_modal: inModal(el)});
	}
	for (const el of document.querySelectorAll('a[href]')) {
		const label = textOf(el);
		if (!label) continue;
		results.push({role: 'link', label: label, viewport_safe: inViewport(el), in_modal: inModal(el)});
	}
	for (const el of document.querySelectorAll('input, textarea')) {
		const type = el.type || 'text';
		if (type === 'hidden' || type === 'submit' || type === 'button') continue;
		const label = el.placeholder || el.name || anonLabels.get(el);
		const role = (type === 'checkbox' || type === 'radio')
			? type
			: (el.tagName.toLowerCase() === 'textarea' ? 'textarea' : 'input');
		results.push({role: role, label: label, viewport_safe: inViewport(el),
			in_modal: inModal(el), input_type: type});
	}
	for (const el of document.querySelectorAll('select')) {
		const label = el.name || anonLabels.get(el);
		results.push({role: 'select', label: label, viewport_safe: inViewport(el),
			in_modal: inModal(el), options: Array.from(el.options).map(o => o.text)});
	}
	return results;
})()`

// Discover enumerates the interactive elements currently on the page. The
// caller (the fingerprint builder) owns normalization and ordering; this
// method only reports what the DOM contains right now.
func (s *Session) Discover(ctx context.Context) (string, string, []schemas.RawElement, error) {
	tctx, tcancel := s.bounded(ctx, s.cfg.NavigationTimeout)
	defer tcancel()

	route, title, err := s.location(tctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("could not read page location: %w", err)
	}

	var elements []schemas.RawElement
	if err := chromedp.Run(tctx, chromedp.Evaluate(discoverScript, &elements)); err != nil {
		return "", "", nil, fmt.Errorf("element discovery failed: %w", err)
	}

	s.logger.Debug("Discovered interactive elements.",
		zap.String("route", route), zap.Int("count", len(elements)))
	return route, title, elements, nil
}
