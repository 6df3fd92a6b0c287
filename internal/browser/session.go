// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wander-cli/api/schemas"
	"github.com/xkilldash9x/wander-cli/internal/config"
)

// Session owns one browser tab for the duration of one run. It is the only
// place the application touches CDP; everything above it speaks the
// schemas.Driver contract. A session is constructed per run and passed by
// reference, never held in package state.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	// allocCancel tears down the exec allocator after the tab context.
	allocCancel context.CancelFunc

	logger        *zap.Logger
	cfg           config.BrowserConfig
	screenshotDir string

	tracker *stabilityTracker

	closeOnce sync.Once
}

var _ schemas.Driver = (*Session)(nil)

// NewSession launches a browser and opens the tab the run will live in.
func NewSession(parent context.Context, cfg config.BrowserConfig, artifactsDir string, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:            sessionID,
		ctx:           ctx,
		cancel:        cancel,
		allocCancel:   allocCancel,
		logger:        logger.Named("browser").With(zap.String("session_id", sessionID)),
		cfg:           cfg,
		screenshotDir: filepath.Join(artifactsDir, "screenshots"),
	}

	// Bring the browser up and enable the CDP domains the capture sessions
	// and the stability tracker listen on.
	if err := chromedp.Run(ctx, network.Enable(), runtime.Enable(), cdplog.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	s.tracker = newStabilityTracker(ctx)

	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		s.logger.Warn("Could not create screenshot directory; screenshots disabled.", zap.Error(err))
		s.screenshotDir = ""
	}

	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Navigate loads the target URL and waits for the initial load.
func (s *Session) Navigate(ctx context.Context, target string) error {
	tctx, tcancel := s.bounded(ctx, s.cfg.NavigationTimeout)
	defer tcancel()

	if err := chromedp.Run(tctx, chromedp.Navigate(target)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	return nil
}

// NavigateBack performs browser history back navigation.
func (s *Session) NavigateBack(ctx context.Context) error {
	tctx, tcancel := s.bounded(ctx, s.cfg.NavigationTimeout)
	defer tcancel()

	if err := chromedp.Run(tctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("back navigation failed: %w", err)
	}
	return nil
}

// Location returns the current URL's path component.
func (s *Session) location(ctx context.Context) (route string, title string, err error) {
	var rawURL string
	if err := chromedp.Run(ctx, chromedp.Location(&rawURL), chromedp.Title(&title)); err != nil {
		return "", "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, title, nil
	}
	route = u.Path
	if route == "" {
		route = "/"
	}
	return route, title, nil
}

// Screenshot captures the current viewport and writes it under the artifact
// directory, returning the file path as the artifact ref.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	if s.screenshotDir == "" {
		return "", nil
	}

	tctx, tcancel := s.bounded(ctx, s.cfg.InteractionTimeout)
	defer tcancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}

	ref := filepath.Join(s.screenshotDir, fmt.Sprintf("%s_%d.png", name, time.Now().UnixMilli()))
	if err := os.WriteFile(ref, buf, 0o644); err != nil {
		return "", fmt.Errorf("screenshot write failed: %w", err)
	}
	return ref, nil
}

// WaitForStability blocks until there has been no network activity for the
// quiet period and no visible "loading" indicator remains, bounded by the
// stability timeout. A frozen page degrades to "proceed anyway".
func (s *Session) WaitForStability(ctx context.Context) error {
	tctx, tcancel := s.bounded(ctx, s.cfg.StabilityTimeout)
	defer tcancel()

	if err := s.tracker.waitIdle(tctx, s.cfg.QuietPeriod); err != nil {
		s.logger.Debug("Network did not go idle before the stability bound.", zap.Error(err))
		return nil
	}

	// Avoid fingerprinting or screenshotting a page that still says
	// "loading"; poll briefly and give up quietly if it never clears.
	const probe = `!document.body || !document.body.innerText.toLowerCase().includes("loading")`
	for {
		var settled bool
		if err := chromedp.Run(tctx, chromedp.Evaluate(probe, &settled)); err != nil || settled {
			return nil
		}
		select {
		case <-tctx.Done():
			return nil
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Close tears the session down. Safe to call multiple times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		s.cancel()
		s.allocCancel()
	})
	return nil
}

// bounded derives a deadline-bounded context from the session's tab context.
// The tab context carries the CDP executor, so chromedp.Run keeps targeting
// this session's tab. The caller's context is only consulted for an early
// cancellation check; every operation is bounded by its own timeout.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx.Err() != nil {
		// Already cancelled; hand back a context that will refuse to run.
		return context.WithCancel(ctx)
	}
	if timeout <= 0 {
		return context.WithCancel(s.ctx)
	}
	return context.WithTimeout(s.ctx, timeout)
}
