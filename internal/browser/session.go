// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stockscope/internal/browser/stealth"
	"stockscope/internal/config"
)

// Session represents a single browser tab with the stealth persona applied.
// It exposes the navigation, DOM and capture primitives the collector and
// uploader are built on. All methods derive their deadline from both the
// session lifecycle and the caller's context.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *zap.Logger

	// limiter spaces out page loads so the target portal is not hammered.
	limiter *rate.Limiter

	closeOnce sync.Once
}

func newSession(
	parentCtx context.Context,
	allocCtx context.Context,
	cfg *config.Config,
	persona stealth.Persona,
	logger *zap.Logger,
) (*Session, error) {
	sessionID := uuid.New().String()

	tabCtx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:      sessionID,
		ctx:     tabCtx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.With(zap.String("session_id", sessionID[:8])),
		limiter: rate.NewLimiter(rate.Limit(cfg.Finance.RequestRate), 1),
	}

	// Apply persona overrides and the automation-flag countermeasures to the
	// fresh tab before the first navigation.
	if err := chromedp.Run(tabCtx, stealth.Apply(persona, s.logger)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to apply stealth persona: %w", err)
	}

	// Watch the caller's context so an interrupt tears the tab down.
	go func() {
		select {
		case <-parentCtx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	s.logger.Info("Browser session initialized.")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// run executes chromedp actions against the tab, honoring the caller's
// context in addition to the session lifecycle.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and polls the ready-selector candidates in priority
// order until one appears or the navigation timeout elapses. The candidates
// should be ordered most specific first; "body" is appended as the universal
// fallback. The return value is a best-effort loaded signal, never an error:
// the caller decides whether a failed load aborts its run.
func (s *Session) Navigate(ctx context.Context, url string, readySelectors ...string) bool {
	if err := s.limiter.Wait(ctx); err != nil {
		return false
	}

	s.logger.Info("Navigating", zap.String("url", url))
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		s.logger.Error("Navigation failed", zap.String("url", url), zap.Error(err))
		return false
	}

	selectors := append(append([]string{}, readySelectors...), "body")

	deadline := time.Now().Add(s.cfg.Waits.NavigationTimeout)
	for time.Now().Before(deadline) {
		for _, sel := range selectors {
			present, err := s.Exists(ctx, sel)
			if err != nil {
				// Tab gone or context canceled; no point polling further.
				s.logger.Warn("Page readiness poll failed", zap.Error(err))
				return false
			}
			if present {
				s.logger.Debug("Page ready", zap.String("selector", sel))
				return true
			}
		}
		select {
		case <-time.After(s.cfg.Waits.SelectorPollInterval):
		case <-ctx.Done():
			return false
		}
	}

	s.logger.Warn("No ready selector appeared within timeout", zap.String("url", url))
	return false
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Exists reports whether any element matches the CSS selector.
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var present bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", sel)
	if err := s.run(ctx, chromedp.Evaluate(expr, &present)); err != nil {
		return false, err
	}
	return present, nil
}

// Text returns the trimmed text content of the first element matching the
// selector. A missing element is an error so callers can treat the field as
// absent.
func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var text string
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) { throw new Error("no element matches selector"); }
		return el.innerText.trim();
	})()`, sel)
	if err := s.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("text lookup %q: %w", sel, err)
	}
	return text, nil
}

// Texts returns the trimmed text content of every element matching the
// selector, in DOM order.
func (s *Session) Texts(ctx context.Context, sel string) ([]string, error) {
	var texts []string
	expr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q), el => el.innerText.trim())`, sel)
	if err := s.run(ctx, chromedp.Evaluate(expr, &texts)); err != nil {
		return nil, fmt.Errorf("texts lookup %q: %w", sel, err)
	}
	return texts, nil
}

// Evaluate runs a JavaScript expression in the page and unmarshals the
// result into out (pass nil to discard the result).
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		var discard any
		return s.run(ctx, chromedp.Evaluate(expr, &discard))
	}
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Click performs a semantic click on the first element matching the selector.
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

// SendKeys types text into the first element matching the selector.
func (s *Session) SendKeys(ctx context.Context, sel, text string) error {
	return s.run(ctx, chromedp.SendKeys(sel, text, chromedp.ByQuery))
}

// SetUploadFiles attaches local files to a file input element.
func (s *Session) SetUploadFiles(ctx context.Context, sel string, paths []string) error {
	return s.run(ctx, chromedp.SetUploadFiles(sel, paths, chromedp.ByQuery))
}

// ElementCenter resolves the viewport coordinates of the center of the first
// element matching the selector, via its CDP box model.
func (s *Session) ElementCenter(ctx context.Context, sel string) (x, y float64, err error) {
	var box *cdpdom.BoxModel
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, err := cdpdom.GetDocument().Do(ctx)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		nodeID, err := cdpdom.QuerySelector(doc.NodeID, sel).Do(ctx)
		if err != nil {
			return fmt.Errorf("query %q: %w", sel, err)
		}
		if nodeID == 0 {
			return fmt.Errorf("no element matches selector %q", sel)
		}
		box, err = cdpdom.GetBoxModel().WithNodeID(nodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return 0, 0, err
	}
	if box == nil || len(box.Content) < 8 {
		return 0, 0, fmt.Errorf("element %q has no box model", sel)
	}
	// Content is a quad (x1 y1 x2 y2 x3 y3 x4 y4); the center is the average
	// of opposite corners.
	x = (box.Content[0] + box.Content[4]) / 2
	y = (box.Content[1] + box.Content[5]) / 2
	return x, y, nil
}

// DispatchPointerClick dispatches a raw pressed/released pair at the given
// viewport coordinates. The charting widget on the target site does not
// react to semantic clicks, only to low-level pointer events at real
// coordinates.
func (s *Session) DispatchPointerClick(ctx context.Context, x, y float64) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return fmt.Errorf("pointer down at (%.0f,%.0f): %w", x, y, err)
		}
		if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return fmt.Errorf("pointer up at (%.0f,%.0f): %w", x, y, err)
		}
		return nil
	}))
}

// ContentSize returns the full document dimensions from the layout metrics,
// which may exceed the viewport.
func (s *Session) ContentSize(ctx context.Context) (width, height float64, err error) {
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, cssContentSize, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssContentSize == nil {
			return fmt.Errorf("layout metrics returned no content size")
		}
		width = cssContentSize.Width
		height = cssContentSize.Height
		return nil
	}))
	return width, height, err
}

// CaptureClip captures the document clipped to the given dimensions from the
// origin, bypassing the viewport limit. This is the protocol-level full-page
// strategy.
func (s *Session) CaptureClip(ctx context.Context, width, height float64) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithCaptureBeyondViewport(true).
			WithFromSurface(true).
			WithClip(&page.Viewport{
				X:      0,
				Y:      0,
				Width:  width,
				Height: height,
				Scale:  1,
			})
		params = withFormat(params, s.cfg.Screenshot)
		data, err := params.Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// CaptureViewport captures the current viewport at the current scroll
// position.
func (s *Session) CaptureViewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// CaptureElement captures the bounding region of the first element matching
// the selector.
func (s *Session) CaptureElement(ctx context.Context, sel string) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(sel, &buf, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Sleep pauses for the given settle duration, respecting cancellation.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

// Close releases the tab. Safe to call more than once; the collector defers
// it on every exit path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		s.cancel()
	})
}

// withFormat applies the configured screenshot format and, for jpeg, quality.
func withFormat(params *page.CaptureScreenshotParams, cfg config.ScreenshotConfig) *page.CaptureScreenshotParams {
	if cfg.Format == "jpeg" {
		return params.
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(cfg.Quality))
	}
	return params.WithFormat(page.CaptureScreenshotFormatPng)
}

// combineContext creates a context canceled when either input context is
// canceled; chromedp requires the tab context as the parent.
func combineContext(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-callerCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
