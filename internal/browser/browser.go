// File: internal/browser/browser.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"stockscope/internal/browser/stealth"
	"stockscope/internal/config"
)

// Launcher owns the browser process. All session contexts are derived from
// its allocator context. A launch failure is fatal: there is no fallback
// browser, so the caller is expected to abort the process.
type Launcher struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	persona stealth.Persona
}

const launchProbeTimeout = 30 * time.Second

// NewLauncher builds the allocator options from config and starts the
// browser process, verifying it is responsive before returning.
func NewLauncher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Launcher, error) {
	l := &Launcher{
		logger: logger.Named("browser"),
		cfg:    cfg,
		persona: stealth.Persona{
			UserAgent:  cfg.Browser.UserAgent,
			Platform:   "Win32",
			Languages:  []string{"ko-KR", "ko", "en-US", "en"},
			TimezoneID: "Asia/Seoul",
			Locale:     "ko-KR",
			Screen: stealth.ScreenProperties{
				Width:  cfg.Browser.WindowWidth,
				Height: cfg.Browser.WindowHeight,
			},
		},
	}

	if err := l.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return l, nil
}

// launchBrowser prepares allocator options and starts the browser process.
func (l *Launcher) launchBrowser(ctx context.Context) error {
	l.logger.Info("Initializing browser allocator...")

	opts := l.buildAllocatorOptions()

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	l.allocatorCtx = allocCtx
	l.allocatorCancel = cancel

	// Probe the browser with a throwaway tab to confirm it starts and responds.
	probeCtx, cancelProbe := context.WithTimeout(allocCtx, launchProbeTimeout)
	probeCtx, cancelProbeCtx := chromedp.NewContext(probeCtx)
	defer cancelProbeCtx()
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		l.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	l.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the flags for a stealthy, configurable
// browser instance.
func (l *Launcher) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Start with default options, then override the flags that reveal
	// automation. Later Flag options replace earlier ones of the same name.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", l.cfg.Browser.Headless),
		// The Blink feature the target site could use to detect automation
		// (navigator.webdriver).
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", l.cfg.Browser.Headless),
		// The company analysis page hosts a cross-document iframe whose
		// content height must be readable from the host page.
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.WindowSize(int(l.cfg.Browser.WindowWidth), int(l.cfg.Browser.WindowHeight)),
		chromedp.UserAgent(l.persona.UserAgent),
	)

	// Custom arguments from config.yaml.
	for _, arg := range l.cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewSession creates a new tab with the stealth persona applied.
func (l *Launcher) NewSession(ctx context.Context) (*Session, error) {
	return newSession(ctx, l.allocatorCtx, l.cfg, l.persona, l.logger)
}

// Shutdown terminates the browser process.
func (l *Launcher) Shutdown() {
	if l.allocatorCancel != nil {
		l.logger.Info("Shutting down browser process...")
		l.allocatorCancel()
		<-l.allocatorCtx.Done()
	}
}
