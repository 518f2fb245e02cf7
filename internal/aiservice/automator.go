// File: internal/aiservice/automator.go

// Package aiservice relays a composed prompt and its screenshot attachments
// into the chat-based AI web front-ends. The front-ends require an already
// signed-in browser profile; everything here is best-effort on top of that.
package aiservice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockscope/internal/config"
)

// Service identifies one supported chat front-end. The set is closed;
// configuration for unknown services is rejected at load time.
type Service string

const (
	ServiceChatGPT Service = "chatgpt"
	ServiceClaude  Service = "claude"
	ServiceGemini  Service = "gemini"
)

// Target pairs a service with its resolved configuration.
type Target struct {
	Service Service
	URL     string
}

// EnabledTargets lists the services switched on in the configuration, in a
// fixed order.
func EnabledTargets(cfg config.AIServicesConfig) []Target {
	var targets []Target
	if cfg.ChatGPT.Enabled {
		targets = append(targets, Target{ServiceChatGPT, cfg.ChatGPT.URL})
	}
	if cfg.Claude.Enabled {
		targets = append(targets, Target{ServiceClaude, cfg.Claude.URL})
	}
	if cfg.Gemini.Enabled {
		targets = append(targets, Target{ServiceGemini, cfg.Gemini.URL})
	}
	return targets
}

// UploadResult reports how one relay attempt concluded. A failed relay never
// aborts the surrounding loop; remaining services are still attempted.
type UploadResult struct {
	Service   Service
	Submitted bool
	Err       error
}

// Browser is the session surface the automator drives.
type Browser interface {
	Navigate(ctx context.Context, url string, readySelectors ...string) bool
	Exists(ctx context.Context, sel string) (bool, error)
	SendKeys(ctx context.Context, sel, text string) error
	SetUploadFiles(ctx context.Context, sel string, paths []string) error
	Click(ctx context.Context, sel string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Front-end input selectors, tried in order. These drift with the vendors'
// UI releases the same way the portal selectors do.
var (
	promptCandidates = []string{
		"#prompt-textarea",
		`div[contenteditable="true"]`,
		"textarea",
	}
	attachmentCandidates = []string{
		`input[type="file"]`,
	}
	submitCandidates = []string{
		`button[data-testid="send-button"]`,
		`button[aria-label*="Send"]`,
		`button[aria-label*="보내기"]`,
		`button[type="submit"]`,
	}
)

// Automator relays prompts into the chat front-ends over one browser
// session.
type Automator struct {
	browser Browser
	waits   config.WaitsConfig
	logger  *zap.Logger
}

// NewAutomator constructs an automator bound to one session.
func NewAutomator(browser Browser, cfg *config.Config, logger *zap.Logger) *Automator {
	return &Automator{
		browser: browser,
		waits:   cfg.Waits,
		logger:  logger.Named("aiservice"),
	}
}

// UploadAll relays the prompt and images to every target in order, one
// result per target.
func (a *Automator) UploadAll(ctx context.Context, targets []Target, prompt string, images []string) []UploadResult {
	results := make([]UploadResult, 0, len(targets))
	for _, target := range targets {
		result := a.Upload(ctx, target, prompt, images)
		if result.Err != nil {
			a.logger.Warn("Relay failed",
				zap.String("service", string(result.Service)), zap.Error(result.Err))
		} else {
			a.logger.Info("Relay complete", zap.String("service", string(result.Service)))
		}
		results = append(results, result)
	}
	return results
}

// Upload navigates to one front-end, attaches the images, types the prompt
// and presses send.
func (a *Automator) Upload(ctx context.Context, target Target, prompt string, images []string) UploadResult {
	result := UploadResult{Service: target.Service}

	if !a.browser.Navigate(ctx, target.URL, promptCandidates...) {
		result.Err = fmt.Errorf("front-end %s did not load", target.Service)
		return result
	}
	if err := a.browser.Sleep(ctx, a.waits.PageSettle); err != nil {
		result.Err = err
		return result
	}

	if len(images) > 0 {
		if err := a.attach(ctx, images); err != nil {
			// Text-only analysis still has value; degrade rather than abort.
			a.logger.Warn("Attachment upload failed, sending text only",
				zap.String("service", string(target.Service)), zap.Error(err))
		} else if err := a.browser.Sleep(ctx, a.waits.PageSettle); err != nil {
			result.Err = err
			return result
		}
	}

	editor, err := a.firstPresent(ctx, promptCandidates)
	if err != nil {
		result.Err = fmt.Errorf("no prompt editor found: %w", err)
		return result
	}
	if err := a.browser.SendKeys(ctx, editor, prompt); err != nil {
		result.Err = fmt.Errorf("failed to type prompt: %w", err)
		return result
	}

	submit, err := a.firstPresent(ctx, submitCandidates)
	if err != nil {
		result.Err = fmt.Errorf("no submit control found: %w", err)
		return result
	}
	if err := a.browser.Click(ctx, submit); err != nil {
		result.Err = fmt.Errorf("failed to submit: %w", err)
		return result
	}

	result.Submitted = true
	return result
}

func (a *Automator) attach(ctx context.Context, images []string) error {
	input, err := a.firstPresent(ctx, attachmentCandidates)
	if err != nil {
		return fmt.Errorf("no file input found: %w", err)
	}
	return a.browser.SetUploadFiles(ctx, input, images)
}

func (a *Automator) firstPresent(ctx context.Context, candidates []string) (string, error) {
	for _, sel := range candidates {
		present, err := a.browser.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if present {
			return sel, nil
		}
	}
	return "", fmt.Errorf("none of %d selector candidates matched", len(candidates))
}
