// File: internal/aiservice/automator_test.go
package aiservice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockscope/internal/config"
)

type fakeBrowser struct {
	loaded   bool
	present  map[string]bool
	typed    map[string]string
	uploaded map[string][]string
	clicked  []string

	sendKeysErr error
	uploadErr   error
}

func newFakeBrowser(present ...string) *fakeBrowser {
	f := &fakeBrowser{
		loaded:   true,
		present:  make(map[string]bool),
		typed:    make(map[string]string),
		uploaded: make(map[string][]string),
	}
	for _, sel := range present {
		f.present[sel] = true
	}
	return f
}

func (f *fakeBrowser) Navigate(_ context.Context, url string, _ ...string) bool { return f.loaded }

func (f *fakeBrowser) Exists(_ context.Context, sel string) (bool, error) {
	return f.present[sel], nil
}

func (f *fakeBrowser) SendKeys(_ context.Context, sel, text string) error {
	if f.sendKeysErr != nil {
		return f.sendKeysErr
	}
	f.typed[sel] = text
	return nil
}

func (f *fakeBrowser) SetUploadFiles(_ context.Context, sel string, paths []string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[sel] = paths
	return nil
}

func (f *fakeBrowser) Click(_ context.Context, sel string) error {
	f.clicked = append(f.clicked, sel)
	return nil
}

func (f *fakeBrowser) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testAutomator(t *testing.T, browser Browser) *Automator {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Waits.PageSettle = 0
	return NewAutomator(browser, cfg, zaptest.NewLogger(t))
}

func TestUploadFullFlow(t *testing.T) {
	browser := newFakeBrowser(
		"#prompt-textarea",
		`input[type="file"]`,
		`button[data-testid="send-button"]`,
	)
	automator := testAutomator(t, browser)

	target := Target{ServiceChatGPT, "https://chat.openai.com"}
	result := automator.Upload(context.Background(), target, "analyze this", []string{"/tmp/a.png", "/tmp/b.png"})

	require.NoError(t, result.Err)
	assert.True(t, result.Submitted)
	assert.Equal(t, "analyze this", browser.typed["#prompt-textarea"])
	assert.Equal(t, []string{"/tmp/a.png", "/tmp/b.png"}, browser.uploaded[`input[type="file"]`])
	assert.Equal(t, []string{`button[data-testid="send-button"]`}, browser.clicked)
}

func TestUploadFrontEndNotLoaded(t *testing.T) {
	browser := newFakeBrowser()
	browser.loaded = false
	automator := testAutomator(t, browser)

	result := automator.Upload(context.Background(), Target{ServiceClaude, "https://claude.ai"}, "p", nil)
	require.Error(t, result.Err)
	assert.False(t, result.Submitted)
}

func TestUploadNoEditorFound(t *testing.T) {
	browser := newFakeBrowser(`button[type="submit"]`)
	automator := testAutomator(t, browser)

	result := automator.Upload(context.Background(), Target{ServiceGemini, "https://gemini.google.com"}, "p", nil)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "prompt editor")
}

func TestUploadAttachmentFailureDegradesToTextOnly(t *testing.T) {
	browser := newFakeBrowser(
		`div[contenteditable="true"]`,
		`button[type="submit"]`,
	)
	// No file input present; the relay still sends the text.
	automator := testAutomator(t, browser)

	result := automator.Upload(context.Background(), Target{ServiceChatGPT, "u"}, "text only", []string{"/tmp/a.png"})
	require.NoError(t, result.Err)
	assert.True(t, result.Submitted)
	assert.Equal(t, "text only", browser.typed[`div[contenteditable="true"]`])
}

func TestUploadAllContinuesPastFailures(t *testing.T) {
	browser := newFakeBrowser("#prompt-textarea", `button[type="submit"]`)
	browser.sendKeysErr = fmt.Errorf("editor rejected input")
	automator := testAutomator(t, browser)

	targets := []Target{
		{ServiceChatGPT, "u1"},
		{ServiceClaude, "u2"},
	}
	results := automator.UploadAll(context.Background(), targets, "p", nil)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, ServiceChatGPT, results[0].Service)
	assert.Equal(t, ServiceClaude, results[1].Service)
}

func TestEnabledTargetsRespectsFlags(t *testing.T) {
	cfg := config.AIServicesConfig{
		ChatGPT: config.AIServiceConfig{URL: "u1", Enabled: true},
		Claude:  config.AIServiceConfig{URL: "u2", Enabled: false},
		Gemini:  config.AIServiceConfig{URL: "u3", Enabled: true},
	}

	targets := EnabledTargets(cfg)
	require.Len(t, targets, 2)
	assert.Equal(t, Target{ServiceChatGPT, "u1"}, targets[0])
	assert.Equal(t, Target{ServiceGemini, "u3"}, targets[1])
}
