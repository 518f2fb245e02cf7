// File: internal/browser/session_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"

	"stockscope/internal/config"
)

func TestCombineContextCancelsOnCaller(t *testing.T) {
	tabCtx := context.Background()
	callerCtx, callerCancel := context.WithCancel(context.Background())

	combined, cancel := combineContext(tabCtx, callerCtx)
	defer cancel()

	callerCancel()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe caller cancellation")
	}
}

func TestCombineContextCancelsOnTab(t *testing.T) {
	tabCtx, tabCancel := context.WithCancel(context.Background())
	combined, cancel := combineContext(tabCtx, context.Background())
	defer cancel()

	tabCancel()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe tab cancellation")
	}
}

func TestWithFormatQualityOnlyForJpeg(t *testing.T) {
	png := withFormat(page.CaptureScreenshot(), config.ScreenshotConfig{Format: "png", Quality: 90})
	assert.Equal(t, page.CaptureScreenshotFormatPng, png.Format)
	assert.Zero(t, png.Quality)

	jpeg := withFormat(page.CaptureScreenshot(), config.ScreenshotConfig{Format: "jpeg", Quality: 80})
	assert.Equal(t, page.CaptureScreenshotFormatJpeg, jpeg.Format)
	assert.EqualValues(t, 80, jpeg.Quality)
}
