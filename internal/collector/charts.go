// File: internal/collector/charts.go
package collector

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"stockscope/internal/config"
)

// ChartPage is the interaction side of a session the chart routine needs on
// top of capture. The charting widget ignores semantic clicks, so interval
// and study controls are driven by raw pointer events at computed
// coordinates.
type ChartPage interface {
	Exists(ctx context.Context, sel string) (bool, error)
	ElementCenter(ctx context.Context, sel string) (x, y float64, err error)
	DispatchPointerClick(ctx context.Context, x, y float64) error
	Sleep(ctx context.Context, d time.Duration) error
}

// chartRegionCandidates are tried in order when capturing the rendered
// chart; a full-page capture is the final fallback.
var chartRegionCandidates = []string{"cq-context", ".chart_area", "#chart"}

// studiesMenuSelector opens the technical-study menu of the charting widget.
const studiesMenuSelector = "cq-menu.ciq-menu.ciq-studies"

// studyItems are the overlay entries toggled before capturing, addressed by
// their position in the studies menu.
var studyItems = []struct {
	name     string
	selector string
}{
	{"MACD", "cq-menu.ciq-menu.ciq-studies cq-item:nth-of-type(9)"},
	{"RSI", "cq-menu.ciq-menu.ciq-studies cq-item:nth-of-type(12)"},
	{"Stochastics", "cq-menu.ciq-menu.ciq-studies cq-item:nth-of-type(15)"},
}

// chartIntervals are captured in order. The selector excludes the already
// selected control; when no candidate resolves the interval is assumed
// active and the capture proceeds without a click.
var chartIntervals = []struct {
	kind      string
	selectors []string
}{
	{ArtifactChartMonth, []string{"div.month:not(.selected)"}},
	{ArtifactChartWeek, []string{"div.week:not(.selected)"}},
	{ArtifactChartDay, []string{"div.day:not(.selected)"}},
	{ArtifactChartHour, []string{`cq-item[interval="60"]`}},
}

// ChartCapturer walks the advanced-chart page through its interval controls
// and captures one artifact per interval.
type ChartCapturer struct {
	page     ChartPage
	capturer *Capturer
	waits    config.WaitsConfig
	ext      string
	logger   *zap.Logger
}

// NewChartCapturer constructs the chart routine for one session.
func NewChartCapturer(page ChartPage, capturer *Capturer, cfg *config.Config, logger *zap.Logger) *ChartCapturer {
	return &ChartCapturer{
		page:     page,
		capturer: capturer,
		waits:    cfg.Waits,
		ext:      cfg.Screenshot.Extension(),
		logger:   logger.Named("charts"),
	}
}

// Capture assumes the chart page is already loaded. It waits out the chart
// library's render, toggles the study overlays best-effort, then cycles the
// intervals and captures each. Returns the artifacts written and an overall
// status: OK when all intervals captured, Degraded when some did, Missing
// when none did.
func (cc *ChartCapturer) Capture(ctx context.Context, dir string) (map[string]string, Status) {
	// No render-complete event is observable from the widget; a fixed settle
	// delay is the only available synchronization.
	if err := cc.page.Sleep(ctx, cc.waits.ChartRenderSettle); err != nil {
		cc.logger.Warn("Chart settle interrupted", zap.Error(err))
		return nil, StatusMissing
	}

	cc.enableStudies(ctx)

	artifacts := make(map[string]string, len(chartIntervals))
	for _, interval := range chartIntervals {
		path := filepath.Join(dir, interval.kind+cc.ext)
		if cc.captureInterval(ctx, interval.kind, interval.selectors, path) {
			artifacts[interval.kind] = path
		}
	}

	switch {
	case len(artifacts) == 0:
		return nil, StatusMissing
	case len(artifacts) < len(chartIntervals):
		return artifacts, StatusDegraded
	default:
		return artifacts, StatusOK
	}
}

// enableStudies toggles the overlay studies through the widget menu. Every
// step is best-effort; a missing menu leaves the chart bare but capturable.
func (cc *ChartCapturer) enableStudies(ctx context.Context) {
	for _, study := range studyItems {
		if !cc.pointerClick(ctx, studiesMenuSelector) {
			cc.logger.Warn("Studies menu not reachable, skipping overlays")
			return
		}
		if err := cc.page.Sleep(ctx, cc.waits.IndicatorSettle); err != nil {
			return
		}
		if cc.pointerClick(ctx, study.selector) {
			cc.logger.Info("Study overlay enabled", zap.String("study", study.name))
		} else {
			cc.logger.Warn("Study overlay not found", zap.String("study", study.name))
		}
		if err := cc.page.Sleep(ctx, cc.waits.IndicatorSettle); err != nil {
			return
		}
	}
}

// captureInterval switches to the interval (when a control resolves) and
// captures the chart region. Reports whether an artifact was written.
func (cc *ChartCapturer) captureInterval(ctx context.Context, kind string, selectors []string, path string) bool {
	clicked := false
	for _, sel := range selectors {
		if cc.pointerClick(ctx, sel) {
			clicked = true
			break
		}
	}
	if clicked {
		if err := cc.page.Sleep(ctx, cc.waits.IntervalSwitchSettle); err != nil {
			return false
		}
	} else {
		cc.logger.Debug("Interval control not found, assuming already active",
			zap.String("interval", kind))
	}

	strategy := cc.capturer.Element(ctx, path, chartRegionCandidates...)
	if strategy == StrategyNone {
		cc.logger.Warn("Chart capture failed", zap.String("interval", kind))
		return false
	}
	cc.logger.Info("Chart captured",
		zap.String("interval", kind), zap.String("strategy", strategy.String()))
	return true
}

// pointerClick resolves the element center and dispatches a raw pointer
// press/release pair there. Reports whether the click was dispatched.
func (cc *ChartCapturer) pointerClick(ctx context.Context, sel string) bool {
	present, err := cc.page.Exists(ctx, sel)
	if err != nil || !present {
		return false
	}
	x, y, err := cc.page.ElementCenter(ctx, sel)
	if err != nil {
		cc.logger.Debug("Element center not resolvable", zap.String("selector", sel), zap.Error(err))
		return false
	}
	if err := cc.page.DispatchPointerClick(ctx, x, y); err != nil {
		cc.logger.Debug("Pointer dispatch failed", zap.String("selector", sel), zap.Error(err))
		return false
	}
	return true
}
