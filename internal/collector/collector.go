// File: internal/collector/collector.go

// Package collector implements the multi-stage scrape of one stock code:
// a fixed sequence of page visits driving DOM extraction and screenshot
// capture, merged into a single report that survives partial failure of any
// individual stage.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"stockscope/internal/config"
)

// ErrOverviewUnreachable is returned when the overview page never becomes
// ready. Without it no identity fields exist, so this is the one
// all-or-nothing navigation of a run.
var ErrOverviewUnreachable = errors.New("overview page did not load")

// Session is the full browser surface one collection run drives. The
// concrete implementation is *browser.Session.
type Session interface {
	Page
	CaptureBackend
	ChartPage

	Navigate(ctx context.Context, url string, readySelectors ...string) bool
	Close()
}

// SessionFactory opens a fresh browser session for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// Extraction limits. The portal renders more rows than these; everything
// past the limit is stale context the analysis prompt does not need.
const (
	newsLimit = 20
	flowLimit = 10
)

// overviewReadySelectors are polled most specific first after navigating to
// the overview page.
var overviewReadySelectors = []string{".chart_area", "#chart", ".graph_wrap", ".today"}

// analysisFrameJS locates the company-analysis iframe by its structural
// position, measures the embedded document and stretches the frame to that
// height in the host page so a host-context full-page capture includes the
// whole report. Returns 0 when the frame or its document is unreachable.
const analysisFrameJS = `
(() => {
	let frame = document.evaluate(
		'/html/body/div[3]/div[2]/div[2]/div[1]/div[3]/iframe',
		document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!frame) {
		frame = document.querySelector('iframe[name="coinfo"], #coinfo_cp');
	}
	if (!frame) { return 0; }
	let height = 0;
	try {
		height = frame.contentDocument.body.scrollHeight;
	} catch (e) {
		return 0;
	}
	if (height > 0) {
		frame.style.height = height + 'px';
		frame.style.minHeight = height + 'px';
	}
	return height;
})()`

// Collector sequences one collection run end to end. One run owns one
// browser session exclusively and releases it on every exit path.
type Collector struct {
	newSession SessionFactory
	cfg        *config.Config
	logger     *zap.Logger
}

// New constructs a collector.
func New(newSession SessionFactory, cfg *config.Config, logger *zap.Logger) *Collector {
	return &Collector{
		newSession: newSession,
		cfg:        cfg,
		logger:     logger.Named("collector"),
	}
}

// Collect runs the full scrape sequence for one stock code and returns the
// merged report. Only a session-open failure or an unreachable overview page
// aborts the run; every later stage degrades into its status field instead.
func (c *Collector) Collect(ctx context.Context, code string) (*StockReport, error) {
	start := time.Now()
	report := NewStockReport(code, start)
	logger := c.logger.With(zap.String("code", code))

	runDir := filepath.Join(c.cfg.Screenshot.SavePath, RunDirName(code, start))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	sess, err := c.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer sess.Close()

	if !sess.Navigate(ctx, c.cfg.Finance.StockURL(config.PageOverview, code), overviewReadySelectors...) {
		return nil, ErrOverviewUnreachable
	}

	extractor := NewExtractor(sess, logger)
	capturer := NewCapturer(sess, logger)
	ext := c.cfg.Screenshot.Extension()

	report.BasicInfo, report.Statuses.BasicInfo = extractor.ExtractBasicInfo(ctx)
	report.Themes, report.Statuses.Themes = extractor.ExtractThemes(ctx)
	if financials, status := extractor.FinancialRows(ctx); status != StatusMissing {
		report.Financials = financials
	}
	logger.Info("Overview stage complete",
		zap.String("name", report.BasicInfo.Name),
		zap.String("status", report.Statuses.BasicInfo.String()))

	report.Statuses.Analysis = c.captureAnalysis(ctx, sess, capturer, report, runDir, ext, logger)

	report.Statuses.News = c.collectNews(ctx, sess, extractor, capturer, report, runDir, ext, logger)

	report.Statuses.Flows = c.collectFlows(ctx, sess, extractor, capturer, report, runDir, ext, logger)

	report.Statuses.Charts = c.collectCharts(ctx, sess, capturer, report, runDir, logger)

	logger.Info("Collection run complete",
		zap.Int("artifacts", len(report.Artifacts)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

// captureAnalysis visits the company-analysis page, stretches its embedded
// report frame to full height and captures the host page. A failed frame
// lookup degrades to a plain full-page capture.
func (c *Collector) captureAnalysis(
	ctx context.Context,
	sess Session,
	capturer *Capturer,
	report *StockReport,
	runDir, ext string,
	logger *zap.Logger,
) Status {
	if !sess.Navigate(ctx, c.cfg.Finance.StockURL(config.PageAnalysis, report.Code)) {
		logger.Warn("Analysis page did not load, skipping stage")
		return StatusMissing
	}
	if err := sess.Sleep(ctx, c.cfg.Waits.PageSettle); err != nil {
		return StatusMissing
	}

	var frameHeight float64
	if err := sess.Evaluate(ctx, analysisFrameJS, &frameHeight); err != nil {
		logger.Warn("Analysis frame lookup failed", zap.Error(err))
	}
	if frameHeight > 0 {
		logger.Info("Analysis frame resized", zap.Float64("height", frameHeight))
		if err := sess.Sleep(ctx, c.cfg.Waits.FrameResizeSettle); err != nil {
			return StatusMissing
		}
	}

	path := filepath.Join(runDir, ArtifactAnalysis+ext)
	strategy := capturer.FullPage(ctx, path)
	if strategy == StrategyNone {
		return StatusMissing
	}
	report.AddArtifact(ArtifactAnalysis, path)
	if frameHeight > 0 && strategy == StrategyProtocol {
		return StatusOK
	}
	return StatusDegraded
}

func (c *Collector) collectNews(
	ctx context.Context,
	sess Session,
	extractor *Extractor,
	capturer *Capturer,
	report *StockReport,
	runDir, ext string,
	logger *zap.Logger,
) Status {
	if !sess.Navigate(ctx, c.cfg.Finance.StockURL(config.PageNews, report.Code), ".newsList", ".tb_cont") {
		logger.Warn("News page did not load, skipping stage")
		return StatusMissing
	}

	path := filepath.Join(runDir, ArtifactNews+ext)
	if capturer.FullPage(ctx, path) != StrategyNone {
		report.AddArtifact(ArtifactNews, path)
	}

	items, status := extractor.ExtractNews(ctx, newsLimit)
	report.News = items
	return status
}

func (c *Collector) collectFlows(
	ctx context.Context,
	sess Session,
	extractor *Extractor,
	capturer *Capturer,
	report *StockReport,
	runDir, ext string,
	logger *zap.Logger,
) Status {
	if !sess.Navigate(ctx, c.cfg.Finance.StockURL(config.PageFlows, report.Code), ".type2", ".tb_cont") {
		logger.Warn("Flows page did not load, skipping stage")
		return StatusMissing
	}

	path := filepath.Join(runDir, ArtifactFlows+ext)
	if capturer.FullPage(ctx, path) != StrategyNone {
		report.AddArtifact(ArtifactFlows, path)
	}

	rows, status := extractor.ExtractFlows(ctx, flowLimit)
	report.Flows = rows
	return status
}

func (c *Collector) collectCharts(
	ctx context.Context,
	sess Session,
	capturer *Capturer,
	report *StockReport,
	runDir string,
	logger *zap.Logger,
) Status {
	if !sess.Navigate(ctx, c.cfg.Finance.StockURL(config.PageCharts, report.Code), "cq-context", "#chart") {
		logger.Warn("Charts page did not load, skipping stage")
		return StatusMissing
	}

	charts := NewChartCapturer(sess, capturer, c.cfg, logger)
	artifacts, status := charts.Capture(ctx, runDir)
	for kind, path := range artifacts {
		report.AddArtifact(kind, path)
	}
	return status
}
