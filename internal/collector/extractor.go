// File: internal/collector/extractor.go
package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Page is the read side of a browser session that the extractor needs. The
// concrete implementation is *browser.Session; tests supply a scripted fake.
type Page interface {
	Title(ctx context.Context) (string, error)
	Text(ctx context.Context, sel string) (string, error)
	Texts(ctx context.Context, sel string) ([]string, error)
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	Evaluate(ctx context.Context, expr string, out any) error
}

// Overview page selectors. These track the live portal markup and are the
// part of the system expected to drift; each one is queried independently so
// a single stale selector degrades one field, not the record.
const (
	selCompanyName  = ".wrap_company h2 a"
	selCodeLabel    = ".wrap_company .description .code"
	selCurrentPrice = ".today .no_today em"
	selDayChange    = ".today .no_exday em"
	selVolume       = ".rate_info table.no_info td.rgt em"
	selMarketCap    = "#_market_sum"

	selSummaryOpen  = ".summary a"
	selSummaryBody  = ".summary_info p"
	selSummaryClose = ".summary_lyr .btn_area_top a"
)

// Extractor reads structured fields from an already-navigated page.
type Extractor struct {
	page   Page
	logger *zap.Logger
}

// NewExtractor constructs an extractor bound to one page.
func NewExtractor(page Page, logger *zap.Logger) *Extractor {
	return &Extractor{page: page, logger: logger.Named("extractor")}
}

// ExtractBasicInfo reads the identity and quote fields from the overview
// page. Every lookup is independent; the returned status is OK only when all
// primary fields resolved, Degraded when some did, Missing when none did.
func (e *Extractor) ExtractBasicInfo(ctx context.Context) (BasicInfo, Status) {
	var info BasicInfo
	attempted, resolved := 0, 0

	read := func(sel string, normalize bool) (string, bool) {
		attempted++
		text, err := e.page.Text(ctx, sel)
		if err != nil {
			e.logger.Warn("Basic info field not found", zap.String("selector", sel), zap.Error(err))
			return "", false
		}
		if normalize {
			text = strings.ReplaceAll(text, "\n", "")
		}
		resolved++
		return text, true
	}

	info.Name, _ = read(selCompanyName, false)
	info.CodeLabel, _ = read(selCodeLabel, false)
	info.Price, _ = read(selCurrentPrice, true)
	info.Volume, _ = read(selVolume, true)
	info.MarketCap, _ = read(selMarketCap, true)

	// The change block carries two figures: absolute change and percentage.
	attempted++
	if changes, err := e.page.Texts(ctx, selDayChange); err != nil {
		e.logger.Warn("Change fields not found", zap.String("selector", selDayChange), zap.Error(err))
	} else {
		if len(changes) > 0 {
			info.Change = strings.ReplaceAll(changes[0], "\n", "")
		}
		if len(changes) > 1 {
			info.ChangeRate = strings.ReplaceAll(changes[1], "\n", "")
		}
		if len(changes) > 0 {
			resolved++
		}
	}

	info.Summary = e.extractSummary(ctx)

	// Last-resort name from the document title, which carries the company
	// name before a separator.
	if info.Name == "" {
		if title, err := e.page.Title(ctx); err == nil {
			if name := nameFromTitle(title); name != "" {
				info.Name = name
				e.logger.Info("Company name recovered from page title", zap.String("name", name))
			}
		}
	}

	switch {
	case resolved == 0 && info.Name == "":
		return info, StatusMissing
	case resolved < attempted:
		return info, StatusDegraded
	default:
		return info, StatusOK
	}
}

// extractSummary opens the company summary popup, reads its paragraphs and
// closes it again. Entirely best-effort; the popup is decorative on some
// listings.
func (e *Extractor) extractSummary(ctx context.Context) string {
	if err := e.page.Click(ctx, selSummaryOpen); err != nil {
		e.logger.Debug("Summary popup not available", zap.Error(err))
		return ""
	}
	paragraphs, err := e.page.Texts(ctx, selSummaryBody)
	if err != nil {
		e.logger.Debug("Summary body not found", zap.Error(err))
		return ""
	}
	if err := e.page.Click(ctx, selSummaryClose); err != nil {
		e.logger.Debug("Summary popup close failed", zap.Error(err))
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n"))
}

func nameFromTitle(title string) string {
	if idx := strings.IndexAny(title, ":|"); idx > 0 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

// newsItemJS pulls the news listing into a flat array in one round trip.
// Per-item selector fallbacks live in the page because the listing uses two
// markup generations depending on the section.
const newsItemJS = `
Array.from(document.querySelectorAll('.newsList li, .tb_cont tbody tr')).map(item => {
	const link = item.querySelector('a');
	const date = item.querySelector('.date, .wdate');
	const press = item.querySelector('.press, .info_policy, .info');
	return {
		title:  link ? (link.getAttribute('title') || link.innerText).trim() : '',
		date:   date ? date.innerText.trim() : '',
		source: press ? press.innerText.trim() : '',
	};
})`

// ExtractNews reads up to limit news items in DOM order. Items without a
// title are skipped rather than retried.
func (e *Extractor) ExtractNews(ctx context.Context, limit int) ([]NewsItem, Status) {
	var raw []NewsItem
	if err := e.page.Evaluate(ctx, newsItemJS, &raw); err != nil {
		e.logger.Warn("News extraction failed", zap.Error(err))
		return nil, StatusMissing
	}

	items := make([]NewsItem, 0, limit)
	skipped := 0
	for _, item := range raw {
		if len(items) >= limit {
			break
		}
		if item.Title == "" {
			skipped++
			continue
		}
		items = append(items, item)
	}

	e.logger.Info("News extracted", zap.Int("count", len(items)), zap.Int("skipped", skipped))
	switch {
	case len(items) == 0:
		return nil, StatusMissing
	case skipped > 0:
		return items, StatusDegraded
	default:
		return items, StatusOK
	}
}

// flowRowsJS reads the trading-flow table as raw cell arrays. The first row
// is the header; filtering happens on the Go side so it stays testable.
const flowRowsJS = `
Array.from(document.querySelectorAll('.type2 tr, .tb_cont table tr')).map(row =>
	Array.from(row.querySelectorAll('td, th'), cell => cell.innerText.trim())
)`

// minFlowCells is the cell count a row needs to be considered well formed.
const minFlowCells = 6

// ExtractFlows reads up to limit data rows from the investor flow table,
// skipping the header row and any row with fewer than the required cells.
func (e *Extractor) ExtractFlows(ctx context.Context, limit int) ([]FlowRow, Status) {
	var rows [][]string
	if err := e.page.Evaluate(ctx, flowRowsJS, &rows); err != nil {
		e.logger.Warn("Flow extraction failed", zap.Error(err))
		return nil, StatusMissing
	}

	flows := make([]FlowRow, 0, limit)
	discarded := 0
	for i, cells := range rows {
		if i == 0 {
			continue // header
		}
		if len(flows) >= limit {
			break
		}
		if len(cells) < minFlowCells || cells[0] == "" {
			discarded++
			continue
		}
		flows = append(flows, FlowRow{
			Date:             cells[0],
			ForeignBuy:       cells[1],
			ForeignSell:      cells[2],
			InstitutionBuy:   cells[3],
			InstitutionSell:  cells[4],
			IndividualVolume: cells[5],
		})
	}

	e.logger.Info("Flows extracted", zap.Int("count", len(flows)), zap.Int("discarded", discarded))
	if len(flows) == 0 {
		return nil, StatusMissing
	}
	return flows, StatusOK
}

const selThemeLinks = ".group_theme a"

// ExtractThemes reads the theme tag links, deduplicating by text.
func (e *Extractor) ExtractThemes(ctx context.Context) ([]string, Status) {
	texts, err := e.page.Texts(ctx, selThemeLinks)
	if err != nil {
		e.logger.Warn("Theme extraction failed", zap.Error(err))
		return nil, StatusMissing
	}

	seen := make(map[string]bool, len(texts))
	themes := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		themes = append(themes, t)
	}

	if len(themes) == 0 {
		return nil, StatusMissing
	}
	e.logger.Info("Themes extracted", zap.Strings("themes", themes))
	return themes, StatusOK
}

// financialRowsJS reads the earnings summary table on the overview page as
// raw cell arrays, one per row, label first.
const financialRowsJS = `
Array.from(document.querySelectorAll('.tb_type1_ifrs tr')).map(row =>
	Array.from(row.querySelectorAll('th, td'), cell => cell.innerText.trim())
)`

// FinancialRows reads the financial summary table into label/period-value
// pairs. Rows without a label or without any value cells are skipped.
func (e *Extractor) FinancialRows(ctx context.Context) (map[string][]string, Status) {
	var rows [][]string
	if err := e.page.Evaluate(ctx, financialRowsJS, &rows); err != nil {
		e.logger.Warn("Financial extraction failed", zap.Error(err))
		return nil, StatusMissing
	}

	financials := make(map[string][]string, len(rows))
	for _, cells := range rows {
		if len(cells) < 2 || cells[0] == "" {
			continue
		}
		financials[cells[0]] = cells[1:]
	}

	if len(financials) == 0 {
		return nil, StatusMissing
	}
	e.logger.Info("Financials extracted", zap.Int("rows", len(financials)))
	return financials, StatusOK
}
