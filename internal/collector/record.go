// File: internal/collector/record.go
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status classifies how an extraction or capture step concluded. Steps never
// abort the surrounding run; the status is merged into the report so callers
// can see which parts are trustworthy.
type Status int

const (
	// StatusOK means the step produced everything it was asked for.
	StatusOK Status = iota
	// StatusDegraded means the step produced a partial result (some fields
	// or rows missing, or a fallback path taken).
	StatusDegraded
	// StatusMissing means the step produced nothing usable.
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusMissing:
		return "missing"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalJSON renders the status as its string form in saved reports.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	switch text {
	case "ok":
		*s = StatusOK
	case "degraded":
		*s = StatusDegraded
	case "missing":
		*s = StatusMissing
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// BasicInfo holds the identity and quote fields read from the overview page.
// All values are stored exactly as displayed; no numeric parsing is done.
type BasicInfo struct {
	Name       string `json:"name,omitempty"`
	CodeLabel  string `json:"code_label,omitempty"`
	Price      string `json:"price,omitempty"`
	Change     string `json:"change,omitempty"`
	ChangeRate string `json:"change_rate,omitempty"`
	Volume     string `json:"volume,omitempty"`
	MarketCap  string `json:"market_cap,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// NewsItem is one entry from the news listing.
type NewsItem struct {
	Title  string `json:"title"`
	Date   string `json:"date,omitempty"`
	Source string `json:"source,omitempty"`
}

// FlowRow is one row of the investor trading-flow table.
type FlowRow struct {
	Date             string `json:"date"`
	ForeignBuy       string `json:"foreign_buy"`
	ForeignSell      string `json:"foreign_sell"`
	InstitutionBuy   string `json:"institution_buy"`
	InstitutionSell  string `json:"institution_sell"`
	IndividualVolume string `json:"individual_volume"`
}

// StepStatuses records the outcome of every collection step.
type StepStatuses struct {
	BasicInfo Status `json:"basic_info"`
	Analysis  Status `json:"analysis"`
	News      Status `json:"news"`
	Flows     Status `json:"flows"`
	Themes    Status `json:"themes"`
	Charts    Status `json:"charts"`
}

// StockReport is the aggregate result of one collection run. It is created
// fresh per run and populated step by step; a failed step leaves its section
// empty rather than invalidating the rest.
type StockReport struct {
	Code        string    `json:"code"`
	CollectedAt time.Time `json:"collected_at"`

	BasicInfo BasicInfo  `json:"basic_info"`
	News      []NewsItem `json:"news,omitempty"`
	Flows     []FlowRow  `json:"flows,omitempty"`
	Themes    []string   `json:"themes,omitempty"`

	// Artifacts maps a capture-kind label to the saved image path.
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// Financials holds the earnings summary table, label to period values.
	// Indicators is a reserved extension point, populated empty so
	// downstream consumers have a stable shape.
	Financials map[string][]string `json:"financials"`
	Indicators map[string][]string `json:"indicators"`

	Statuses StepStatuses `json:"statuses"`
}

// NewStockReport initializes an empty report for one target.
func NewStockReport(code string, start time.Time) *StockReport {
	return &StockReport{
		Code:        code,
		CollectedAt: start,
		Artifacts:   make(map[string]string),
		Financials:  make(map[string][]string),
		Indicators:  make(map[string][]string),
	}
}

// AddArtifact records a saved capture under its kind label.
func (r *StockReport) AddArtifact(kind, path string) {
	r.Artifacts[kind] = path
}

// ArtifactPaths returns the saved image paths in a stable, upload-friendly
// order: the analysis capture first, then news, flows and the chart series.
func (r *StockReport) ArtifactPaths() []string {
	order := []string{
		ArtifactAnalysis, ArtifactNews, ArtifactFlows,
		ArtifactChartMonth, ArtifactChartWeek, ArtifactChartDay, ArtifactChartHour,
	}
	paths := make([]string, 0, len(r.Artifacts))
	seen := make(map[string]bool, len(order))
	for _, kind := range order {
		if p, ok := r.Artifacts[kind]; ok {
			paths = append(paths, p)
			seen[kind] = true
		}
	}
	for kind, p := range r.Artifacts {
		if !seen[kind] {
			paths = append(paths, p)
		}
	}
	return paths
}

// Capture-kind labels used in the artifact map.
const (
	ArtifactAnalysis   = "company_analysis"
	ArtifactNews       = "news_page"
	ArtifactFlows      = "flows_page"
	ArtifactChartMonth = "chart_month"
	ArtifactChartWeek  = "chart_week"
	ArtifactChartDay   = "chart_day"
	ArtifactChartHour  = "chart_60min"
)

// runTimestampLayout is the compact timestamp used in per-run directory and
// file names.
const runTimestampLayout = "0601021504"

// RunDirName returns the per-run artifact directory name for a target.
func RunDirName(code string, start time.Time) string {
	return fmt.Sprintf("%s_%s", code, start.Format(runTimestampLayout))
}

// SaveReport serializes the report to <dir>/<code>_<timestamp>.json and
// returns the written path. Repeated saves for the same run overwrite.
func SaveReport(r *StockReport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", r.Code, r.CollectedAt.Format(runTimestampLayout)))
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
