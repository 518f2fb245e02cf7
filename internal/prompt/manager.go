// File: internal/prompt/manager.go

// Package prompt loads the per-strategy analysis templates and renders them
// against a collected stock report.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"stockscope/internal/collector"
)

// Manager loads strategy templates from disk and caches the parsed result.
// Safe for concurrent use.
type Manager struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewManager constructs a manager rooted at the templates directory.
func NewManager(dir string, logger *zap.Logger) *Manager {
	return &Manager{
		dir:    dir,
		logger: logger.Named("prompt"),
		cache:  make(map[string]*template.Template),
	}
}

// view is the data shape exposed to templates. Report fields are flattened
// so template authors do not need to follow the report structure.
type view struct {
	Code       string
	Name       string
	Price      string
	Change     string
	ChangeRate string
	Summary    string
	Themes     string
	News       []collector.NewsItem
	Flows      []collector.FlowRow
	Date       string
}

// load parses and caches the template for a strategy.
func (m *Manager) load(strategy string) (*template.Template, error) {
	m.mu.RLock()
	tmpl, ok := m.cache[strategy]
	m.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	path := filepath.Join(m.dir, strategy+".tmpl")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %q: %w", path, err)
	}
	tmpl, err = template.New(strategy).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", path, err)
	}

	m.mu.Lock()
	m.cache[strategy] = tmpl
	m.mu.Unlock()
	m.logger.Debug("Template loaded", zap.String("strategy", strategy))
	return tmpl, nil
}

// Render produces the analysis prompt for a strategy from a collected
// report.
func (m *Manager) Render(strategy string, report *collector.StockReport) (string, error) {
	tmpl, err := m.load(strategy)
	if err != nil {
		return "", err
	}

	v := view{
		Code:       report.Code,
		Name:       report.BasicInfo.Name,
		Price:      report.BasicInfo.Price,
		Change:     report.BasicInfo.Change,
		ChangeRate: report.BasicInfo.ChangeRate,
		Summary:    report.BasicInfo.Summary,
		Themes:     strings.Join(report.Themes, ", "),
		News:       report.News,
		Flows:      report.Flows,
		Date:       report.CollectedAt.Format("2006-01-02 15:04"),
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, v); err != nil {
		return "", fmt.Errorf("failed to render strategy %q: %w", strategy, err)
	}
	return sb.String(), nil
}

// ValidateAll eagerly loads every listed strategy so configuration problems
// surface at startup instead of after a collection run.
func (m *Manager) ValidateAll(strategies []string) error {
	var missing []string
	for _, strategy := range strategies {
		if _, err := m.load(strategy); err != nil {
			m.logger.Warn("Strategy template unavailable",
				zap.String("strategy", strategy), zap.Error(err))
			missing = append(missing, strategy)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid templates for strategies: %s", strings.Join(missing, ", "))
	}
	return nil
}
