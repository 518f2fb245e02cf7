// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once
// at process start and passed by reference into each component's constructor;
// there is no package-level instance.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Finance    FinanceConfig    `mapstructure:"finance" yaml:"finance"`
	Waits      WaitsConfig      `mapstructure:"waits" yaml:"waits"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	Data       DataConfig       `mapstructure:"data" yaml:"data"`
	AIServices AIServicesConfig `mapstructure:"ai_services" yaml:"ai_services"`
	Prompts    PromptsConfig    `mapstructure:"prompts" yaml:"prompts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth  int64    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int64    `mapstructure:"window_height" yaml:"window_height"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args         []string `mapstructure:"args" yaml:"args"`
}

// FinanceConfig describes the target portal. The destination pages are fixed
// paths under BaseURL, parameterized only by the stock code.
type FinanceConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// RequestRate is the maximum number of page navigations per second.
	// Values below 1 introduce a delay between requests.
	RequestRate float64 `mapstructure:"request_rate" yaml:"request_rate"`
}

// Page identifies one of the fixed destination pages for a stock code.
type Page string

const (
	PageOverview Page = "main.naver"
	PageAnalysis Page = "coinfo.naver"
	PageNews     Page = "news_news.naver"
	PageFlows    Page = "frgn.naver"
	PageCharts   Page = "fchart.naver"
)

// StockURL builds the destination URL for a stock code and page kind.
func (f FinanceConfig) StockURL(page Page, code string) string {
	return fmt.Sprintf("%s/item/%s?code=%s", f.BaseURL, page, url.QueryEscape(code))
}

// WaitsConfig names every synchronization duration the collector uses. The
// target pages expose no completion events for chart redraws or frame
// resizes, so fixed settle delays are the synchronization mechanism; keeping
// them here lets tests shrink them and production tune them without code
// changes.
type WaitsConfig struct {
	NavigationTimeout    time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SelectorPollInterval time.Duration `mapstructure:"selector_poll_interval" yaml:"selector_poll_interval"`
	PageSettle           time.Duration `mapstructure:"page_settle" yaml:"page_settle"`
	FrameResizeSettle    time.Duration `mapstructure:"frame_resize_settle" yaml:"frame_resize_settle"`
	ChartRenderSettle    time.Duration `mapstructure:"chart_render_settle" yaml:"chart_render_settle"`
	IntervalSwitchSettle time.Duration `mapstructure:"interval_switch_settle" yaml:"interval_switch_settle"`
	IndicatorSettle      time.Duration `mapstructure:"indicator_settle" yaml:"indicator_settle"`
}

// ScreenshotConfig controls where and how capture artifacts are written.
type ScreenshotConfig struct {
	SavePath string `mapstructure:"save_path" yaml:"save_path"`
	Format   string `mapstructure:"format" yaml:"format"`
	Quality  int    `mapstructure:"quality" yaml:"quality"`
}

// Extension returns the artifact file extension for the configured format.
func (s ScreenshotConfig) Extension() string {
	if s.Format == "jpeg" {
		return ".jpg"
	}
	return ".png"
}

// DataConfig controls where the flat JSON report files are written.
type DataConfig struct {
	SavePath string `mapstructure:"save_path" yaml:"save_path"`
}

// AIServiceConfig is the typed record for one chat front-end.
type AIServiceConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// AIServicesConfig is the closed set of supported chat front-ends. Unknown
// keys in the config file are rejected at load time rather than silently
// ignored.
type AIServicesConfig struct {
	ChatGPT AIServiceConfig `mapstructure:"chatgpt" yaml:"chatgpt"`
	Claude  AIServiceConfig `mapstructure:"claude" yaml:"claude"`
	Gemini  AIServiceConfig `mapstructure:"gemini" yaml:"gemini"`
}

// PromptsConfig locates the strategy prompt templates.
type PromptsConfig struct {
	TemplatesPath string   `mapstructure:"templates_path" yaml:"templates_path"`
	Strategies    []string `mapstructure:"strategies" yaml:"strategies"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stockscope")
	v.SetDefault("logger.log_file", "stockscope.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")

	// -- Finance --
	v.SetDefault("finance.base_url", "https://finance.naver.com")
	v.SetDefault("finance.request_rate", 0.5)

	// -- Waits --
	v.SetDefault("waits.navigation_timeout", "10s")
	v.SetDefault("waits.selector_poll_interval", "250ms")
	v.SetDefault("waits.page_settle", "2s")
	v.SetDefault("waits.frame_resize_settle", "3s")
	v.SetDefault("waits.chart_render_settle", "10s")
	v.SetDefault("waits.interval_switch_settle", "5s")
	v.SetDefault("waits.indicator_settle", "1s")

	// -- Screenshot / Data --
	v.SetDefault("screenshot.save_path", "screenshots")
	v.SetDefault("screenshot.format", "png")
	v.SetDefault("screenshot.quality", 95)
	v.SetDefault("data.save_path", "data")

	// -- AI services --
	v.SetDefault("ai_services.chatgpt.url", "https://chat.openai.com")
	v.SetDefault("ai_services.chatgpt.enabled", true)
	v.SetDefault("ai_services.claude.url", "https://claude.ai")
	v.SetDefault("ai_services.claude.enabled", true)
	v.SetDefault("ai_services.gemini.url", "https://gemini.google.com")
	v.SetDefault("ai_services.gemini.enabled", true)

	// -- Prompts --
	v.SetDefault("prompts.templates_path", "prompts/templates")
	v.SetDefault("prompts.strategies", []string{
		"magic_split_optimization",
		"short_term_discovery",
		"buy_timing_diagnosis",
		"hold_or_cut_decision",
		"valuation_analysis",
	})
}

// knownAIServices is the closed key set accepted under ai_services.
var knownAIServices = map[string]struct{}{
	"chatgpt": {},
	"claude":  {},
	"gemini":  {},
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Reject unknown ai_services keys before unmarshaling would silently
	// drop them.
	for key := range v.GetStringMap("ai_services") {
		if _, ok := knownAIServices[key]; !ok {
			return nil, fmt.Errorf("unknown ai_services key %q (supported: chatgpt, claude, gemini)", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults must always unmarshal and validate.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	if c.Finance.BaseURL == "" {
		return fmt.Errorf("finance.base_url is a required configuration field")
	}
	if c.Finance.RequestRate <= 0 {
		return fmt.Errorf("finance.request_rate must be positive")
	}
	if c.Waits.NavigationTimeout <= 0 {
		return fmt.Errorf("waits.navigation_timeout must be a positive duration")
	}
	if c.Waits.SelectorPollInterval <= 0 {
		return fmt.Errorf("waits.selector_poll_interval must be a positive duration")
	}
	switch c.Screenshot.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("screenshot.format must be png or jpeg, got %q", c.Screenshot.Format)
	}
	if c.Screenshot.Quality < 1 || c.Screenshot.Quality > 100 {
		return fmt.Errorf("screenshot.quality must be between 1 and 100")
	}
	if len(c.Prompts.Strategies) == 0 {
		return fmt.Errorf("prompts.strategies must not be empty")
	}
	return nil
}
