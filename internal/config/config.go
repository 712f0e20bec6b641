// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Delay     DelayConfig     `mapstructure:"delay"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Status    StatusConfig    `mapstructure:"status"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ScrapeConfig governs orchestrator concurrency and output.
type ScrapeConfig struct {
	OutputDir         string        `mapstructure:"output_dir"`
	AuthorConcurrency int           `mapstructure:"author_concurrency"`
	PaperConcurrency  int           `mapstructure:"paper_concurrency"`
	ProfileTimeout    time.Duration `mapstructure:"profile_timeout"`
	PageSize          int           `mapstructure:"page_size"`
	MaxPublications   int           `mapstructure:"max_publications"`
}

// FetcherConfig selects and tunes the page transport.
type FetcherConfig struct {
	Variant string        `mapstructure:"variant"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HeadlessConfig configures the browser-backed transport.
type HeadlessConfig struct {
	Visible     bool          `mapstructure:"visible"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// DelayConfig bounds the random politeness delay before each attempt.
type DelayConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// RetryConfig tunes the backoff policy and attempt budgets.
type RetryConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	HardDelay  time.Duration `mapstructure:"hard_delay"`
	BlockLimit int           `mapstructure:"block_limit"`
	HardLimit  int           `mapstructure:"hard_limit"`
}

// IdentityConfig points at the rotation source files.
type IdentityConfig struct {
	UserAgentsFile string `mapstructure:"user_agents_file"`
	ProxiesFile    string `mapstructure:"proxies_file"`
	Proxy          string `mapstructure:"proxy"`
}

// GovernorConfig controls the process-wide pause-on-block policy.
type GovernorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BlockThreshold int           `mapstructure:"block_threshold"`
	Window         time.Duration `mapstructure:"window"`
	Pause          time.Duration `mapstructure:"pause"`
}

// DetectorConfig overrides the block-page signature set.
type DetectorConfig struct {
	Signatures []string `mapstructure:"signatures"`
}

// RateLimitConfig throttles outbound requests per host.
type RateLimitConfig struct {
	HostQPS float64 `mapstructure:"host_qps"`
}

// StatusConfig enables the embedded status/metrics server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Fetcher variant names accepted by fetcher.variant.
const (
	FetcherDirect   = "direct"
	FetcherHeadless = "headless"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCHOLARCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.output_dir", "output")
	v.SetDefault("scrape.author_concurrency", 2)
	v.SetDefault("scrape.paper_concurrency", 3)
	v.SetDefault("scrape.profile_timeout", "20m")
	v.SetDefault("scrape.page_size", 100)
	v.SetDefault("scrape.max_publications", 0)
	v.SetDefault("fetcher.variant", FetcherDirect)
	v.SetDefault("fetcher.timeout", "30s")
	v.SetDefault("headless.visible", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("delay.min", "2s")
	v.SetDefault("delay.max", "5s")
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.hard_delay", "2s")
	v.SetDefault("retry.block_limit", 3)
	v.SetDefault("retry.hard_limit", 2)
	v.SetDefault("governor.enabled", true)
	v.SetDefault("governor.block_threshold", 3)
	v.SetDefault("governor.window", "60s")
	v.SetDefault("governor.pause", "5m")
	v.SetDefault("ratelimit.host_qps", 0.5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.AuthorConcurrency <= 0 {
		return fmt.Errorf("scrape.author_concurrency must be > 0")
	}
	if c.Scrape.PaperConcurrency <= 0 {
		return fmt.Errorf("scrape.paper_concurrency must be > 0")
	}
	if c.Scrape.PageSize <= 0 || c.Scrape.PageSize > 100 {
		return fmt.Errorf("scrape.page_size must be in (0, 100]")
	}
	switch c.Fetcher.Variant {
	case FetcherDirect, FetcherHeadless:
	default:
		return fmt.Errorf("fetcher.variant must be %q or %q", FetcherDirect, FetcherHeadless)
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if c.Fetcher.Variant == FetcherHeadless && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is selected")
	}
	if c.Delay.Min < 0 || c.Delay.Max < c.Delay.Min {
		return fmt.Errorf("delay.max must be >= delay.min >= 0")
	}
	if c.Retry.BlockLimit <= 0 || c.Retry.HardLimit <= 0 {
		return fmt.Errorf("retry limits must be > 0")
	}
	if c.Governor.Enabled && c.Governor.BlockThreshold <= 0 {
		return fmt.Errorf("governor.block_threshold must be > 0 when governor is enabled")
	}
	if c.RateLimit.HostQPS < 0 {
		return fmt.Errorf("ratelimit.host_qps must be >= 0")
	}
	return nil
}
