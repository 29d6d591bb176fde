// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hqnguyen/trendwatch/internal/entity"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Store     StoreConfig     `mapstructure:"store"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls the master/history database. An empty DSN selects
// the in-memory backend (local runs, tests).
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StoreConfig tunes the snapshot policy of the persistence engine.
type StoreConfig struct {
	AlwaysSnapshot   bool    `mapstructure:"always_snapshot"`
	SnapshotMinDelta float64 `mapstructure:"snapshot_min_delta"`
}

// BrowserConfig configures the headless browsing subsystem.
type BrowserConfig struct {
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// CrawlConfig governs the shared driver behavior.
type CrawlConfig struct {
	// PageRPS bounds how fast a driver turns pages on one platform.
	PageRPS float64 `mapstructure:"page_rps"`
	// WaitWindowMs is the bounded wait for matching network responses
	// after a navigation or scroll.
	WaitWindowMs int `mapstructure:"wait_window_ms"`
	// RunTimeoutSeconds bounds the whole run; zero disables it.
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
}

// ArchiveConfig selects where captured raw payloads are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // none | local | gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublishConfig controls run-summary publishing.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"` // none | pubsub
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// OpsConfig controls the operational HTTP endpoint.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PlatformConfig holds one platform's task knobs and credentials.
type PlatformConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Keywords           []string `mapstructure:"keywords"`
	Target             int      `mapstructure:"target"`
	PageCeiling        int      `mapstructure:"page_ceiling"`
	StallThreshold     int      `mapstructure:"stall_threshold"`
	VariantsPerKeyword int      `mapstructure:"variants_per_keyword"`
	PagesPerVariant    int      `mapstructure:"pages_per_variant"`
	Cookie             string   `mapstructure:"cookie"`
	APIKeys            []string `mapstructure:"api_keys"`
	KeyBudget          int      `mapstructure:"key_budget"`
	ExcludedChannels   []string `mapstructure:"excluded_channels"`
}

// PlatformsConfig groups the supported platforms.
type PlatformsConfig struct {
	Facebook PlatformConfig `mapstructure:"facebook"`
	Shopee   PlatformConfig `mapstructure:"shopee"`
	TikTok   PlatformConfig `mapstructure:"tiktok"`
	YouTube  PlatformConfig `mapstructure:"youtube"`
}

// ByName returns the config for a platform name.
func (p PlatformsConfig) ByName(name string) (PlatformConfig, bool) {
	switch name {
	case entity.PlatformFacebook:
		return p.Facebook, true
	case entity.PlatformShopee:
		return p.Shopee, true
	case entity.PlatformTikTok:
		return p.TikTok, true
	case entity.PlatformYouTube:
		return p.YouTube, true
	}
	return PlatformConfig{}, false
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRENDWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("store.always_snapshot", false)
	v.SetDefault("store.snapshot_min_delta", 0)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("crawl.page_rps", 0.5)
	v.SetDefault("crawl.wait_window_ms", 4000)
	v.SetDefault("crawl.run_timeout_seconds", 0)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "payloads")
	v.SetDefault("publish.provider", "none")
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 8080)

	for _, platform := range []string{"facebook", "shopee", "tiktok", "youtube"} {
		v.SetDefault("platforms."+platform+".enabled", false)
		v.SetDefault("platforms."+platform+".target", 100)
		v.SetDefault("platforms."+platform+".page_ceiling", 50)
		v.SetDefault("platforms."+platform+".stall_threshold", 3)
		v.SetDefault("platforms."+platform+".variants_per_keyword", 10)
	}
	v.SetDefault("platforms.shopee.pages_per_variant", 2)
	v.SetDefault("platforms.youtube.key_budget", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	if c.Crawl.WaitWindowMs <= 0 {
		return fmt.Errorf("crawl.wait_window_ms must be > 0")
	}
	if c.Platforms.Facebook.Enabled && c.Platforms.Facebook.Cookie == "" {
		return fmt.Errorf("platforms.facebook.cookie is required when facebook is enabled")
	}
	if c.Platforms.YouTube.Enabled && len(c.Platforms.YouTube.APIKeys) == 0 {
		return fmt.Errorf("platforms.youtube.api_keys is required when youtube is enabled")
	}
	for _, p := range []struct {
		name string
		cfg  PlatformConfig
	}{
		{entity.PlatformFacebook, c.Platforms.Facebook},
		{entity.PlatformShopee, c.Platforms.Shopee},
		{entity.PlatformTikTok, c.Platforms.TikTok},
		{entity.PlatformYouTube, c.Platforms.YouTube},
	} {
		if !p.cfg.Enabled {
			continue
		}
		if len(p.cfg.Keywords) == 0 {
			return fmt.Errorf("platforms.%s.keywords must not be empty", p.name)
		}
		if p.cfg.StallThreshold <= 0 {
			return fmt.Errorf("platforms.%s.stall_threshold must be > 0", p.name)
		}
		if p.cfg.PageCeiling <= 0 {
			return fmt.Errorf("platforms.%s.page_ceiling must be > 0", p.name)
		}
	}
	switch c.Archive.Provider {
	case "", "none", "local", "gcs":
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Publish.Provider {
	case "", "none", "pubsub":
	default:
		return fmt.Errorf("unknown publish provider: %s", c.Publish.Provider)
	}
	return nil
}

// WaitWindow returns the interception wait window as a duration.
func (c CrawlConfig) WaitWindow() time.Duration {
	return time.Duration(c.WaitWindowMs) * time.Millisecond
}

// RunTimeout returns the run budget, zero when unbounded.
func (c CrawlConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// NavTimeout returns the navigation budget as a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	if c.NavTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}
