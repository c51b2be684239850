// Package config loads and validates socialcards configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/socialcards/internal/cache"
	"github.com/JakeFAU/socialcards/internal/cards"
	"github.com/JakeFAU/socialcards/internal/logging"
)

// Extractor names.
const (
	ExtractorFrontmatter = "frontmatter"
	ExtractorManifest    = "manifest"
)

// EnvPrefix namespaces every environment override, e.g. SOCIALCARDS_CACHE_BACKEND.
const EnvPrefix = "SOCIALCARDS"

// dotEnvFile is loaded into the process environment before Viper reads it.
var dotEnvFile = ".env"

// Config captures every knob of the plan and capture phases.
type Config struct {
	Query                    string           `mapstructure:"query"`
	Extractor                string           `mapstructure:"extractor"`
	Component                string           `mapstructure:"component"`
	ImageFolder              string           `mapstructure:"image_folder"`
	Dimensions               []cards.CardSpec `mapstructure:"dimensions"`
	CardLimit                int              `mapstructure:"card_limit"`
	BaseURL                  string           `mapstructure:"base_url"`
	TimeoutMs                int              `mapstructure:"timeout_ms"`
	ReadySelector            string           `mapstructure:"ready_selector"`
	NavigationTimeoutSeconds int              `mapstructure:"navigation_timeout_seconds"`
	ChromePath               string           `mapstructure:"chrome_path"`

	Content    ContentConfig  `mapstructure:"content"`
	Pages      PagesConfig    `mapstructure:"pages"`
	Activation Activation     `mapstructure:"activation"`
	Cache      cache.Config   `mapstructure:"cache"`
	Notify     NotifyConfig   `mapstructure:"notify"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Logging    logging.Config `mapstructure:"logging"`
}

// ContentConfig locates the site content the query runs over.
type ContentConfig struct {
	Dir      string `mapstructure:"dir"`
	Root     string `mapstructure:"root"`
	Manifest string `mapstructure:"manifest"`
}

// PagesConfig controls where card page registrations are written.
type PagesConfig struct {
	Manifest string `mapstructure:"manifest"`
}

// Activation decides whether the plugin runs for the current host command.
type Activation struct {
	EnvVar string `mapstructure:"env_var"`
	Match  string `mapstructure:"match"`
	Force  bool   `mapstructure:"force"`
}

// NotifyConfig holds Pub/Sub metadata for run notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig configures the Prometheus push gateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from .env, an optional config file and the environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("query", "")
	v.SetDefault("extractor", ExtractorFrontmatter)
	v.SetDefault("component", "")
	v.SetDefault("image_folder", "static")
	v.SetDefault("dimensions", []map[string]any{{
		"width":  cards.DefaultWidth,
		"height": cards.DefaultHeight,
		"suffix": cards.DefaultSuffix,
	}})
	v.SetDefault("card_limit", -1)
	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("timeout_ms", 5000)
	v.SetDefault("ready_selector", "")
	v.SetDefault("navigation_timeout_seconds", 30)
	v.SetDefault("chrome_path", "")
	v.SetDefault("content.dir", "content")
	v.SetDefault("content.root", "/")
	v.SetDefault("content.manifest", "")
	v.SetDefault("pages.manifest", ".cache/socialcards/pages.json")
	v.SetDefault("activation.env_var", "SITE_EXECUTING_COMMAND")
	v.SetDefault("activation.match", "develop")
	v.SetDefault("activation.force", false)
	v.SetDefault("cache.backend", cache.BackendFile)
	v.SetDefault("cache.dir", ".cache/socialcards")
	v.SetDefault("cache.key_prefix", "")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "card_batches")
	v.SetDefault("cache.sqlite.path", ".cache/socialcards/cache.db")
	v.SetDefault("cache.sqlite.table", "card_batches")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.gcs.bucket", "")
	v.SetDefault("cache.gcs.prefix", "socialcards")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "socialcards")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces values every command depends on.
func (c Config) Validate() error {
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("dimensions must not be empty")
	}
	for i, spec := range c.Dimensions {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("dimensions[%d]: %w", i, err)
		}
	}
	if c.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must be >= 0")
	}
	if c.NavigationTimeoutSeconds < 0 {
		return fmt.Errorf("navigation_timeout_seconds must be >= 0")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if strings.TrimSpace(c.ImageFolder) == "" {
		return fmt.Errorf("image_folder is required")
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return nil
}

// ValidatePlan adds the checks only the planning phase needs.
func (c Config) ValidatePlan() error {
	if c.Query == "" {
		return cards.ErrMissingQuery
	}
	if c.Component == "" {
		return cards.ErrMissingComponent
	}
	switch c.Extractor {
	case ExtractorFrontmatter:
	case ExtractorManifest:
		if c.Content.Manifest == "" {
			return fmt.Errorf("content.manifest is required for the manifest extractor: %w", cards.ErrMissingExtractor)
		}
	default:
		return fmt.Errorf("unknown extractor %q: %w", c.Extractor, cards.ErrMissingExtractor)
	}
	return nil
}

// OutputDir resolves image_folder against the working directory.
func (c Config) OutputDir() (string, error) {
	dir, err := filepath.Abs(c.ImageFolder)
	if err != nil {
		return "", fmt.Errorf("resolve image_folder: %w", err)
	}
	return dir, nil
}

// Quiescence is the fixed wait between navigation and screenshot.
func (c Config) Quiescence() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// NavigationTimeout bounds a single page load.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}

// Active reports whether the plugin should run. An empty Match always activates.
func (a Activation) Active(getenv func(string) string) bool {
	if a.Force || a.Match == "" {
		return true
	}
	if a.EnvVar == "" || getenv == nil {
		return false
	}
	return strings.Contains(getenv(a.EnvVar), a.Match)
}
