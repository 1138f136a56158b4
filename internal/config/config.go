// Package config loads and validates importer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/patrondata/importar/internal/record"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig          `mapstructure:"server"`
	Auth          AuthConfig            `mapstructure:"auth"`
	Importer      ImporterConfig        `mapstructure:"importer"`
	DB            DBConfig              `mapstructure:"db"`
	PubSub        PubSubConfig          `mapstructure:"pubsub"`
	Archive       ArchiveConfig         `mapstructure:"archive"`
	Logging       LoggingConfig         `mapstructure:"logging"`
	StandardFeeds map[string]FeedConfig `mapstructure:"standard_feeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ImporterConfig governs worker and feed behavior.
type ImporterConfig struct {
	Concurrency        int    `mapstructure:"concurrency"`
	QueueDepth         int    `mapstructure:"queue_depth"`
	FeedTimeoutSeconds int    `mapstructure:"feed_timeout_seconds"`
	FeedMaxPages       int    `mapstructure:"feed_max_pages"`
	UserAgent          string `mapstructure:"user_agent"`
	// FeedRPS caps feed page fetches per upstream host across all workers.
	// Zero disables pacing.
	FeedRPS   float64 `mapstructure:"feed_rps"`
	FeedBurst int     `mapstructure:"feed_burst"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects and tunes the record archive backend.
type ArchiveConfig struct {
	// Provider is one of "gcs", "local", "memory", or "none"/"" to disable
	// archiving.
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FeedConfig describes a named feed operators can trigger by name.
type FeedConfig struct {
	URL        string `mapstructure:"url"`
	RecordType string `mapstructure:"record_type"`
	ImportType string `mapstructure:"import_type"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMPORTAR")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("importer.concurrency", 4)
	v.SetDefault("importer.queue_depth", 64)
	v.SetDefault("importer.feed_timeout_seconds", 15)
	v.SetDefault("importer.feed_max_pages", 1000)
	v.SetDefault("importer.user_agent", "importar/0.1")
	v.SetDefault("importer.feed_rps", 0)
	v.SetDefault("importer.feed_burst", 1)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("archive.provider", "")
	v.SetDefault("archive.prefix", "imports")
	v.SetDefault("archive.content_type", "application/json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Importer.Concurrency <= 0 {
		return fmt.Errorf("importer.concurrency must be > 0")
	}
	if c.Importer.QueueDepth <= 0 {
		return fmt.Errorf("importer.queue_depth must be > 0")
	}
	if c.Importer.FeedTimeoutSeconds <= 0 {
		return fmt.Errorf("importer.feed_timeout_seconds must be > 0")
	}
	if c.Importer.FeedRPS < 0 {
		return fmt.Errorf("importer.feed_rps must be >= 0")
	}
	if c.Importer.FeedBurst <= 0 {
		return fmt.Errorf("importer.feed_burst must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Provider {
	case "", "none", "memory":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local provider")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	for name, feed := range c.StandardFeeds {
		if feed.URL == "" {
			return fmt.Errorf("standard_feeds.%s.url is required", name)
		}
		if feed.RecordType == "" {
			return fmt.Errorf("standard_feeds.%s.record_type is required", name)
		}
		if feed.ImportType != "" {
			if _, err := record.ParseImportType(feed.ImportType); err != nil {
				return fmt.Errorf("standard_feeds.%s.import_type: %w", name, err)
			}
		}
	}
	return nil
}

// FeedTimeout converts the feed timeout config into a duration.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Importer.FeedTimeoutSeconds) * time.Second
}
