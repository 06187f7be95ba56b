// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Transform TransformConfig `mapstructure:"transform"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Naming    NamingConfig    `mapstructure:"naming"`
	State     StateConfig     `mapstructure:"state"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PipelineConfig locates the source URL lists and the scratch workspace.
type PipelineConfig struct {
	// WorkDir is the base directory for batch files, manifests, downloads,
	// artifacts, and state markers.
	WorkDir string `mapstructure:"work_dir"`
	// SourceDir holds one URL list file per source, named <source>.txt.
	SourceDir string `mapstructure:"source_dir"`
	// Sources restricts processing to the named sources. Empty means every
	// list file found under SourceDir.
	Sources []string `mapstructure:"sources"`
	// URLFilter is a regular expression; only matching URLs are batched.
	URLFilter string `mapstructure:"url_filter"`
}

// BatchConfig controls how source lists are partitioned.
type BatchConfig struct {
	Size int `mapstructure:"size"`
}

// FetchConfig governs the bounded download pool.
type FetchConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	Retries          int    `mapstructure:"retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// TransformConfig selects and configures the batch transformer.
type TransformConfig struct {
	// Mode is "parquet" for the in-process transformer or "exec" to shell
	// out to an external tool.
	Mode           string `mapstructure:"mode"`
	Command        string `mapstructure:"command"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// UploadConfig selects the destination store for finished artifacts.
type UploadConfig struct {
	// Provider is "gcs" or "local".
	Provider       string `mapstructure:"provider"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	BasePath       string `mapstructure:"base_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NamingConfig carries the owner/dataset identifiers used in artifact names.
type NamingConfig struct {
	Owner   string `mapstructure:"owner"`
	Dataset string `mapstructure:"dataset"`
	Variant string `mapstructure:"variant"`
}

// StateConfig selects the completion tracker backend.
type StateConfig struct {
	// Provider is "marker" or "postgres".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// NotifyConfig configures optional batch-completion notifications.
type NotifyConfig struct {
	// Provider is "none" or "pubsub".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
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
	v.SetDefault("pipeline.work_dir", "work")
	v.SetDefault("pipeline.source_dir", "sources")
	v.SetDefault("batch.size", 1000)
	v.SetDefault("fetch.concurrency", 16)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.user_agent", "dolma-harvest/0.1")
	v.SetDefault("transform.mode", "parquet")
	v.SetDefault("transform.timeout_seconds", 0)
	v.SetDefault("upload.provider", "local")
	v.SetDefault("upload.base_path", "data")
	v.SetDefault("upload.timeout_seconds", 0)
	v.SetDefault("naming.dataset", "dolma_extracted_inner_urls")
	v.SetDefault("state.provider", "marker")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Pipeline.URLFilter != "" {
		if _, err := regexp.Compile(c.Pipeline.URLFilter); err != nil {
			return fmt.Errorf("pipeline.url_filter is not a valid regexp: %w", err)
		}
	}
	switch c.Transform.Mode {
	case "parquet":
	case "exec":
		if c.Transform.Command == "" {
			return fmt.Errorf("transform.command must be set when transform.mode is exec")
		}
	default:
		return fmt.Errorf("unknown transform.mode: %s", c.Transform.Mode)
	}
	switch c.Upload.Provider {
	case "gcs":
		if c.Upload.GCSBucket == "" {
			return fmt.Errorf("upload.gcs_bucket must be set when upload.provider is gcs")
		}
	case "local":
	default:
		return fmt.Errorf("unknown upload.provider: %s", c.Upload.Provider)
	}
	switch c.State.Provider {
	case "marker":
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn must be set when state.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown state.provider: %s", c.State.Provider)
	}
	switch c.Notify.Provider {
	case "none":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify.provider: %s", c.Notify.Provider)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	if c.Naming.Dataset == "" {
		return fmt.Errorf("naming.dataset must be set")
	}
	return nil
}

// FetchTimeout converts the per-request timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// TransformTimeout returns the transformer budget, zero meaning no limit.
func (c Config) TransformTimeout() time.Duration {
	return time.Duration(c.Transform.TimeoutSeconds) * time.Second
}

// UploadTimeout returns the upload budget, zero meaning no limit.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}
