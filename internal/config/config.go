// Package config loads and validates binder configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/article-binder/internal/logging"
)

// Config captures every knob of a binder run.
type Config struct {
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Output   OutputConfig   `mapstructure:"output"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Download DownloadConfig `mapstructure:"download"`
	Convert  ConvertConfig  `mapstructure:"convert"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Logging  logging.Config `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

// JobsConfig locates the job list and bounds job-level concurrency.
type JobsConfig struct {
	File        string `mapstructure:"file"`
	Concurrency int    `mapstructure:"concurrency"`
}

// OutputConfig controls where documents land.
type OutputConfig struct {
	// Root overrides the job list's PdfSaveRootPath when set.
	Root      string `mapstructure:"root"`
	KeepPages bool   `mapstructure:"keep_pages"`
}

// FetchConfig configures markup and image retrieval.
type FetchConfig struct {
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxBodyBytes    int           `mapstructure:"max_body_bytes"`
	Retries         int           `mapstructure:"retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	PerHostRPS      float64       `mapstructure:"per_host_rps"`
	PerHostBurst    int           `mapstructure:"per_host_burst"`
	Headless        bool          `mapstructure:"headless"`
	HeadlessAuto    bool          `mapstructure:"headless_auto"`
	HeadlessTimeout time.Duration `mapstructure:"headless_timeout"`
}

// ExtractConfig names the markup the extractor reads.
type ExtractConfig struct {
	TitleSelector string `mapstructure:"title_selector"`
	URLAttr       string `mapstructure:"url_attr"`
	SizeAttr      string `mapstructure:"size_attr"`
	FormatParam   string `mapstructure:"format_param"`
}

// DownloadConfig tunes the fetch stage.
type DownloadConfig struct {
	MinSize    int    `mapstructure:"min_size"`
	DefaultExt string `mapstructure:"default_ext"`
}

// ConvertConfig tunes the conversion stage.
type ConvertConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// MergeConfig tunes the merge stage.
type MergeConfig struct {
	Workers int `mapstructure:"workers"`
}

// MetricsConfig enables the Prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// MirrorConfig enables GCS mirroring of finished documents.
type MirrorConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig enables Pub/Sub completion messages.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LedgerConfig enables the Postgres completion ledger.
type LedgerConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Load builds a Config from an optional file and BINDER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BINDER")
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
	v.SetDefault("jobs.file", "downloadsource.json")
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("output.root", "")
	v.SetDefault("output.keep_pages", false)
	v.SetDefault("fetch.user_agent", "article-binder/1.0")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_body_bytes", 64<<20)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_backoff", 500*time.Millisecond)
	v.SetDefault("fetch.max_parallel", 0)
	v.SetDefault("fetch.per_host_rps", 0.0)
	v.SetDefault("fetch.per_host_burst", 4)
	v.SetDefault("fetch.headless", false)
	v.SetDefault("fetch.headless_auto", false)
	v.SetDefault("fetch.headless_timeout", 45*time.Second)
	v.SetDefault("extract.title_selector", "h1.rich_media_title")
	v.SetDefault("extract.url_attr", "data-src")
	v.SetDefault("extract.size_attr", "data-w")
	v.SetDefault("extract.format_param", "wx_fmt")
	v.SetDefault("download.min_size", 1000)
	v.SetDefault("download.default_ext", "jpg")
	v.SetDefault("convert.parallelism", 0)
	v.SetDefault("merge.workers", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("mirror.gcs_bucket", "")
	v.SetDefault("mirror.prefix", "documents")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "binder_documents")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Jobs.File) == "" {
		return fmt.Errorf("jobs.file is required")
	}
	if c.Jobs.Concurrency <= 0 {
		return fmt.Errorf("jobs.concurrency must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Fetch.MaxParallel < 0 {
		return fmt.Errorf("fetch.max_parallel must be >= 0")
	}
	if c.Fetch.PerHostRPS < 0 {
		return fmt.Errorf("fetch.per_host_rps must be >= 0")
	}
	if c.Download.MinSize < 0 {
		return fmt.Errorf("download.min_size must be >= 0")
	}
	if c.Convert.Parallelism < 0 {
		return fmt.Errorf("convert.parallelism must be >= 0")
	}
	if c.Merge.Workers <= 0 {
		return fmt.Errorf("merge.workers must be > 0")
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return nil
}
