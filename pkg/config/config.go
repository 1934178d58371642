package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// MINIBENCH_DRIVER_TARGET_URL overrides driver.target_url.
	EnvPrefix = "MINIBENCH"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultTargetURL is the node the driver talks to when nothing else is set.
	DefaultTargetURL = "http://127.0.0.1:5000"

	// DefaultReceiver is the default receiver node id.
	DefaultReceiver = 1

	// DefaultAmount is the default amount per transaction.
	DefaultAmount = 1

	// DefaultCount is the default number of transactions per run.
	DefaultCount = 20

	// DefaultExperimentName labels runs that were not given a name.
	DefaultExperimentName = "unnamed"

	// DefaultNodes is the default network size recorded with a run.
	DefaultNodes = 2

	// DefaultRequestTimeout bounds a single node request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultLedgerPath is the default results ledger file.
	DefaultLedgerPath = "results.csv"

	// DefaultPathStyle is the default node endpoint naming style.
	DefaultPathStyle = "dash"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultIndexInterval is how often the API re-syncs the index.
	DefaultIndexInterval = 60 * time.Second

	// DefaultIndexConcurrency is how many ledgers are read in parallel.
	DefaultIndexConcurrency = 4
)

// Config is the root configuration for minibench.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	Driver DriverConfig `yaml:"driver" mapstructure:"driver"`
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
	Index  IndexConfig  `yaml:"index" mapstructure:"index"`
	Upload UploadConfig `yaml:"upload" mapstructure:"upload"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DriverConfig parameterizes a single benchmark run against one node.
type DriverConfig struct {
	TargetURL      string        `yaml:"target_url" mapstructure:"target_url"`
	APIPrefix      string        `yaml:"api_prefix,omitempty" mapstructure:"api_prefix"`
	PathStyle      string        `yaml:"path_style,omitempty" mapstructure:"path_style"`
	Receiver       int           `yaml:"receiver" mapstructure:"receiver"`
	Amount         int           `yaml:"amount" mapstructure:"amount"`
	Count          int           `yaml:"count" mapstructure:"count"`
	ExperimentName string        `yaml:"experiment_name" mapstructure:"experiment_name"`
	Nodes          int           `yaml:"nodes" mapstructure:"nodes"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// MaxRate caps transactions per second. Zero disables pacing.
	MaxRate float64 `yaml:"max_rate,omitempty" mapstructure:"max_rate"`
}

// LedgerConfig locates the results ledger file.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// Owner is an optional "UID:GID" applied to the ledger file on creation.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// IndexConfig configures the SQL mirror of the ledger.
type IndexConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval,omitempty" mapstructure:"interval"`
	// Ledgers are extra ledger files mirrored next to ledger.path.
	Ledgers     []string       `yaml:"ledgers,omitempty" mapstructure:"ledgers"`
	Concurrency int            `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// UploadConfig configures where the ledger is published after a run.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3" mapstructure:"s3"`
}

// S3UploadConfig contains settings for S3-compatible ledger uploads.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// Load reads the configuration from an optional YAML file and applies
// MINIBENCH_* environment overrides on top. An empty path yields defaults
// plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can resolve it
// even when the config file does not mention it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("driver.target_url", DefaultTargetURL)
	v.SetDefault("driver.api_prefix", "")
	v.SetDefault("driver.path_style", DefaultPathStyle)
	v.SetDefault("driver.receiver", DefaultReceiver)
	v.SetDefault("driver.amount", DefaultAmount)
	v.SetDefault("driver.count", DefaultCount)
	v.SetDefault("driver.experiment_name", DefaultExperimentName)
	v.SetDefault("driver.nodes", DefaultNodes)
	v.SetDefault("driver.request_timeout", DefaultRequestTimeout)
	v.SetDefault("driver.max_rate", 0.0)

	v.SetDefault("ledger.path", DefaultLedgerPath)
	v.SetDefault("ledger.owner", "")

	v.SetDefault("index.enabled", false)
	v.SetDefault("index.interval", DefaultIndexInterval)
	v.SetDefault("index.concurrency", DefaultIndexConcurrency)
	v.SetDefault("index.database.driver", "sqlite")
	v.SetDefault("index.database.sqlite.path", "minibench.db")
	v.SetDefault("index.database.postgres.host", "")
	v.SetDefault("index.database.postgres.port", 5432)
	v.SetDefault("index.database.postgres.user", "")
	v.SetDefault("index.database.postgres.password", "")
	v.SetDefault("index.database.postgres.database", "")
	v.SetDefault("index.database.postgres.ssl_mode", "disable")

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.force_path_style", false)
	v.SetDefault("upload.s3.storage_class", "")

	v.SetDefault("api.server.listen", DefaultListen)
	v.SetDefault("api.server.rate_limit.enabled", false)
	v.SetDefault("api.server.rate_limit.requests_per_minute", 120)
	v.SetDefault("api.auth.basic.enabled", false)
}

// applyDefaults fills values that viper leaves at their zero value, e.g.
// when a config file sets a key to an empty string.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Driver.PathStyle == "" {
		c.Driver.PathStyle = DefaultPathStyle
	}

	if c.Driver.ExperimentName == "" {
		c.Driver.ExperimentName = DefaultExperimentName
	}

	if c.Driver.RequestTimeout == 0 {
		c.Driver.RequestTimeout = DefaultRequestTimeout
	}

	if c.Ledger.Path == "" {
		c.Ledger.Path = DefaultLedgerPath
	}

	if c.Index.Interval <= 0 {
		c.Index.Interval = DefaultIndexInterval
	}

	if c.Index.Concurrency <= 0 {
		c.Index.Concurrency = DefaultIndexConcurrency
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}
}

// ValidateDriver checks the settings a benchmark run depends on.
func (c *Config) ValidateDriver() error {
	u, err := url.Parse(c.Driver.TargetURL)
	if err != nil {
		return fmt.Errorf("driver.target_url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("driver.target_url %q: scheme must be http or https", c.Driver.TargetURL)
	}

	if u.Host == "" {
		return fmt.Errorf("driver.target_url %q: host is required", c.Driver.TargetURL)
	}

	switch c.Driver.PathStyle {
	case "dash", "underscore":
	default:
		return fmt.Errorf("driver.path_style %q: must be dash or underscore", c.Driver.PathStyle)
	}

	if c.Driver.Count < 0 {
		return fmt.Errorf("driver.count must not be negative, got %d", c.Driver.Count)
	}

	if c.Driver.Amount <= 0 {
		return fmt.Errorf("driver.amount must be positive, got %d", c.Driver.Amount)
	}

	if c.Driver.Receiver < 0 {
		return fmt.Errorf("driver.receiver must not be negative, got %d", c.Driver.Receiver)
	}

	if c.Driver.Nodes <= 0 {
		return fmt.Errorf("driver.nodes must be positive, got %d", c.Driver.Nodes)
	}

	if c.Driver.MaxRate < 0 {
		return fmt.Errorf("driver.max_rate must not be negative, got %g", c.Driver.MaxRate)
	}

	return c.ValidateLedger()
}

// ValidateLedger checks that the ledger file can be created.
func (c *Config) ValidateLedger() error {
	if c.Ledger.Path == "" {
		return errors.New("ledger.path is required")
	}

	dir := filepath.Dir(c.Ledger.Path)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("ledger directory %q: %w", dir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("ledger directory %q is not a directory", dir)
	}

	return nil
}

// ValidateIndex checks the index database settings.
func (c *Config) ValidateIndex() error {
	for i, p := range c.Index.Ledgers {
		if p == "" {
			return fmt.Errorf("index.ledgers[%d] must not be empty", i)
		}
	}

	return c.Index.Database.validate("index.database")
}

// LedgerPaths returns ledger.path followed by index.ledgers, without
// duplicates.
func (c *Config) LedgerPaths() []string {
	paths := make([]string, 0, 1+len(c.Index.Ledgers))
	seen := make(map[string]struct{}, cap(paths))

	for _, p := range append([]string{c.Ledger.Path}, c.Index.Ledgers...) {
		if _, ok := seen[p]; ok {
			continue
		}

		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	return paths
}

func (d *DatabaseConfig) validate(name string) error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("%s.sqlite.path is required", name)
		}
	case "postgres":
		if d.Postgres.Host == "" {
			return fmt.Errorf("%s.postgres.host is required", name)
		}

		if d.Postgres.Database == "" {
			return fmt.Errorf("%s.postgres.database is required", name)
		}
	default:
		return fmt.Errorf("%s.driver %q: must be sqlite or postgres", name, d.Driver)
	}

	return nil
}

// ValidateUpload checks the S3 upload settings when uploads are enabled.
func (c *Config) ValidateUpload() error {
	if !c.Upload.S3.Enabled {
		return nil
	}

	if c.Upload.S3.Bucket == "" {
		return errors.New("upload.s3.bucket is required when upload is enabled")
	}

	if (c.Upload.S3.AccessKeyID == "") != (c.Upload.S3.SecretAccessKey == "") {
		return errors.New("upload.s3.access_key_id and secret_access_key must be set together")
	}

	return nil
}
