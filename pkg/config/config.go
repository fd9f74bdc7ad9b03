package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override,
	// e.g. CTESTTRACE_GLOBAL_LOG_LEVEL.
	EnvPrefix = "CTESTTRACE"

	// DefaultLogLevel is the default logging level. The trace goes to
	// stdout, so only problems are logged by default.
	DefaultLogLevel = "warn"

	// DefaultFormat is the default log grammar.
	DefaultFormat = "ctest"

	// DefaultBatchConcurrency is the default number of logs converted at once.
	DefaultBatchConcurrency = 4

	// DefaultUploadPrefix is the default S3 key prefix for traces.
	DefaultUploadPrefix = "traces"

	// DefaultUploadTimeout bounds a single trace upload.
	DefaultUploadTimeout = 2 * time.Minute

	// DefaultDatabaseDriver is the default history database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default history database file.
	DefaultSQLitePath = "./ctesttrace.db"

	// DefaultListen is the default API listen address.
	DefaultListen = ":9001"

	// DefaultTracesDir is the default directory served by the API.
	DefaultTracesDir = "./traces"

	// DefaultMaxBodySize caps the log size accepted by the API.
	DefaultMaxBodySize = "64MiB"
)

// Config is the root configuration for ctesttrace.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Convert ConvertConfig `yaml:"convert" mapstructure:"convert"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ConvertConfig controls how logs are turned into traces.
type ConvertConfig struct {
	Format       string `yaml:"format" mapstructure:"format"`
	AllowOrphans bool   `yaml:"allow_orphans" mapstructure:"allow_orphans"`
	Tee          bool   `yaml:"tee" mapstructure:"tee"`
}

// OrphanPolicy returns the reconstructor policy for AllowOrphans.
func (c *ConvertConfig) OrphanPolicy() trace.OrphanPolicy {
	if c.AllowOrphans {
		return trace.OrphanDrop
	}

	return trace.OrphanFail
}

// OutputConfig controls written trace files.
type OutputConfig struct {
	// Owner is an optional "UID:GID" applied to written files.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// BatchConfig controls the batch command.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// UploadConfig contains remote storage settings for traces.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string        `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string        `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string        `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string        `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool          `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string        `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string        `yaml:"acl,omitempty" mapstructure:"acl"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// HistoryConfig contains the test duration history settings.
type HistoryConfig struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
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

// APIConfig contains the HTTP API settings.
type APIConfig struct {
	Server APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth   APIAuthConfig   `yaml:"auth" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	TracesDir   string          `yaml:"traces_dir" mapstructure:"traces_dir"`
	MaxBodySize string          `yaml:"max_body_size" mapstructure:"max_body_size"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// MaxBodyBytes returns MaxBodySize in bytes.
func (c *APIServerConfig) MaxBodyBytes() (int64, error) {
	return units.RAMInBytes(c.MaxBodySize)
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication for the
// convert endpoint.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user. PasswordHash is a bcrypt hash.
type BasicAuthUser struct {
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// Load reads the optional configuration file at path, applies
// environment overrides and defaults. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("convert.format", DefaultFormat)
	v.SetDefault("convert.allow_orphans", false)
	v.SetDefault("convert.tee", false)

	v.SetDefault("output.owner", "")

	v.SetDefault("batch.concurrency", DefaultBatchConcurrency)

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.prefix", DefaultUploadPrefix)
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.force_path_style", false)
	v.SetDefault("upload.s3.storage_class", "")
	v.SetDefault("upload.s3.acl", "")
	v.SetDefault("upload.s3.timeout", DefaultUploadTimeout)

	v.SetDefault("history.database.driver", DefaultDatabaseDriver)
	v.SetDefault("history.database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("history.database.postgres.host", "localhost")
	v.SetDefault("history.database.postgres.port", 5432)
	v.SetDefault("history.database.postgres.user", "")
	v.SetDefault("history.database.postgres.password", "")
	v.SetDefault("history.database.postgres.database", "ctesttrace")
	v.SetDefault("history.database.postgres.ssl_mode", "disable")

	v.SetDefault("api.server.listen", DefaultListen)
	v.SetDefault("api.server.cors_origins", []string{})
	v.SetDefault("api.server.traces_dir", DefaultTracesDir)
	v.SetDefault("api.server.max_body_size", DefaultMaxBodySize)
	v.SetDefault("api.server.rate_limit.enabled", false)
	v.SetDefault("api.server.rate_limit.requests_per_minute", 60)
	v.SetDefault("api.auth.basic.enabled", false)
}

// applyDefaults fills values that may have been blanked out by the file.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Convert.Format == "" {
		c.Convert.Format = DefaultFormat
	}

	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = DefaultBatchConcurrency
	}

	if c.Upload.S3.Prefix == "" {
		c.Upload.S3.Prefix = DefaultUploadPrefix
	}

	if c.Upload.S3.Timeout == 0 {
		c.Upload.S3.Timeout = DefaultUploadTimeout
	}

	if c.History.Database.Driver == "" {
		c.History.Database.Driver = DefaultDatabaseDriver
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}

	if c.API.Server.MaxBodySize == "" {
		c.API.Server.MaxBodySize = DefaultMaxBodySize
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if c.Convert.Format != DefaultFormat {
		return fmt.Errorf("convert.format: unsupported format %q", c.Convert.Format)
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}

	if c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when upload.s3 is enabled")
	}

	switch c.History.Database.Driver {
	case "sqlite":
		if c.History.Database.SQLite.Path == "" {
			return fmt.Errorf("history.database.sqlite.path is required")
		}
	case "postgres":
		if c.History.Database.Postgres.Host == "" {
			return fmt.Errorf("history.database.postgres.host is required")
		}
	default:
		return fmt.Errorf("history.database.driver: unsupported driver %q", c.History.Database.Driver)
	}

	if _, err := c.API.Server.MaxBodyBytes(); err != nil {
		return fmt.Errorf("api.server.max_body_size: %w", err)
	}

	if c.API.Server.RateLimit.Enabled && c.API.Server.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("api.server.rate_limit.requests_per_minute must be positive")
	}

	if c.API.Auth.Basic.Enabled {
		if len(c.API.Auth.Basic.Users) == 0 {
			return fmt.Errorf("api.auth.basic: at least one user is required")
		}

		seen := make(map[string]struct{}, len(c.API.Auth.Basic.Users))

		for i, u := range c.API.Auth.Basic.Users {
			if u.Username == "" || u.PasswordHash == "" {
				return fmt.Errorf("api.auth.basic.users[%d]: username and password_hash are required", i)
			}

			if _, dup := seen[u.Username]; dup {
				return fmt.Errorf("api.auth.basic.users[%d]: duplicate username %q", i, u.Username)
			}

			seen[u.Username] = struct{}{}
		}
	}

	return nil
}

const redacted = "<redacted>"

// Redacted returns a copy of c with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c

	if out.Upload.S3.AccessKeyID != "" {
		out.Upload.S3.AccessKeyID = redacted
	}

	if out.Upload.S3.SecretAccessKey != "" {
		out.Upload.S3.SecretAccessKey = redacted
	}

	if out.History.Database.Postgres.Password != "" {
		out.History.Database.Postgres.Password = redacted
	}

	if len(c.API.Auth.Basic.Users) > 0 {
		users := make([]BasicAuthUser, len(c.API.Auth.Basic.Users))
		for i, u := range c.API.Auth.Basic.Users {
			users[i] = BasicAuthUser{Username: u.Username, PasswordHash: redacted}
		}

		out.API.Auth.Basic.Users = users
	}

	return &out
}
