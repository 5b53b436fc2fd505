// Package config loads service configuration from defaults, an optional YAML
// file, an optional .env file and MOCACORE_* environment variables, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MOCACORE_"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver         string        `yaml:"driver"`
	SQLitePath     string        `yaml:"sqlite_path"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	BadgerPath     string        `yaml:"badger_path"`
	BadgerInMemory bool          `yaml:"badger_in_memory"`
	Timeout        time.Duration `yaml:"timeout"`
}

// BlobConfig selects the drawing artifact store. Driver "none" disables archiving.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 artifact driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// ScoringConfig tunes section scorers.
type ScoringConfig struct {
	ExpectedCity string `yaml:"expected_city"`
}

// ReconcileConfig schedules background maintenance. Zero intervals disable a job.
type ReconcileConfig struct {
	Interval   time.Duration `yaml:"interval"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "mocacore.db",
			BadgerPath: "./data/badger",
			Timeout:    5 * time.Second,
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./artifacts-data",
		},
		Reconcile: ReconcileConfig{
			Interval:   time.Hour,
			GCInterval: 10 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Options controls where Load looks.
type Options struct {
	// File is an optional YAML path. A missing file is an error when set.
	File string
	// EnvFile is an optional dotenv path. A missing file is ignored.
	EnvFile string
	// Getenv overrides os.Getenv, mainly for tests.
	Getenv func(string) string
}

// Load resolves the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.File, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", opts.File, err)
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			getenv = layered(getenv, values)
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// layered gives real environment variables precedence over dotenv values.
func layered(getenv func(string) string, file map[string]string) func(string) string {
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return file[key]
	}
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"SERVER_ADDR":           &cfg.Server.Addr,
		"SERVER_MODE":           &cfg.Server.Mode,
		"STORAGE_DRIVER":        &cfg.Storage.Driver,
		"SQLITE_PATH":           &cfg.Storage.SQLitePath,
		"POSTGRES_DSN":          &cfg.Storage.PostgresDSN,
		"BADGER_PATH":           &cfg.Storage.BadgerPath,
		"BLOB_DRIVER":           &cfg.Blob.Driver,
		"BLOB_FS_ROOT":          &cfg.Blob.FSRoot,
		"BLOB_S3_BUCKET":        &cfg.Blob.S3.Bucket,
		"BLOB_S3_REGION":        &cfg.Blob.S3.Region,
		"BLOB_S3_ENDPOINT":      &cfg.Blob.S3.Endpoint,
		"BLOB_S3_ACCESS_KEY":    &cfg.Blob.S3.AccessKeyID,
		"BLOB_S3_SECRET_KEY":    &cfg.Blob.S3.SecretAccessKey,
		"SCORING_EXPECTED_CITY": &cfg.Scoring.ExpectedCity,
		"LOG_LEVEL":             &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SERVER_READ_TIMEOUT":     &cfg.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":    &cfg.Server.WriteTimeout,
		"SERVER_SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
		"STORAGE_TIMEOUT":         &cfg.Storage.Timeout,
		"RECONCILE_INTERVAL":      &cfg.Reconcile.Interval,
		"RECONCILE_GC_INTERVAL":   &cfg.Reconcile.GCInterval,
	}
	for key, dst := range durations {
		v := getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"BADGER_IN_MEMORY":   &cfg.Storage.BadgerInMemory,
		"BLOB_S3_PATH_STYLE": &cfg.Blob.S3.PathStyle,
		"LOG_DEVELOPMENT":    &cfg.Log.Development,
	}
	for key, dst := range bools {
		v := getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}
	return nil
}

// Validate reports every invalid setting in one error.
func (c Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case "memory", "sqlite", "badger":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of memory, sqlite, postgres, badger", c.Storage.Driver))
	}
	if c.Storage.Driver == "badger" && !c.Storage.BadgerInMemory && c.Storage.BadgerPath == "" {
		problems = append(problems, "storage.badger_path is required unless badger_in_memory is set")
	}
	if c.Storage.Timeout <= 0 {
		problems = append(problems, "storage.timeout must be positive")
	}
	switch c.Blob.Driver {
	case "none", "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "blob.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("blob.driver %q is not one of none, fs, memory, s3", c.Blob.Driver))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		problems = append(problems, fmt.Sprintf("server.mode %q is not one of debug, release, test", c.Server.Mode))
	}
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Reconcile.Interval < 0 || c.Reconcile.GCInterval < 0 {
		problems = append(problems, "reconcile intervals must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
