// Package config loads process configuration from optica.yaml and OPTICA_* variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Listen   string         `mapstructure:"listen"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Print    PrintConfig    `mapstructure:"print"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Cookie        string        `mapstructure:"cookie"`
	Secure        bool          `mapstructure:"secure"`
}

type BlobConfig struct {
	Driver string       `mapstructure:"driver"`
	FS     FSBlobConfig `mapstructure:"fs"`
	S3     S3BlobConfig `mapstructure:"s3"`
}

type FSBlobConfig struct {
	Root string `mapstructure:"root"`
}

type S3BlobConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Prefix    string `mapstructure:"prefix"`
}

type PrintConfig struct {
	BrowserBin string        `mapstructure:"browser_bin"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	configFileName = "optica"
	configFileType = "yaml"
	envPrefix      = "OPTICA"
)

var (
	cfg Config
	mu  sync.RWMutex
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./optica.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.sweep_interval", "10m")
	v.SetDefault("session.cookie", "optica_session")
	v.SetDefault("session.secure", false)
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs.root", "./blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("print.browser_bin", "")
	v.SetDefault("print.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads path when given, else optica.yaml from . or /etc/optica.
// A missing search-path file is not an error; environment variables such as
// OPTICA_DATABASE_DSN override file values.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/optica")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	return c, nil
}

// Validate rejects unknown drivers and non-positive durations.
func (c Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite3 or pgx", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	switch c.Blob.Driver {
	case "fs":
		if c.Blob.FS.Root == "" {
			problems = append(problems, "blob.fs.root is required for the fs driver")
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "blob.s3.bucket is required for the s3 driver")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("blob.driver %q must be fs, s3 or memory", c.Blob.Driver))
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		problems = append(problems, "session.sweep_interval must be positive")
	}
	if c.Print.Timeout <= 0 {
		problems = append(problems, "print.timeout must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be json or console", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the configuration last loaded by LoadConfig.
func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
