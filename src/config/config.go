// Package config loads settings from the YAML config file, a .env file and
// the environment. Command-line flags are applied on top by the cli package.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"mongowiz/src/apperr"
	"mongowiz/src/logging"
)

// EnvURL names the variable holding the MongoDB connection string.
const EnvURL = "MONGODB_URL"

type Config struct {
	MongoDBURL     string        `yaml:"mongodb_url"`
	BackupRoot     string        `yaml:"backup_root"`
	BatchSize      int           `yaml:"batch_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	LogLevel       string        `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BackupRoot:     "./backups",
		BatchSize:      1000,
		ConnectTimeout: 10 * time.Second,
		LogLevel:       logging.DefaultLevel,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/mongowiz/config.yaml (or the platform
// equivalent). It is empty when no config directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mongowiz", "config.yaml")
}

// Load builds the configuration. path names the YAML file; when empty the
// default path is tried and may be absent. dotenv names the .env file, which
// never overrides variables already set in the environment.
func Load(path, dotenv string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := parse(data, &cfg); err != nil {
				return cfg, apperr.Format(err, "config %s", path)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return cfg, apperr.IO(err, "config %s", path)
		}
	}

	if dotenv == "" {
		dotenv = ".env"
	}
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return cfg, apperr.Format(err, "env file %s", dotenv)
		}
	}
	if v := os.Getenv(EnvURL); v != "" {
		cfg.MongoDBURL = v
	}
	return cfg, cfg.Validate()
}

func parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.NotValidf("batch_size %d", c.BatchSize)
	}
	if c.ConnectTimeout <= 0 {
		return errors.NotValidf("connect_timeout %s", c.ConnectTimeout)
	}
	if c.BackupRoot == "" {
		return errors.NotValidf("empty backup_root")
	}
	return nil
}
