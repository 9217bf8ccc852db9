// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	DBPath   string         `yaml:"db_path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AnalyzerConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	ExpectedWeights int           `yaml:"expected_weights"`
}

// SessionConfig describes how bearer tokens are obtained: either a fixed
// StaticToken, or tokens signed with Secret for UserID.
type SessionConfig struct {
	UserID      string        `yaml:"user_id"`
	Secret      string        `yaml:"secret"`
	StaticToken string        `yaml:"static_token"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8011,
		},
		Analyzer: AnalyzerConfig{
			URL:             "http://127.0.0.1:5001/upload",
			Timeout:         60 * time.Second,
			ExpectedWeights: 4,
		},
		Session: SessionConfig{
			TokenTTL: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DBPath: "/data/plate-log.db",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "PLATE_HOST")
	setString(&cfg.Analyzer.URL, "PLATE_ANALYZER_URL")
	setString(&cfg.Session.UserID, "PLATE_USER_ID")
	setString(&cfg.Session.Secret, "PLATE_SESSION_SECRET")
	setString(&cfg.Session.StaticToken, "PLATE_STATIC_TOKEN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.DBPath, "PLATE_DB_PATH")

	if err := setInt(&cfg.Server.Port, "PLATE_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Analyzer.ExpectedWeights, "PLATE_EXPECTED_WEIGHTS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Analyzer.Timeout, "PLATE_ANALYZER_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Session.TokenTTL, "PLATE_TOKEN_TTL"); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Analyzer.URL == "" {
		return errors.New("analyzer url is required")
	}
	if c.Analyzer.ExpectedWeights < 0 {
		return fmt.Errorf("expected weights must not be negative, got %d", c.Analyzer.ExpectedWeights)
	}
	if c.Session.StaticToken == "" && c.Session.Secret == "" {
		return errors.New("either a static token or a session secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
