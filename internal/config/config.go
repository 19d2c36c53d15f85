// Package config loads gundog configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gundog configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// DataDir is the root for the local database and logs.
	DataDir string `yaml:"data_dir"`

	LLM      LLMConfig      `yaml:"llm"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the generative backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// ScenarioConfig points at the static schema resources.
type ScenarioConfig struct {
	ID            string `yaml:"id"`
	MissionPath   string `yaml:"mission_path"`
	ChecklistPath string `yaml:"checklist_path"`
}

// StoreConfig selects and configures the snapshot store backend.
type StoreConfig struct {
	Driver string      `yaml:"driver"` // sqlite, redis
	Path   string      `yaml:"path"`   // sqlite database path
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis snapshot backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures the credential verifier.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gundog",
		Version: "1.0.0",
		DataDir: "data",
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			Timeout:     "120s",
		},
		Scenario: ScenarioConfig{
			ID:            "panama",
			MissionPath:   "scenarios/panama.xml",
			ChecklistPath: "scenarios/bid_audit.xml",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "data/gundog.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Auth: AuthConfig{
			TokenTTL: "720h", // 30 days
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables are applied on top either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if v := os.Getenv("GUNDOG_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GUNDOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GUNDOG_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("GUNDOG_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("GUNDOG_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("GUNDOG_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("GUNDOG_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}

// LLMTimeout returns the parsed LLM timeout, with a safe default.
func (c *Config) LLMTimeout() time.Duration {
	if d, err := time.ParseDuration(c.LLM.Timeout); err == nil && d > 0 {
		return d
	}
	return 120 * time.Second
}

// TokenTTL returns the parsed auth token lifetime, with a safe default.
func (c *Config) TokenTTL() time.Duration {
	if d, err := time.ParseDuration(c.Auth.TokenTTL); err == nil && d > 0 {
		return d
	}
	return 720 * time.Hour
}

// Validate checks required fields for running a live session.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.Scenario.MissionPath == "" && c.Scenario.ChecklistPath == "" {
		return fmt.Errorf("scenario.mission_path or scenario.checklist_path is required")
	}
	switch c.Store.Driver {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
