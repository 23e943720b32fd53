// Package config loads and validates the application configuration from a
// YAML file with environment variable expansion, falling back to plain
// environment variables when no file is given.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/dealdesk/internal/observability"
)

// ProviderConfig configures the LLM endpoint.
type ProviderConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float32       `yaml:"temperature"`
}

// LoopConfig tunes the orchestrator.
type LoopConfig struct {
	MaxTurns   int `yaml:"max_turns"`
	WindowSize int `yaml:"window_size"`
}

// ThrottleConfig tunes the mutation rate limit.
type ThrottleConfig struct {
	Window  time.Duration `yaml:"window"`
	Ceiling int           `yaml:"ceiling"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full application configuration.
type Config struct {
	Provider  ProviderConfig          `yaml:"provider"`
	Loop      LoopConfig              `yaml:"loop"`
	Throttle  ThrottleConfig          `yaml:"throttle"`
	Server    ServerConfig            `yaml:"server"`
	Log       observability.LogConfig `yaml:"log"`
	Telemetry bool                    `yaml:"telemetry"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			RequestTimeout: 60 * time.Second,
			MaxTokens:      2048,
			Temperature:    0.2,
		},
		Loop:     LoopConfig{MaxTurns: 5, WindowSize: 30},
		Throttle: ThrottleConfig{Window: 60 * time.Second, Ceiling: 3},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      observability.LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML config file, expanding ${VAR} and $VAR references from
// the environment before parsing. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// FromEnv builds a configuration from environment variables only.
func FromEnv() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// applyEnv overlays the well-known environment variables. Environment
// values win over file values so deployments can override secrets without
// editing the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DEALDESK_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("DEALDESK_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("DEALDESK_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("DEALDESK_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DEALDESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DEALDESK_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Loop.MaxTurns = n
		}
	}
}

// Validate checks that the configuration can actually run.
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required (set DEALDESK_API_KEY)")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Loop.MaxTurns <= 0 {
		return fmt.Errorf("loop.max_turns must be positive")
	}
	if c.Throttle.Ceiling <= 0 {
		return fmt.Errorf("throttle.ceiling must be positive")
	}
	if c.Throttle.Window <= 0 {
		return fmt.Errorf("throttle.window must be positive")
	}
	return nil
}
