// Package config loads the service configuration from YAML with environment
// fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10m"
// as well as integer nanoseconds.
type Duration time.Duration

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full service configuration.
type Config struct {
	// OpenAIKey falls back to OPENAI_API_KEY.
	OpenAIKey string `yaml:"openai_key"`

	// Model is the chat model used by every personality.
	Model string `yaml:"model"`

	// EmbeddingModel backs semantic memory.
	EmbeddingModel string `yaml:"embedding_model"`

	Redis         RedisConfig         `yaml:"redis"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	LLM           LLMConfig           `yaml:"llm"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RedisConfig configures the persistence store. An empty Addr selects the
// in-process store.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// GatewayConfig tunes admission and session lifecycle.
type GatewayConfig struct {
	ListenAddr    string   `yaml:"listen_addr"`
	MessageLimit  int      `yaml:"message_limit"`
	MessageWindow Duration `yaml:"message_window"`
	SummonLimit   int      `yaml:"summon_limit"`
	SummonWindow  Duration `yaml:"summon_window"`
	IdleAfter     Duration `yaml:"idle_after"`
	ReapAfter     Duration `yaml:"reap_after"`
	Streaming     bool     `yaml:"streaming"`
}

// LLMConfig throttles outbound model traffic.
type LLMConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ObservabilityConfig configures the metrics and health endpoint.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads a YAML config from path and applies defaults and environment
// fallbacks. An empty path yields the default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "leaguemind:"
	}
	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = ":8080"
	}
	if c.Gateway.MessageLimit == 0 {
		c.Gateway.MessageLimit = 30
	}
	if c.Gateway.MessageWindow == 0 {
		c.Gateway.MessageWindow = Duration(time.Minute)
	}
	if c.Gateway.SummonLimit == 0 {
		c.Gateway.SummonLimit = 5
	}
	if c.Gateway.SummonWindow == 0 {
		c.Gateway.SummonWindow = Duration(time.Hour)
	}
	if c.Gateway.IdleAfter == 0 {
		c.Gateway.IdleAfter = Duration(10 * time.Minute)
	}
	if c.Gateway.ReapAfter == 0 {
		c.Gateway.ReapAfter = Duration(time.Hour)
	}
	if c.LLM.RequestsPerSecond == 0 {
		c.LLM.RequestsPerSecond = 5
	}
	if c.LLM.Burst == 0 {
		c.LLM.Burst = 10
	}
	if c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = ":9090"
	}
}

func (c *Config) applyEnv() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Redis.Password == "" {
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// Validate checks the configuration for a runnable service.
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return fmt.Errorf("openai_key is required (or set OPENAI_API_KEY)")
	}
	if c.Gateway.ReapAfter < c.Gateway.IdleAfter {
		return fmt.Errorf("gateway reap_after must not be shorter than idle_after")
	}
	if c.Gateway.MessageLimit < 1 || c.Gateway.SummonLimit < 1 {
		return fmt.Errorf("admission limits must be positive")
	}
	return nil
}
