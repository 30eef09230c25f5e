package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/nidhogg/calcaro/internal/provider"
)

// ErrMissingAPIKey is returned when a hosted provider has no credential.
var ErrMissingAPIKey = errors.New("missing API key")

const (
	DefaultModel            = "gpt-4-turbo"
	DefaultPort             = 8080
	DefaultCallTimeoutSec   = 60
	DefaultMaxRetries       = 2
	DefaultMaxFunctionCalls = 5
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Conversation ConversationConfig `json:"conversation"`
	Providers    []ProviderConfig   `json:"providers"`
	Gateway      GatewayConfig      `json:"gateway"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	LogLevel       string   `json:"log_level"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type ConversationConfig struct {
	Model            string `json:"model"`
	Scenario         string `json:"scenario,omitempty"` // path to a .toml or .yaml scenario
	Trace            bool   `json:"trace"`
	CallTimeoutSec   int    `json:"call_timeout_sec"`
	MaxFunctionCalls int    `json:"max_function_calls"`
	RatePerMinute    int    `json:"rate_per_minute,omitempty"`
	// Fallbacks lists provider ids tried, in order, when the primary fails.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// CallTimeout returns the per-call model timeout.
func (c ConversationConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSec) * time.Second
}

type ProviderConfig struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Endpoint   string            `json:"endpoint"`
	APIKey     string            `json:"api_key"`
	Model      string            `json:"model,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Provider converts the entry into the provider package's form.
func (p ProviderConfig) Provider() provider.ProviderConfig {
	retries := DefaultMaxRetries
	if p.MaxRetries != nil {
		retries = *p.MaxRetries
	}
	return provider.ProviderConfig{
		ID:         p.ID,
		Type:       p.Type,
		Name:       p.Name,
		Endpoint:   p.Endpoint,
		APIKey:     p.APIKey,
		Model:      p.Model,
		Extra:      p.Extra,
		Timeout:    time.Duration(p.TimeoutSec) * time.Second,
		MaxRetries: retries,
	}
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// FromEnv loads the file named by CALCARO_CONFIG when set, applies
// environment overrides and defaults, and validates the result.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv("CALCARO_CONFIG"); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CALCARO_MODEL"); v != "" {
		c.Conversation.Model = v
	}
	if v := os.Getenv("CALCARO_SCENARIO"); v != "" {
		c.Conversation.Scenario = v
	}
	if v := os.Getenv("CALCARO_TRACE"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CALCARO_TRACE: %w", err)
		}
		c.Conversation.Trace = on
	}
	if v := os.Getenv("CALCARO_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALCARO_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// OpenAIKey returns OPENAI_KEY, falling back to OPENAI_API_KEY.
func OpenAIKey() string {
	if v := os.Getenv("OPENAI_KEY"); v != "" {
		return v
	}
	return os.Getenv("OPENAI_API_KEY")
}

// ApplyDefaults fills zero values. Without any provider entries a single
// OpenAI provider is configured.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Conversation.Model == "" {
		c.Conversation.Model = DefaultModel
	}
	if c.Conversation.CallTimeoutSec <= 0 {
		c.Conversation.CallTimeoutSec = DefaultCallTimeoutSec
	}
	if c.Conversation.MaxFunctionCalls <= 0 {
		c.Conversation.MaxFunctionCalls = DefaultMaxFunctionCalls
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{{ID: provider.TypeOpenAI, Type: provider.TypeOpenAI, Name: "OpenAI"}}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Type == "" {
			p.Type = provider.TypeOpenAI
		}
		if p.ID == "" {
			p.ID = p.Type
		}
		if p.APIKey != "" {
			continue
		}
		switch p.Type {
		case provider.TypeOpenAI:
			p.APIKey = OpenAIKey()
		case provider.TypeAnthropic:
			p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate reports configuration errors that must stop startup.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	for _, p := range c.Providers {
		switch p.Type {
		case provider.TypeOpenAI, provider.TypeAnthropic:
			if p.APIKey == "" {
				errs = append(errs, fmt.Errorf("provider %s: %w", p.ID, ErrMissingAPIKey))
			}
		case provider.TypeOllama:
		default:
			errs = append(errs, fmt.Errorf("provider %s: unknown type %q", p.ID, p.Type))
		}
	}
	known := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		known[p.ID] = true
	}
	for _, id := range c.Conversation.Fallbacks {
		if !known[id] {
			errs = append(errs, fmt.Errorf("fallback %s: unknown provider", id))
		}
	}
	if c.Gateway.Slack.Enabled && (c.Gateway.Slack.BotToken == "" || c.Gateway.Slack.AppToken == "") {
		errs = append(errs, errors.New("slack gateway requires bot_token and app_token"))
	}
	if c.Gateway.Discord.Enabled && c.Gateway.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord gateway requires bot_token"))
	}
	return errors.Join(errs...)
}

// ProviderConfigs returns the provider entries in the provider package's form.
func (c *Config) ProviderConfigs() []provider.ProviderConfig {
	out := make([]provider.ProviderConfig, len(c.Providers))
	for i, p := range c.Providers {
		out[i] = p.Provider()
	}
	return out
}
