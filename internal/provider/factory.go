package provider

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider type identifiers accepted by New.
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
	TypeOllama    = "ollama"
)

// New builds a provider from its configuration.
func New(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if cfg.ID == "" {
		cfg.ID = cfg.Type
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	switch cfg.Type {
	case TypeOpenAI, "":
		return NewOpenAIProvider(cfg, logger)
	case TypeAnthropic:
		return NewAnthropicProvider(cfg, logger)
	case TypeOllama:
		return NewOllamaProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// NewRouterFromConfig registers every configured provider on a router.
// The first entry is the primary. A non-empty fallbacks list replaces the
// default chain of remaining providers in registration order.
func NewRouterFromConfig(cfgs []ProviderConfig, fallbacks []string, ratePerMinute int, logger *zap.Logger) (*Router, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	r := NewRouter(logger)
	for _, c := range cfgs {
		p, err := New(c, logger)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}
	if len(fallbacks) > 0 {
		for _, id := range fallbacks {
			if _, ok := r.GetProvider(id); !ok {
				return nil, fmt.Errorf("fallback %s: unknown provider", id)
			}
		}
		r.SetFallbacks(fallbacks)
	}
	r.SetRateLimit(ratePerMinute)
	return r, nil
}
