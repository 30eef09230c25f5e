package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Router fronts a primary provider with an ordered fallback chain and an
// optional request rate limit. It satisfies Provider itself.
type Router struct {
	providers map[string]Provider
	order     []string // registration order
	primary   string
	fallbacks []string
	limiter   *rate.Limiter
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider to the router. The first provider registered
// becomes the primary; later ones join the fallback chain.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
	if r.primary == "" {
		r.primary = p.ID()
	} else if p.ID() != r.primary {
		r.fallbacks = append(r.fallbacks, p.ID())
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetPrimary sets the provider tried first.
func (r *Router) SetPrimary(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[providerID]; !ok {
		return fmt.Errorf("unknown provider %s", providerID)
	}
	r.primary = providerID
	r.fallbacks = r.fallbacks[:0]
	for _, id := range r.order {
		if id != providerID {
			r.fallbacks = append(r.fallbacks, id)
		}
	}
	return nil
}

// Primary returns the id of the provider tried first.
func (r *Router) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// SetFallbacks replaces the fallback chain.
func (r *Router) SetFallbacks(providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append([]string(nil), providerIDs...)
}

// SetRateLimit caps outgoing requests to perMinute per minute.
// Zero or negative disables the limit.
func (r *Router) SetRateLimit(perMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if perMinute <= 0 {
		r.limiter = nil
		return
	}
	r.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}

func (r *Router) ID() string { return "router" }

func (r *Router) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[r.primary]; ok {
		return p.Name()
	}
	return "router"
}

// Chat sends the request to the primary provider and walks the fallback
// chain on failure. Context errors are returned immediately.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	primary, ok := r.providers[r.primary]
	fallbacks := append([]string(nil), r.fallbacks...)
	limiter := r.limiter
	first := ""
	if len(r.order) > 0 {
		first = r.order[0]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no provider available")
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails early when the next token lands past the deadline.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if _, ok := ctx.Deadline(); ok {
				return nil, fmt.Errorf("rate limit: %w: %v", context.DeadlineExceeded, err)
			}
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	// The requested model belongs to the first registered provider; any
	// other provider falls back to its own configured model.
	forProvider := func(id string) *ChatRequest {
		if id == first || req.Model == "" {
			return req
		}
		cp := *req
		cp.Model = ""
		return &cp
	}

	resp, err := primary.Chat(ctx, forProvider(primary.ID()))
	if err == nil {
		return resp, nil
	}
	if isContextErr(ctx, err) {
		return nil, err
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("provider", primary.ID()), zap.Error(err))

	for _, fbID := range fallbacks {
		r.mu.RLock()
		fb, ok := r.providers[fbID]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, forProvider(fbID))
		if err == nil {
			return resp, nil
		}
		if isContextErr(ctx, err) {
			return nil, err
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed: %w", err)
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers in registration order.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
