package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/command"
	"github.com/nidhogg/calcaro/internal/gateway"
	"github.com/nidhogg/calcaro/internal/provider"
	"go.uber.org/zap"
)

// ProviderDirectory lists, looks up and switches model providers.
type ProviderDirectory interface {
	command.ProviderSwitcher
	GetProvider(id string) (provider.Provider, bool)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	gw        *gateway.Gateway
	restGW    *gateway.RESTAdapter
	history   *agent.History
	tools     *agent.Registry
	providers ProviderDirectory
	origins   []string
	logger    *zap.Logger
}

// NewHandler creates a new API handler. An empty origins list allows any
// origin.
func NewHandler(
	gw *gateway.Gateway,
	restGW *gateway.RESTAdapter,
	history *agent.History,
	tools *agent.Registry,
	providers ProviderDirectory,
	origins []string,
	logger *zap.Logger,
) *Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		gw:        gw,
		restGW:    restGW,
		history:   history,
		tools:     tools,
		providers: providers,
		origins:   origins,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/message", h.restGW.HandleMessage)
		r.Get("/history", h.getHistory)
		r.Get("/tools", h.listTools)

		r.Get("/providers", h.listProviders)
		r.Get("/providers/{id}", h.getProvider)
		r.Post("/providers/primary", h.setPrimary)

		r.Get("/gateway/status", h.gatewayStatus)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getHistory returns the conversation. System entries are included only
// with ?all=true.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	msgs := h.history.Messages()
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == provider.RoleSystem && !all {
			continue
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tools.Schemas())
}

type providerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	primary := h.providers.Primary()
	list := h.providers.ListProviders()
	out := make([]providerInfo, 0, len(list))
	for _, p := range list {
		out = append(out, providerInfo{ID: p.ID(), Name: p.Name(), Primary: p.ID() == primary})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.providers.GetProvider(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}
	writeJSON(w, http.StatusOK, providerInfo{ID: p.ID(), Name: p.Name(), Primary: p.ID() == h.providers.Primary()})
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if err := h.providers.SetPrimary(req.ID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info("primary provider switched", zap.String("provider", req.ID))
	writeJSON(w, http.StatusOK, map[string]string{"primary": req.ID})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
