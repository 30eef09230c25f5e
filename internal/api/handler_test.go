package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/gateway"
	"github.com/nidhogg/calcaro/internal/provider"
	"go.uber.org/zap"
)

type stubProvider struct{ id, name string }

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Chat(context.Context, *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Content: "{}"}, nil
}

type testEnv struct {
	h       *Handler
	gw      *gateway.Gateway
	history *agent.History
	router  *provider.Router
}

// newTestHandler creates a Handler wired with in-memory deps only.
func newTestHandler(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	logger := zap.NewNop()

	router := provider.NewRouter(logger)
	router.Register(&stubProvider{id: "openai", name: "OpenAI"})
	router.Register(&stubProvider{id: "ollama", name: "Ollama"})

	history := agent.NewHistory("You are CALCARO")
	gw := gateway.NewGateway(history, nil, logger)
	restGW := gateway.NewRESTAdapter(logger)
	restGW.SetReplyTimeout(2 * time.Second)
	gw.Register(restGW)
	t.Cleanup(func() { gw.Close() })

	h := NewHandler(gw, restGW, history, agent.NewSalesRegistry(), router, nil, logger)
	return &testEnv{h: h, gw: gw, history: history, router: router}, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/healthz")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestPostMessage(t *testing.T) {
	env, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	go func() {
		line, err := env.gw.Next(context.Background())
		if err != nil {
			return
		}
		env.gw.Say("You said: " + line)
	}()

	resp := postJSON(t, ts, "/api/message", map[string]string{"user_id": "u1", "content": "hello"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var msg gateway.OutboundMessage
	decodeJSON(t, resp, &msg)
	if msg.Content != "You said: hello" {
		t.Errorf("got %q", msg.Content)
	}
}

func TestPostMessageEmpty(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/message", map[string]string{"content": ""})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetHistory(t *testing.T) {
	env, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	env.history.Append(provider.Message{Role: provider.RoleUser, Content: "hi"})
	env.history.Append(provider.Message{Role: provider.RoleAssistant, Content: `{"say":"Hello"}`})

	var visible []provider.Message
	decodeJSON(t, getJSON(t, ts, "/api/history"), &visible)
	if len(visible) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(visible))
	}
	if visible[0].Role != provider.RoleUser {
		t.Errorf("expected user first, got %q", visible[0].Role)
	}

	var all []provider.Message
	decodeJSON(t, getJSON(t, ts, "/api/history?all=true"), &all)
	if len(all) != 3 || all[0].Role != provider.RoleSystem {
		t.Fatalf("expected system prompt first in 3 messages, got %+v", all)
	}
}

func TestListTools(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	var schemas []provider.FunctionSchema
	decodeJSON(t, getJSON(t, ts, "/api/tools"), &schemas)
	names := map[string]bool{}
	for _, s := range schemas {
		names[s.Name] = true
	}
	if !names["recommend_car"] || !names["calculate_insurance"] {
		t.Errorf("missing sales functions: %v", names)
	}
}

func TestProviders(t *testing.T) {
	env, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	var list []providerInfo
	decodeJSON(t, getJSON(t, ts, "/api/providers"), &list)
	if len(list) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(list))
	}
	for _, p := range list {
		if p.Primary != (p.ID == "openai") {
			t.Errorf("provider %s primary=%v", p.ID, p.Primary)
		}
	}

	resp := postJSON(t, ts, "/api/providers/primary", map[string]string{"id": "ollama"})
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.router.Primary() != "ollama" {
		t.Errorf("primary = %q, want ollama", env.router.Primary())
	}

	resp = postJSON(t, ts, "/api/providers/primary", map[string]string{"id": "nope"})
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown provider, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/api/providers/primary", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for missing id, got %d", resp.StatusCode)
	}
}

func TestGetProvider(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/providers/ollama")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var info providerInfo
	decodeJSON(t, resp, &info)
	if info.ID != "ollama" || info.Name != "Ollama" || info.Primary {
		t.Errorf("unexpected provider: %+v", info)
	}

	resp = getJSON(t, ts, "/api/providers/nope")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for unknown provider, got %d", resp.StatusCode)
	}
}

func TestGatewayStatus(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	var status []gateway.AdapterStatus
	decodeJSON(t, getJSON(t, ts, "/api/gateway/status"), &status)
	if len(status) != 1 || status[0].Platform != "rest" || !status[0].Connected {
		t.Errorf("unexpected status: %+v", status)
	}
}
