package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newOpenAITestServer(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(t *testing.T, endpoint string) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(ProviderConfig{
		ID:       "openai",
		Name:     "OpenAI",
		Endpoint: endpoint,
		APIKey:   "test-key",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p
}

func TestOpenAIChatFunctionCall(t *testing.T) {
	reply := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4-turbo",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": null,
				"function_call": {"name": "calculate_insurance", "arguments": "{\"price\":20000}"}
			},
			"finish_reason": "function_call"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
	var body map[string]any
	srv := newOpenAITestServer(t, reply, &body)
	p := newTestOpenAI(t, srv.URL)

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "gpt-4-turbo",
		Messages: []Message{
			{Role: RoleSystem, Content: "prompt"},
			{Role: RoleUser, Content: "insure my car"},
			{Role: RoleFunction, Name: "recommend_car", Content: `{"brand":"honda"}`},
		},
		Functions: []FunctionSchema{{
			Name:        "calculate_insurance",
			Description: "Calculate the insurance of the car",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"price": map[string]any{"type": "number"}},
			},
		}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.FunctionCall == nil {
		t.Fatal("expected a function call")
	}
	if resp.FunctionCall.Name != "calculate_insurance" {
		t.Errorf("function name = %q", resp.FunctionCall.Name)
	}
	if resp.FunctionCall.Arguments != `{"price":20000}` {
		t.Errorf("arguments = %q", resp.FunctionCall.Arguments)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}

	if body["model"] != "gpt-4-turbo" {
		t.Errorf("request model = %v", body["model"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", body["response_format"])
	}
	fns, _ := body["functions"].([]any)
	if len(fns) != 1 {
		t.Fatalf("functions = %v, want one entry", body["functions"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	fnMsg, _ := msgs[2].(map[string]any)
	if fnMsg["role"] != "function" || fnMsg["name"] != "recommend_car" {
		t.Errorf("function message = %v", fnMsg)
	}
}

func TestOpenAIChatContent(t *testing.T) {
	reply := `{
		"id": "chatcmpl-2",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4-turbo",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "{\"say\":\"Hello!\"}"},
			"finish_reason": "stop"
		}]
	}`
	srv := newOpenAITestServer(t, reply, nil)
	p := newTestOpenAI(t, srv.URL)

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.FunctionCall != nil {
		t.Errorf("unexpected function call %+v", resp.FunctionCall)
	}
	if resp.Content != `{"say":"Hello!"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}

func TestOpenAIChatEmptyChoices(t *testing.T) {
	srv := newOpenAITestServer(t, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
	p := newTestOpenAI(t, srv.URL)

	if _, err := p.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(ProviderConfig{ID: "openai"}, zap.NewNop()); err == nil {
		t.Fatal("expected error without api key")
	}
}
