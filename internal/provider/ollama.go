package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	config ProviderConfig
	client *api.Client
	logger *zap.Logger
}

// NewOllamaProvider creates a provider for the Ollama server at cfg.Endpoint.
func NewOllamaProvider(cfg ProviderConfig, logger *zap.Logger) (*OllamaProvider, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1:latest"
	}

	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", cfg.Endpoint, err)
	}

	return &OllamaProvider{
		config: cfg,
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		logger: logger,
	}, nil
}

func (p *OllamaProvider) ID() string   { return p.config.ID }
func (p *OllamaProvider) Name() string { return p.config.Name }

// Chat sends a non-streaming chat request to Ollama.
func (p *OllamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	stream := false

	ollamaReq := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   &stream,
	}
	if req.JSONMode {
		ollamaReq.Format = json.RawMessage(`"json"`)
	}
	if len(req.Functions) > 0 {
		ollamaReq.Tools = toOllamaTools(req.Functions)
	}
	if req.Temperature > 0 {
		ollamaReq.Options = map[string]any{"temperature": req.Temperature}
	}

	var final api.ChatResponse
	err := p.client.Chat(ctx, ollamaReq, func(r api.ChatResponse) error {
		final = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	resp := &ChatResponse{
		Model:        final.Model,
		Content:      final.Message.Content,
		FinishReason: final.DoneReason,
		Usage: Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}
	if len(final.Message.ToolCalls) > 0 {
		call := final.Message.ToolCalls[0]
		args, err := json.Marshal(map[string]any(call.Function.Arguments))
		if err != nil {
			return nil, fmt.Errorf("encode tool arguments: %w", err)
		}
		resp.FunctionCall = &FunctionCall{Name: call.Function.Name, Arguments: string(args)}
	}
	return resp, nil
}

func toOllamaMessages(messages []Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		role := string(msg.Role)
		if msg.Role == RoleFunction {
			role = "tool"
		}
		result[i] = api.Message{Role: role, Content: msg.Content}
	}
	return result
}

func toOllamaTools(fns []FunctionSchema) []api.Tool {
	result := make([]api.Tool, len(fns))
	for i, fn := range fns {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   requiredFields(fn.Parameters),
			Properties: make(map[string]api.ToolProperty),
		}
		for name, raw := range schemaProperties(fn.Parameters) {
			prop := api.ToolProperty{}
			if m, ok := raw.(map[string]any); ok {
				if t, ok := m["type"].(string); ok {
					prop.Type = api.PropertyType{t}
				}
				if d, ok := m["description"].(string); ok {
					prop.Description = d
				}
			}
			params.Properties[name] = prop
		}
		result[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
