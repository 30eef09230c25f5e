package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicProvider implements the Provider interface for the Claude API.
//
// Claude has no function role and no JSON response mode. Leading system
// messages become the system prompt, later ones and function results are
// rendered as user text so the history order is preserved.
type AnthropicProvider struct {
	config ProviderConfig
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider %q: api key is required", cfg.ID)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.Endpoint),
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &AnthropicProvider{
		config: cfg,
		client: anthropic.NewClient(opts...),
		logger: logger,
	}, nil
}

func (p *AnthropicProvider) ID() string   { return p.config.ID }
func (p *AnthropicProvider) Name() string { return p.config.Name }

// Chat sends a non-streaming chat request to Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, system := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Functions) > 0 {
		params.Tools = toAnthropicTools(req.Functions)
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	resp := &ChatResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Raw: msg.RawJSON(),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			if resp.FunctionCall == nil {
				resp.FunctionCall = &FunctionCall{Name: b.Name, Arguments: string(b.Input)}
			}
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// toAnthropicMessages converts history into Claude turns. Consecutive
// messages that map to the same role are merged into one turn.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var (
		system  []anthropic.TextBlockParam
		result  []anthropic.MessageParam
		blocks  []anthropic.ContentBlockParamUnion
		current Role
	)

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if current == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, msg := range messages {
		role := RoleUser
		text := msg.Content
		switch msg.Role {
		case RoleSystem:
			if len(result) == 0 && len(blocks) == 0 {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
				continue
			}
			text = "[system] " + msg.Content
		case RoleFunction:
			text = fmt.Sprintf("[function_call] %s: %s", msg.Name, msg.Content)
		case RoleAssistant:
			role = RoleAssistant
		}
		if role != current {
			flush()
			current = role
		}
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	flush()
	return result, system
}

func toAnthropicTools(fns []FunctionSchema) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(fns))
	for i, fn := range fns {
		schema := anthropic.ToolInputSchemaParam{
			Properties: fn.Parameters["properties"],
		}
		if required := requiredFields(fn.Parameters); len(required) > 0 {
			schema.Required = required
		}
		result[i] = anthropic.ToolUnionParamOfTool(schema, fn.Name)
		if fn.Description != "" {
			result[i].OfTool.Description = anthropic.String(fn.Description)
		}
	}
	return result
}
