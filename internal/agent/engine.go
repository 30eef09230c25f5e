package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/calcaro/internal/objstream"
	"github.com/nidhogg/calcaro/internal/provider"
	"go.uber.org/zap"
)

// ErrModelTimeout marks a model call that exceeded the per-call timeout.
var ErrModelTimeout = errors.New("model call timed out")

const (
	DefaultCallTimeout      = 60 * time.Second
	DefaultMaxFunctionCalls = 5
	DefaultTimeoutReply     = "Sorry, that took me too long. Could you say that again?"
)

// Input supplies user lines. Next returns io.EOF when the source is exhausted.
type Input interface {
	Next(ctx context.Context) (string, error)
}

// Output receives text meant for the user.
type Output interface {
	Say(text string)
}

// InputFunc adapts a function to Input.
type InputFunc func(ctx context.Context) (string, error)

func (f InputFunc) Next(ctx context.Context) (string, error) { return f(ctx) }

// OutputFunc adapts a function to Output.
type OutputFunc func(text string)

func (f OutputFunc) Say(text string) { f(text) }

// State is a conversation engine state.
type State int

const (
	StateAwaitingInput State = iota
	StateAwaitingModel
	StateDispatchingFunction
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDispatchingFunction:
		return "dispatching_function"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TurnResult describes one model round-trip.
type TurnResult struct {
	Next     State            `json:"next"`
	Function string           `json:"function,omitempty"` // set when the turn was a function call
	Say      string           `json:"say,omitempty"`
	Thought  *ThoughtResponse `json:"thought,omitempty"`
	Usage    provider.Usage   `json:"usage"`
	Steps    []ThinkStep      `json:"steps"`
	Err      error            `json:"-"` // recoverable per-turn failure
}

// Engine drives a single conversation between a user and a model.
type Engine struct {
	id               string
	provider         provider.Provider
	tools            *Registry
	input            Input
	output           Output
	model            string
	trace            bool
	callTimeout      time.Duration
	maxFunctionCalls int
	timeoutReply     string
	logger           *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel sets the model id sent with every request. Empty means the
// provider's default.
func WithModel(model string) Option { return func(e *Engine) { e.model = model } }

// WithTrace logs raw responses, dispatched calls and thoughts at debug level.
func WithTrace(on bool) Option { return func(e *Engine) { e.trace = on } }

// WithCallTimeout bounds each model call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithMaxFunctionCalls bounds consecutive function dispatches between user inputs.
func WithMaxFunctionCalls(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxFunctionCalls = n
		}
	}
}

// WithTimeoutReply sets the text said to the user after a model timeout.
// Empty disables it.
func WithTimeoutReply(text string) Option { return func(e *Engine) { e.timeoutReply = text } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a conversation engine.
func NewEngine(p provider.Provider, tools *Registry, in Input, out Output, opts ...Option) *Engine {
	e := &Engine{
		id:               uuid.New().String(),
		provider:         p,
		tools:            tools,
		input:            in,
		output:           out,
		callTimeout:      DefaultCallTimeout,
		maxFunctionCalls: DefaultMaxFunctionCalls,
		timeoutReply:     DefaultTimeoutReply,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tools == nil {
		e.tools, _ = NewRegistry()
	}
	e.logger = e.logger.With(zap.String("conversation", e.id))
	return e
}

// ID returns the conversation id.
func (e *Engine) ID() string { return e.id }

// Tools returns the engine's function registry.
func (e *Engine) Tools() *Registry { return e.tools }

// Run drives the conversation until the input is exhausted (nil), ctx is
// cancelled (ctx.Err()) or the model transport fails.
func (e *Engine) Run(ctx context.Context, h *History) error {
	e.logger.Info("conversation started", zap.Int("history", h.Len()))
	state := StateAwaitingInput
	calls := 0

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("conversation cancelled", zap.Error(err))
			return err
		}

		switch state {
		case StateAwaitingInput:
			line, err := e.input.Next(ctx)
			if errors.Is(err, io.EOF) {
				e.logger.Info("input closed")
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("read input: %w", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.Append(provider.Message{Role: provider.RoleUser, Content: line})
			calls = 0
			state = StateAwaitingModel

		case StateAwaitingModel:
			res, err := e.Step(ctx, h)
			if err != nil {
				return err
			}
			next := res.Next
			if res.Function != "" {
				calls++
				if calls >= e.maxFunctionCalls && next == StateAwaitingModel {
					e.logger.Warn("function call limit reached, waiting for input",
						zap.Int("calls", calls))
					next = StateAwaitingInput
				}
			} else {
				calls = 0
			}
			e.logger.Debug("state transition",
				zap.Stringer("from", state), zap.Stringer("to", next))
			state = next

		default:
			return nil
		}
	}
}

// Step performs one model round-trip against h and reports the next state.
// Recoverable failures are reported in TurnResult.Err; the returned error is
// non-nil only when the conversation cannot continue.
func (e *Engine) Step(ctx context.Context, h *History) (*TurnResult, error) {
	res := &TurnResult{Next: StateAwaitingInput}

	req := &provider.ChatRequest{
		Model:     e.model,
		Messages:  h.Messages(),
		Functions: e.tools.Schemas(),
		JSONMode:  true,
	}
	res.record(StepModelCall, fmt.Sprintf("%d messages", len(req.Messages)))

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	resp, err := e.provider.Chat(callCtx, req)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("model call timed out",
				zap.Duration("timeout", e.callTimeout), zap.Error(err))
			res.Err = fmt.Errorf("%w: %v", ErrModelTimeout, err)
			if e.timeoutReply != "" {
				e.output.Say(e.timeoutReply)
			}
			return res, nil
		}
		return nil, fmt.Errorf("model call: %w", err)
	}
	res.Usage = resp.Usage
	res.Steps[len(res.Steps)-1].TokensUsed = resp.Usage.TotalTokens

	if e.trace {
		e.logger.Debug("model response",
			zap.String("content", resp.Content),
			zap.String("finish_reason", resp.FinishReason),
			zap.Bool("function_call", resp.FunctionCall != nil))
	}

	if fc := resp.FunctionCall; fc != nil && fc.Name != "" {
		if err := e.dispatch(ctx, h, fc, res); err != nil {
			return nil, err
		}
		return res, nil
	}

	e.reply(h, resp.Content, res)
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, h *History, fc *provider.FunctionCall, res *TurnResult) error {
	e.logger.Debug("state transition",
		zap.Stringer("from", StateAwaitingModel), zap.Stringer("to", StateDispatchingFunction))
	res.Function = fc.Name
	res.Next = StateAwaitingModel
	res.record(StepFunctionCall, fc.Name+" "+fc.Arguments)
	if e.trace {
		e.logger.Debug("function call",
			zap.String("name", fc.Name), zap.String("arguments", fc.Arguments))
	}

	result, err := e.tools.Invoke(ctx, fc.Name, fc.Arguments)
	var payload []byte
	switch {
	case errors.Is(err, ErrUnknownFunction):
		e.logger.Warn("model called unknown function", zap.String("name", fc.Name))
		res.Err = err
		return nil
	case errors.Is(err, ErrInvalidArguments):
		e.logger.Warn("model sent invalid arguments",
			zap.String("name", fc.Name), zap.String("arguments", fc.Arguments), zap.Error(err))
		res.Err = err
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("function failed", zap.String("name", fc.Name), zap.Error(err))
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	default:
		payload, err = json.Marshal(result)
		if err != nil {
			e.logger.Warn("function result not serializable", zap.String("name", fc.Name), zap.Error(err))
			payload, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
	}

	h.Append(provider.Message{Role: provider.RoleFunction, Name: fc.Name, Content: string(payload)})
	res.record(StepFunctionResult, string(payload))
	return nil
}

func (e *Engine) reply(h *History, content string, res *TurnResult) {
	if strings.TrimSpace(content) == "" {
		content = "{}"
	}
	obj := objstream.First(content)
	if obj == nil {
		e.logger.Debug("no thought object in model response", zap.String("content", content))
		res.record(StepDropped, content)
		return
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		res.record(StepDropped, content)
		return
	}
	h.Append(provider.Message{Role: provider.RoleSystem, Content: string(raw)})
	res.record(StepThought, string(raw))

	thought := decodeThought(obj)
	res.Thought = &thought
	if e.trace {
		e.logger.Debug("thought",
			zap.String("focus", thought.Thoughts.Focus),
			zap.String("reasoning", thought.Thoughts.Reasoning),
			zap.String("next_goal", thought.Thoughts.NextGoal))
	}
	if thought.Say == "" {
		return
	}
	e.output.Say(thought.Say)
	h.Append(provider.Message{Role: provider.RoleAssistant, Content: thought.Say})
	res.Say = thought.Say
	res.record(StepSay, thought.Say)
}
