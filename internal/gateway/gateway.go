package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/command"
	"go.uber.org/zap"
)

const (
	inboundQueueSize = 32
	sendTimeout      = 10 * time.Second
)

// Gateway fans messages from every registered adapter into one
// conversation. It is the engine's Input and Output: Next hands over the
// next queued message and Say answers whoever sent it.
type Gateway struct {
	adapters map[string]Adapter
	inbound  chan *InboundMessage
	commands *command.Registry
	history  *agent.History
	current  *InboundMessage
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	logger   *zap.Logger
}

var (
	_ agent.Input  = (*Gateway)(nil)
	_ agent.Output = (*Gateway)(nil)
)

// NewGateway creates a gateway for the conversation in history. Slash
// commands are answered directly when commands is non-nil.
func NewGateway(history *agent.History, commands *command.Registry, logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		inbound:  make(chan *InboundMessage, inboundQueueSize),
		commands: commands,
		history:  history,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Register adds an adapter and wires its message handler.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(g.handle)
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

func (g *Gateway) handle(msg *InboundMessage) {
	if g.commands != nil && command.IsCommand(msg.Content) {
		g.runCommand(msg)
		return
	}
	select {
	case g.inbound <- msg:
	case <-g.done:
	}
}

func (g *Gateway) runCommand(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	res, err := g.commands.Dispatch(ctx, msg.Content, &command.CommandContext{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		History:   g.history,
	})
	content := ""
	switch {
	case errors.Is(err, command.ErrQuit):
		content = "The conversation can only be ended by the operator."
	case err != nil:
		content = fmt.Sprintf("Command failed: %v", err)
	case res != nil:
		content = res.Content
	}
	g.reply(ctx, msg, content)
}

// Next blocks until a message arrives. It returns io.EOF after Close.
func (g *Gateway) Next(ctx context.Context) (string, error) {
	select {
	case msg := <-g.inbound:
		g.mu.Lock()
		g.current = msg
		g.mu.Unlock()
		return msg.Content, nil
	case <-g.done:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Say sends text to the sender of the message currently being answered.
func (g *Gateway) Say(text string) {
	g.mu.RLock()
	msg := g.current
	g.mu.RUnlock()
	if msg == nil {
		g.logger.Warn("reply dropped, no active message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	g.reply(ctx, msg, text)
}

func (g *Gateway) reply(ctx context.Context, to *InboundMessage, text string) {
	g.mu.RLock()
	adapter, ok := g.adapters[to.Platform]
	g.mu.RUnlock()
	if !ok {
		g.logger.Warn("no adapter for platform", zap.String("platform", to.Platform))
		return
	}
	err := adapter.Send(ctx, &OutboundMessage{
		Platform:  to.Platform,
		ChannelID: to.ChannelID,
		Content:   text,
		ReplyTo:   to.ReplyTo,
	})
	if err != nil {
		g.logger.Warn("reply failed",
			zap.String("platform", to.Platform), zap.String("channel", to.ChannelID), zap.Error(err))
	}
}

// Close shuts down all adapters and ends the input stream.
func (g *Gateway) Close() error {
	g.once.Do(func() { close(g.done) })

	g.mu.RLock()
	defer g.mu.RUnlock()
	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Status reports every adapter. Adapters without their own status are
// reported as connected.
func (g *Gateway) Status() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]AdapterStatus, 0, len(g.adapters))
	for platform, adapter := range g.adapters {
		if r, ok := adapter.(interface{ Status() AdapterStatus }); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, AdapterStatus{Platform: platform, Connected: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Adapters returns the list of registered platform names.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	return names
}
