package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	platform string
	handler  MessageHandler

	mu     sync.Mutex
	sent   []*OutboundMessage
	closed bool
}

func (f *fakeAdapter) Platform() string              { return f.platform }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) OnMessage(h MessageHandler)    { f.handler = h }
func (f *fakeAdapter) Send(_ context.Context, m *OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAdapter) messages() []*OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*OutboundMessage(nil), f.sent...)
}

type statusAdapter struct {
	fakeAdapter
}

func (s *statusAdapter) Status() AdapterStatus {
	return AdapterStatus{Platform: s.platform, Connected: false, Error: "token rejected"}
}

func newTestGateway(t *testing.T) (*Gateway, *fakeAdapter) {
	t.Helper()
	reg := command.NewRegistry()
	command.RegisterBuiltins(reg)
	gw := NewGateway(agent.NewHistory("system prompt"), reg, zap.NewNop())
	fa := &fakeAdapter{platform: "fake"}
	gw.Register(fa)
	return gw, fa
}

func TestGatewayBridgesMessages(t *testing.T) {
	gw, fa := newTestGateway(t)

	fa.handler(&InboundMessage{Platform: "fake", ChannelID: "c1", Content: "hi", ReplyTo: "m1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := gw.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", line)

	gw.Say("hello there")
	sent := fa.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].ChannelID)
	assert.Equal(t, "m1", sent[0].ReplyTo)
	assert.Equal(t, "hello there", sent[0].Content)
}

func TestGatewayAnswersCommandsDirectly(t *testing.T) {
	gw, fa := newTestGateway(t)

	fa.handler(&InboundMessage{Platform: "fake", ChannelID: "c1", Content: "/help"})

	sent := fa.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "Available commands")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gw.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGatewayRefusesRemoteQuit(t *testing.T) {
	gw, fa := newTestGateway(t)

	fa.handler(&InboundMessage{Platform: "fake", ChannelID: "c1", Content: "/quit"})

	sent := fa.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "operator")

	gw.Close()
	_, err := gw.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestGatewayCloseEndsInput(t *testing.T) {
	gw, fa := newTestGateway(t)

	require.NoError(t, gw.Close())
	require.NoError(t, gw.Close())

	_, err := gw.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, fa.closed)
}

func TestGatewaySayWithoutMessage(t *testing.T) {
	gw, fa := newTestGateway(t)
	gw.Say("nobody asked")
	assert.Empty(t, fa.messages())
}

func TestGatewayStatus(t *testing.T) {
	gw, _ := newTestGateway(t)
	gw.Register(&statusAdapter{fakeAdapter{platform: "alpha"}})

	status := gw.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "alpha", status[0].Platform)
	assert.False(t, status[0].Connected)
	assert.Equal(t, "token rejected", status[0].Error)
	assert.Equal(t, "fake", status[1].Platform)
	assert.True(t, status[1].Connected)

	assert.ElementsMatch(t, []string{"alpha", "fake"}, gw.Adapters())
}

type scriptedLines struct {
	lines   []string
	history []string
}

func (s *scriptedLines) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) { s.history = append(s.history, item) }

func newTestConsole(lines ...string) (*Console, *scriptedLines, *strings.Builder) {
	reg := command.NewRegistry()
	command.RegisterBuiltins(reg)
	r := &scriptedLines{lines: lines}
	out := &strings.Builder{}
	return newConsole(r, out, agent.NewHistory("be helpful"), reg, "CALCARO", zap.NewNop()), r, out
}

func TestConsoleSkipsBlankLines(t *testing.T) {
	c, r, _ := newTestConsole("", "   ", "  hello  ")

	line, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
	assert.Equal(t, []string{"hello"}, r.history)

	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConsoleCommands(t *testing.T) {
	c, _, out := newTestConsole("/prompt", "/unknown", "car please")

	line, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "car please", line)
	assert.Contains(t, out.String(), "be helpful")
	assert.Contains(t, out.String(), "Unknown command: /unknown")
}

func TestConsoleQuit(t *testing.T) {
	c, _, out := newTestConsole("/quit", "never read")

	_, err := c.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
	assert.Contains(t, out.String(), "Bye!")
}

func TestConsoleSay(t *testing.T) {
	c, _, out := newTestConsole()
	c.Say("Welcome to the showroom")
	assert.Contains(t, out.String(), "CALCARO:")
	assert.Contains(t, out.String(), "Welcome to the showroom")
	assert.NoError(t, c.Close())
}

type blockingLines struct{ release chan struct{} }

func (b *blockingLines) Prompt(string) (string, error) {
	<-b.release
	return "", io.EOF
}

func (b *blockingLines) AppendHistory(string) {}

func TestConsoleCancelWhileReading(t *testing.T) {
	b := &blockingLines{release: make(chan struct{})}
	defer close(b.release)
	c := newConsole(b, io.Discard, nil, nil, "CALCARO", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
