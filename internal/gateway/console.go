package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/command"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

var (
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// LineReader reads edited lines from a terminal. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// Console runs the conversation in a terminal. It is the engine's Input
// and Output; slash commands are answered locally.
type Console struct {
	reader   LineReader
	closer   io.Closer
	out      io.Writer
	renderer *glamour.TermRenderer
	commands *command.Registry
	history  *agent.History
	speaker  string
	logger   *zap.Logger
}

var (
	_ agent.Input  = (*Console)(nil)
	_ agent.Output = (*Console)(nil)
)

// NewConsole opens the terminal for line editing. speaker labels replies.
func NewConsole(history *agent.History, commands *command.Registry, speaker string, logger *zap.Logger) *Console {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		logger.Debug("markdown renderer unavailable", zap.Error(err))
		renderer = nil
	}

	c := newConsole(line, os.Stdout, history, commands, speaker, logger)
	c.closer = line
	c.renderer = renderer
	return c
}

func newConsole(r LineReader, out io.Writer, history *agent.History, commands *command.Registry, speaker string, logger *zap.Logger) *Console {
	return &Console{
		reader:   r,
		out:      out,
		commands: commands,
		history:  history,
		speaker:  speaker,
		logger:   logger,
	}
}

type readResult struct {
	line string
	err  error
}

// read runs Prompt in a goroutine so ctx can interrupt the wait. liner has
// no way to abort a pending Prompt, so after a cancel that goroutine stays
// blocked until the terminal yields a line; cancel only happens on shutdown.
func (c *Console) read(ctx context.Context) (string, error) {
	ch := make(chan readResult, 1)
	go func() {
		line, err := c.reader.Prompt(promptStyle.Render("you> "))
		ch <- readResult{line, err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Next reads the next non-empty, non-command line. Ctrl+C, Ctrl+D and
// /quit end the input with io.EOF.
func (c *Console) Next(ctx context.Context) (string, error) {
	for {
		line, err := c.read(ctx)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.reader.AppendHistory(line)

		if c.commands == nil || !command.IsCommand(line) {
			return line, nil
		}
		res, err := c.commands.Dispatch(ctx, line, &command.CommandContext{
			Platform: "console",
			History:  c.history,
		})
		if res != nil && res.Content != "" {
			fmt.Fprintln(c.out, noticeStyle.Render(res.Content))
		}
		if errors.Is(err, command.ErrQuit) {
			return "", io.EOF
		}
		if err != nil {
			c.logger.Debug("console command failed", zap.String("line", line), zap.Error(err))
			fmt.Fprintln(c.out, noticeStyle.Render("command failed: "+err.Error()))
		}
	}
}

// Say prints a reply, rendered as markdown when the terminal supports it.
func (c *Console) Say(text string) {
	body := text
	if c.renderer != nil {
		if rendered, err := c.renderer.Render(text); err == nil {
			body = strings.TrimSpace(rendered)
		}
	}
	fmt.Fprintf(c.out, "%s %s\n", speakerStyle.Render(c.speaker+":"), body)
}

// Close restores the terminal.
func (c *Console) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
