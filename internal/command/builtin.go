package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nidhogg/calcaro/internal/provider"
)

// RegisterBuiltins adds help, history, prompt and quit.
func RegisterBuiltins(r *Registry) {
	r.Register(&Command{
		Name:        "help",
		Description: "List available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range r.List() {
				fmt.Fprintf(&b, "  %-24s %s\n", c.Usage, c.Description)
			}
			return &CommandResult{Content: b.String()}, nil
		},
	})

	r.Register(&Command{
		Name:        "history",
		Description: "Show the conversation so far; 'all' includes system entries",
		Usage:       "/history [n|all]",
		Handler:     historyCommand,
	})

	r.Register(&Command{
		Name:        "prompt",
		Description: "Show the system prompt",
		Usage:       "/prompt",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			if cc == nil || cc.History == nil {
				return &CommandResult{Content: "No conversation."}, nil
			}
			msgs := cc.History.Messages()
			if len(msgs) == 0 || msgs[0].Role != provider.RoleSystem {
				return &CommandResult{Content: "No system prompt."}, nil
			}
			return &CommandResult{Content: msgs[0].Content}, nil
		},
	})

	r.Register(&Command{
		Name:        "quit",
		Description: "End the conversation",
		Usage:       "/quit",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			return &CommandResult{Content: "Bye!"}, ErrQuit
		},
	})
}

func historyCommand(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	if cc == nil || cc.History == nil {
		return &CommandResult{Content: "No conversation."}, nil
	}
	msgs := cc.History.Messages()

	all := args == "all"
	limit := 0
	if args != "" && !all {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return &CommandResult{Content: "Usage: /history [n|all]"}, nil
		}
		limit = n
	}

	var shown []provider.Message
	for _, m := range msgs {
		if m.Role == provider.RoleSystem && !all {
			continue
		}
		shown = append(shown, m)
	}
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}
	if len(shown) == 0 {
		return &CommandResult{Content: "Nothing said yet."}, nil
	}

	var b strings.Builder
	for _, m := range shown {
		label := string(m.Role)
		if m.Role == provider.RoleFunction {
			label = "function " + m.Name
		}
		fmt.Fprintf(&b, "[%s] %s\n", label, m.Content)
	}
	return &CommandResult{Content: b.String(), Data: shown}, nil
}
