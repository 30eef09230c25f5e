package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/calcaro/internal/provider"
)

// ProviderSwitcher lists model providers and changes which one is tried first.
type ProviderSwitcher interface {
	Primary() string
	SetPrimary(providerID string) error
	ListProviders() []provider.Provider
}

// RegisterProviderCommands registers /provider.
func RegisterProviderCommands(reg *Registry, switcher ProviderSwitcher) {
	reg.Register(&Command{
		Name:        "provider",
		Description: "List model providers or switch the primary one",
		Usage:       "/provider [provider_id]",
		Handler: func(_ context.Context, args string, _ *CommandContext) (*CommandResult, error) {
			id := strings.TrimSpace(args)
			if id == "" {
				primary := switcher.Primary()
				var sb strings.Builder
				sb.WriteString("Available providers:\n")
				for _, p := range switcher.ListProviders() {
					marker := "  "
					if p.ID() == primary {
						marker = "* "
					}
					fmt.Fprintf(&sb, "%s%s (%s)\n", marker, p.Name(), p.ID())
				}
				sb.WriteString("\nUsage: /provider <provider_id>")
				return &CommandResult{Content: sb.String()}, nil
			}
			if err := switcher.SetPrimary(id); err != nil {
				return &CommandResult{Content: fmt.Sprintf("Cannot switch: %v", err)}, nil
			}
			return &CommandResult{
				Content: fmt.Sprintf("Primary provider switched to %q.", id),
			}, nil
		},
	})
}
