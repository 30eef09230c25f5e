package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/mcp"
	"github.com/nidhogg/calcaro/internal/prompt"
	"github.com/spf13/cobra"
)

// --- tools ---

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Serve the sales functions as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		trace, _ := cmd.Flags().GetBool("trace")
		logger, err := newLogger("", trace)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return mcp.NewServer("calcaro", agent.NewSalesRegistry(), logger).Serve(ctx, os.Stdin, os.Stdout)
	},
}

// --- prompt ---

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the system prompt",
	Long: `Print the system prompt.

Examples:
  calcaro prompt
  calcaro prompt --scenario ./dealer.yaml
  calcaro prompt --template autonomous`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tmpl, _ := cmd.Flags().GetString("template")
		switch tmpl {
		case "smart":
			path, _ := cmd.Flags().GetString("scenario")
			if path == "" {
				path = os.Getenv("CALCARO_SCENARIO")
			}
			s, err := loadScenario(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), prompt.Smart(s))
		case "autonomous":
			fmt.Fprint(cmd.OutOrStdout(), prompt.Autonomous(salesAutonomousSpec(agent.NewSalesRegistry())))
		default:
			return fmt.Errorf("unknown template %q, want smart or autonomous", tmpl)
		}
		return nil
	},
}

func init() {
	promptCmd.Flags().String("template", "smart", "prompt template: smart or autonomous")
}

// salesAutonomousSpec describes the sales functions as autonomous commands.
func salesAutonomousSpec(tools *agent.Registry) prompt.AutonomousSpec {
	spec := prompt.AutonomousSpec{
		Role: prompt.StandardRole("You are CALCARO, an AI that finds cars and insurance for a customer"),
		Goals: []string{
			prompt.Goal("recommend", "Find cars matching the customer's brand, price, color and year"),
			prompt.Goal("insure", "Quote insurance for the car the customer picked"),
		},
		Constraints: []string{
			"No user assistance",
			`Exclusively use the commands listed in double quotes e.g. "command name"`,
		},
		Evaluations: []string{
			"Continuously review and analyze your actions to ensure you are performing to the best of your abilities.",
			"Every command has a cost, so be smart and efficient. Aim to complete tasks in the least number of steps.",
		},
	}
	for _, fs := range tools.Schemas() {
		spec.Commands = append(spec.Commands, prompt.Command(prompt.CommandSpec{
			Name:        fmt.Sprintf("%q", fs.Name),
			Description: fs.Description,
			Args:        schemaParams(fs.Parameters),
		}))
	}
	return spec
}

func schemaParams(schema map[string]any) []prompt.Param {
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]prompt.Param, 0, len(names))
	for _, name := range names {
		desc := ""
		if p, ok := props[name].(map[string]any); ok {
			desc, _ = p["description"].(string)
		}
		params = append(params, prompt.Param{Name: name, Description: desc})
	}
	return params
}
