package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nidhogg/calcaro/internal/agent"
	"github.com/nidhogg/calcaro/internal/command"
	"github.com/nidhogg/calcaro/internal/config"
	"github.com/nidhogg/calcaro/internal/gateway"
	"github.com/nidhogg/calcaro/internal/prompt"
	"github.com/nidhogg/calcaro/internal/provider"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "calcaro",
	Short:         "Talk to the CALCARO car sales assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "JSON config file (overrides CALCARO_CONFIG)")
	pf.String("scenario", "", "scenario file (.toml or .yaml)")
	pf.String("model", "", "model name sent to the primary provider")
	pf.Bool("trace", false, "log every model response, function call and thought")

	rootCmd.AddCommand(serveCmd, toolsCmd, promptCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything one conversation needs, independent of where its
// input comes from.
type app struct {
	cfg      *config.Config
	scenario prompt.Scenario
	history  *agent.History
	tools    *agent.Registry
	router   *provider.Router
	commands *command.Registry
	logger   *zap.Logger
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CALCARO_CONFIG", path)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if s, _ := cmd.Flags().GetString("scenario"); s != "" {
		cfg.Conversation.Scenario = s
	}
	if m, _ := cmd.Flags().GetString("model"); m != "" {
		cfg.Conversation.Model = m
	}
	if cmd.Flags().Changed("trace") {
		cfg.Conversation.Trace, _ = cmd.Flags().GetBool("trace")
	}
	return cfg, nil
}

func newLogger(level string, trace bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = lvl
	}
	if trace {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func loadScenario(path string) (prompt.Scenario, error) {
	if path == "" {
		return prompt.DefaultScenario(), nil
	}
	return prompt.LoadScenario(path)
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Server.LogLevel, cfg.Conversation.Trace)
	if err != nil {
		return nil, err
	}
	scenario, err := loadScenario(cfg.Conversation.Scenario)
	if err != nil {
		return nil, err
	}
	router, err := provider.NewRouterFromConfig(cfg.ProviderConfigs(), cfg.Conversation.Fallbacks, cfg.Conversation.RatePerMinute, logger)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}

	history := agent.NewHistory(prompt.Smart(scenario))
	commands := command.NewRegistry()
	command.RegisterBuiltins(commands)
	command.RegisterProviderCommands(commands, router)

	return &app{
		cfg:      cfg,
		scenario: scenario,
		history:  history,
		tools:    agent.NewSalesRegistry(),
		router:   router,
		commands: commands,
		logger:   logger,
	}, nil
}

func (a *app) speaker() string {
	if a.scenario.Name == "" {
		return "ASSISTANT"
	}
	return strings.ToUpper(a.scenario.Name)
}

func (a *app) engine(in agent.Input, out agent.Output) *agent.Engine {
	conv := a.cfg.Conversation
	return agent.NewEngine(a.router, a.tools, in, out,
		agent.WithModel(conv.Model),
		agent.WithTrace(conv.Trace),
		agent.WithCallTimeout(conv.CallTimeout()),
		agent.WithMaxFunctionCalls(conv.MaxFunctionCalls),
		agent.WithLogger(a.logger),
	)
}

// runChat holds a conversation on the terminal. Ctrl+C, Ctrl+D and /quit
// end it cleanly; a failed model call ends it with an error.
func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := gateway.NewConsole(a.history, a.commands, a.speaker(), a.logger)
	defer console.Close()

	engine := a.engine(console, console)
	a.logger.Debug("conversation started",
		zap.String("id", engine.ID()), zap.String("provider", a.router.Name()))

	err = engine.Run(ctx, a.history)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
