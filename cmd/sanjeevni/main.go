// Sanjeevni is a conversational assistant that drives a language model
// through tool calls.
//
// It exposes a JSON and websocket API under /api/v1 and a CLI for one-shot
// questions. Configuration is loaded from a YAML or TOML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	sanjeevni serve              Start the API server
//	sanjeevni init [dir]         Write an example config into dir
//	sanjeevni ask <question>     Ask a single question
//	sanjeevni tools              List the tools offered to the model
//	sanjeevni version            Print version and build information
//	sanjeevni -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/sanjeevni-ai/sanjeevni/internal/agent"
	"github.com/sanjeevni-ai/sanjeevni/internal/api"
	"github.com/sanjeevni-ai/sanjeevni/internal/buildinfo"
	"github.com/sanjeevni-ai/sanjeevni/internal/config"
	"github.com/sanjeevni-ai/sanjeevni/internal/connwatch"
	"github.com/sanjeevni-ai/sanjeevni/internal/llm"
	"github.com/sanjeevni-ai/sanjeevni/internal/memory"
	"github.com/sanjeevni-ai/sanjeevni/internal/prompts"
	"github.com/sanjeevni-ai/sanjeevni/internal/telemetry"
	"github.com/sanjeevni-ai/sanjeevni/internal/tools"
	"github.com/sanjeevni-ai/sanjeevni/internal/usage"
)

// main only builds the OS environment and hands off to [run], so the whole
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand; the flag
// package's global state gets in the way of parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: sanjeevni ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "tools":
		return runTools(stdout, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "%s %s\n", buildinfo.Title, buildinfo.Version)
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Sanjeevni - conversational assistant with tool calling")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: sanjeevni [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question")
	fmt.Fprintln(w, "  tools        List the tools offered to the model")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runAsk answers one question against a fresh in-memory conversation and
// prints the answer with its token usage.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	model, err := llm.New(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	store := memory.NewMemStore()
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	engine := agent.NewEngine(store, model, registry, engineOptions(cfg, logger)...)

	conv, err := store.Create(ctx)
	if err != nil {
		return err
	}
	res, err := engine.Handle(ctx, agent.Request{
		ConversationID: conv.ID,
		Text:           strings.Join(args, " "),
		MaxDepth:       agent.UseDefaultDepth,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	answer := color.New(color.FgGreen)
	if res.Degraded {
		answer = color.New(color.FgRed)
	}
	answer.Fprintln(stdout, res.Answer)
	if len(res.ToolCalls) > 0 {
		names := make([]string, len(res.ToolCalls))
		for i, c := range res.ToolCalls {
			names[i] = c.Name
		}
		color.New(color.FgCyan).Fprintf(stdout, "tools: %s\n", strings.Join(names, ", "))
	}
	color.New(color.FgYellow).Fprintf(stdout, "tokens: %d prompt, %d completion, %d total\n",
		res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens)
	return nil
}

// runTools prints the tool catalog. It needs no config; reports go to the
// default directory.
func runTools(w io.Writer, outputFmt string) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := newRegistry(config.Default(), logger)
	if err != nil {
		return err
	}
	defs := registry.Definitions()

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}

	name := color.New(color.FgCyan, color.Bold)
	for _, d := range defs {
		name.Fprintln(w, d.Name)
		fmt.Fprintf(w, "  %s\n", d.Description)
		required := map[string]bool{}
		for _, r := range d.Required() {
			required[r] = true
		}
		props, _ := d.Parameters["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			mark := ""
			if required[k] {
				mark = " (required)"
			}
			fmt.Fprintf(w, "    - %s%s\n", k, mark)
		}
	}
	return nil
}

// runServe starts the API server and blocks until SIGINT/SIGTERM or ctx is
// cancelled.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting Sanjeevni", "version", buildinfo.Version, "config", cfgPath)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, buildinfo.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	model, err := llm.New(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	usageStore, err := usage.NewStore(cfg.Database.Driver, cfg.UsageDatabasePath())
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer usageStore.Close()

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("tools registered", "tools", registry.Names())

	opts := append(engineOptions(cfg, logger),
		agent.WithUsageRecorder(usageStore, cfg.Pricing),
		agent.WithMetrics(metrics),
	)
	engine := agent.NewEngine(store, model, registry, opts...)

	var health connwatch.Set
	health.Add(connwatch.Watch(ctx, "model", model.Ping, connwatch.DefaultBackoff(), logger))
	health.Add(connwatch.Watch(ctx, "usage", usageStore.Ping, connwatch.DefaultBackoff(), logger))
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		health.Add(connwatch.Watch(ctx, "conversations", p.Ping, connwatch.DefaultBackoff(), logger))
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, engine, store, logger)
	server.SetUsageStore(usageStore)
	server.SetHealth(&health)
	server.SetMaxInflight(cfg.Listen.MaxInflight)
	if cfg.Telemetry.Enabled {
		server.SetTelemetry(cfg.Telemetry.ServiceName)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Sanjeevni stopped")
	return nil
}

// openStore picks the conversation store: in-memory for ":memory:",
// SQLite otherwise.
func openStore(cfg *config.Config, logger *slog.Logger) (memory.Store, error) {
	if cfg.Database.Path == ":memory:" {
		logger.Info("conversation store: in-memory")
		return memory.NewMemStore(), nil
	}
	path := cfg.DatabasePath()
	store, err := memory.NewSQLiteStore(cfg.Database.Driver, path, logger)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	logger.Info("conversation store: sqlite", "driver", cfg.Database.Driver, "path", path)
	return store, nil
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(
		tools.WithTimeout(cfg.Agent.ToolTimeout.Duration),
		tools.WithLogger(logger),
	)
	reports := tools.NewReportWriter(cfg.ReportsDir(), nil, logger)
	if err := tools.RegisterBuiltins(registry, tools.NewAnalytics(nil, nil), reports); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return registry, nil
}

func engineOptions(cfg *config.Config, logger *slog.Logger) []agent.Option {
	return []agent.Option{
		agent.WithLogger(logger),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithMaxDepth(cfg.Agent.MaxToolDepth),
		agent.WithLanguage(cfg.Agent.Language),
		agent.WithIdentity(prompts.Identity{
			Name:         cfg.Identity.Name,
			Version:      cfg.Identity.Version,
			Description:  cfg.Identity.Description,
			Purpose:      cfg.Identity.Purpose,
			Capabilities: cfg.Identity.Capabilities,
		}),
	}
}

// loadConfig loads .env, then locates and parses the config file.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}

	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
