// Command graphctl loads a graph definition from YAML, wires the
// declared nodes and edges into an engine.ObserverGraph, and runs it
// until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/eventgraph/internal/buildinfo"
	"github.com/nugget/eventgraph/internal/config"
	"github.com/nugget/eventgraph/internal/opsbus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	inspectAddr := flag.String("inspect", "", "address to serve the opsbus websocket feed on, e.g. :9090 (empty disables it)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "run":
		runGraph(logger, *configPath, *inspectAddr)
	case "validate":
		runValidate(logger, *configPath)
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("graphctl - event-driven graph execution engine")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       Load a graph definition and run it")
	fmt.Println("  validate  Load and validate a graph definition without running it")
	fmt.Println("  version   Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	return cfg
}

func runValidate(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)

	bus := opsbus.New()
	g, err := buildGraph(cfg, bus, logger)
	if err != nil {
		logger.Error("graph build failed", "error", err)
		os.Exit(1)
	}

	summary := g.Summary()
	fmt.Printf("graph valid: %d nodes, %d edges\n", summary.TotalNodes, len(summary.Edges))
}

func runGraph(logger *slog.Logger, configPath, inspectAddr string) {
	cfg := loadConfig(logger, configPath)

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting graphctl", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	bus := opsbus.New()

	g, err := buildGraph(cfg, bus, logger)
	if err != nil {
		logger.Error("graph build failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := g.Start(ctx); err != nil {
		logger.Error("graph start failed", "error", err)
		os.Exit(1)
	}
	bus.Publish(opsbus.Event{Source: opsbus.SourceGraph, Kind: opsbus.KindGraphStarted, Data: map[string]any{"node_count": g.Summary().TotalNodes}})
	logger.Info("graph started", "nodes", g.Summary().TotalNodes)

	if inspectAddr != "" {
		go runInspectServer(ctx, bus, logger, inspectAddr)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := g.Stop(stopCtx); err != nil {
		logger.Error("graph stop failed", "error", err)
	}
	bus.Publish(opsbus.Event{Source: opsbus.SourceGraph, Kind: opsbus.KindGraphStopped})
	logger.Info("graphctl stopped")
}

// parseDuration parses s as a time.Duration, treating an empty string as
// "no override" rather than an error the caller needs to branch on.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
