// Package main is the entry point for the fable plugin host.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/fable/internal/config"
	"github.com/dshills/fable/internal/plugin"
	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/store"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion bool
		stayUp      bool
		logLevel    string
	)
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&stayUp, "serve", false, "Keep plugins running until interrupted")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fable - narrative plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: fable [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("fable %s (%s)\n", version, commit)
		return 0
	}

	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	doc, err := store.OpenDocument(cfg.StorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	registry := plugin.NewRegistry(
		plugin.WithLogger(logger),
		plugin.WithBudget(cfg.SandboxBudget),
		plugin.WithTrustedPlugins(cfg.TrustedPlugins),
		plugin.WithStorageProvider(doc.Namespace),
	)

	n, err := registry.Discover(cfg.PluginDirs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Info("plugins discovered", "count", n)

	reportBatch(logger, "load", registry.LoadAll())
	reportBatch(logger, "initialize", registry.InitializeAll())
	reportBatch(logger, "enable", registry.EnableAll())

	for _, p := range registry.Plugins() {
		line := fmt.Sprintf("%-20s %-10s %s", p.Name(), p.Version(), p.State())
		if p.State() == lifecycle.StateError {
			line += "  (" + p.ErrorMessage() + ")"
		}
		fmt.Println(line)
	}

	if stayUp {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		logger.Info("shutting down")
	}

	reportBatch(logger, "destroy", registry.DestroyAll())
	if err := doc.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func reportBatch(logger *slog.Logger, op string, res plugin.BatchResult) {
	for _, f := range res.Failures() {
		if f.Plugin == "" {
			logger.Error(op+" failed", "error", f.Err)
			continue
		}
		logger.Error(op+" failed", "plugin", f.Plugin, "error", f.Err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
