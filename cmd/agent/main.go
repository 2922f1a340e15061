package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/serverdeck/serverdeck-agent/internal/agent"
	"github.com/serverdeck/serverdeck-agent/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to agent config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("agent: starting",
		"dashboard", cfg.DashboardURL,
		"collection_interval", cfg.CollectionInterval,
		"live_stream", cfg.LiveEnabled,
		"config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The primary cycle already re-reads the file each cycle; the watcher
	// only surfaces operator edits immediately in the log.
	go func() {
		if err := config.Watch(ctx, *configPath, cfg, func(next *config.Config, changed []string) {
			if len(changed) == 0 {
				logger.Info("agent: config file edited, no hot-reloadable changes")
				return
			}
			logger.Info("agent: config file edited, changes apply next cycle", "keys", changed)
		}); err != nil {
			logger.Warn("agent: config watcher unavailable", "error", err)
		}
	}()

	a := agent.New(cfg, *configPath, logger)
	if err := a.Run(ctx); err != nil {
		logger.Info("agent: exit", "reason", err)
	}
}

// buildLogger constructs the process logger from the log_level and
// log_format settings.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
