// Command beem runs the chat relay bot: it watches WT games and TV
// channels for knowledge-bot queries and administrative commands, and
// relays the former to the dcss IRC network.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/crawlbeem/beem/internal/config"
	"github.com/crawlbeem/beem/internal/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", config.DefaultPath, "path to the TOML configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		return 1
	}

	applyLogging(cfg.Logging)

	o, err := orchestrator.New(cfg)
	if err != nil {
		slog.Error("failed to initialize orchestrator", "error", err)
		return 1
	}

	// SIGINT is a clean shutdown (exit 0); SIGTERM propagates a non-zero
	// exit reason, per the CLI contract in spec §6.
	intCtx, stopInt := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopInt()
	termCtx, stopTerm := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stopTerm()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terminated := false
	go func() {
		select {
		case <-intCtx.Done():
			slog.Info("received interrupt, shutting down")
		case <-termCtx.Done():
			slog.Info("received terminate signal, shutting down")
			terminated = true
		}
		cancel()
	}()

	if err := o.Run(runCtx); err != nil {
		slog.Error("orchestrator exited with error", "error", err)
		return 1
	}
	if terminated {
		return 1
	}
	return 0
}

// applyLogging reconfigures the default slog logger from logging_config.
// A filename switches output to that file (opened append-only; rotation
// via max_bytes/backup_count is validated at config load but has no
// effect here, see DESIGN.md).
func applyLogging(cfg config.Logging) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stdout
	if cfg.Filename != "" {
		f, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("failed to open log file, logging to stdout", "error", err, "filename", cfg.Filename)
		} else {
			out = f
		}
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
}
