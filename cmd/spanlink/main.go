// Command spanlink receives one agent hook event on stdin, links it into its
// generation's trace using on-disk context, and writes the hook response to
// stdout. It is spawned once per event; everything it knows about prior
// events comes from the storage root.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/spanlink/spanlink/internal/config"
	"github.com/spanlink/spanlink/internal/export"
	"github.com/spanlink/spanlink/internal/flush"
	"github.com/spanlink/spanlink/internal/hooks"
	"github.com/spanlink/spanlink/internal/identity"
	"github.com/spanlink/spanlink/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	configPath := flag.String("config", "", "path to JSON configuration file")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	logFile := flag.String("log-file", "", "log file path (default: ~/.spanlink/spanlink.log)")
	flag.Parse()

	// Load .env if present (non-fatal; hosts usually configure via env).
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spanlink: %v\n", err)
		return 1
	}

	logger, closeLog, err := newLogger(cfg, *logFile, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spanlink: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		fmt.Fprintf(os.Stderr, "spanlink: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("spanlink starting",
		"version", version, "endpoint", cfg.Endpoint, "storage_root", cfg.StorageRoot)

	// A storage root that cannot be created is the one startup failure
	// this process does not work around.
	spans, err := store.NewSpanStore(cfg.SpanDir(), cfg.LockTimeout, logger)
	if err != nil {
		return err
	}
	contexts, err := store.NewContextStore(cfg.ContextDir(), cfg.LockTimeout, logger)
	if err != nil {
		return err
	}

	// Reclaim abandoned generations before processing.
	sweeper := store.NewSweeper(logger, cfg.RetentionMaxAge, cfg.SpanDir(), cfg.ContextDir())
	if n, err := sweeper.Sweep(ctx); err != nil {
		logger.Warn("retention sweep incomplete", "removed", n, "error", err)
	} else if n > 0 {
		logger.Info("retention sweep", "removed", n)
	}

	uploader := export.NewHTTPUploader(cfg.Endpoint, cfg.Headers, cfg.Timeout, logger)
	flusher := flush.NewFlusher(spans, uploader, logger, cfg.PreserveFlushed)
	processor := hooks.NewProcessor(
		spans, contexts, identity.NewResolver(contexts), flusher,
		cfg.ServiceName, cfg.RedactInputs, logger,
	)

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read hook payload: %w", err)
	}

	resp, err := processor.Handle(ctx, payload)
	if err != nil {
		return err
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	fmt.Println(string(out))

	logger.Info("hook processed")
	return nil
}

// newLogger logs to a file — stdout carries the hook response protocol and
// must stay clean — plus stderr when debugging.
func newLogger(cfg config.Config, logFile string, debug bool) (*slog.Logger, func(), error) {
	path := logFile
	if path == "" {
		path = cfg.LogFile
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		path = filepath.Join(home, ".spanlink", "spanlink.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if debug || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	var w io.Writer = f
	if debug {
		w = io.MultiWriter(f, os.Stderr)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = f.Close() }, nil
}
