package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/mcp"
	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/internal/workspace"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: llmdiag [flags] <command> [args]

Commands:
  serve          Run the MCP server on stdio (default)
  watch <dir>    Watch a directory and print diagnostics as JSON lines
  version        Print build information

Flags:
`

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		printVersion()
		os.Exit(0)
	}

	// .env values must be visible to the flag defaults
	config.LoadDotEnv()

	fs := flag.NewFlagSet("llmdiag", flag.ExitOnError)
	configPath := fs.String("config", envDefault(EnvConfigPath, filepath.Join(DefaultDataDir, "config.yaml")), "settings file")
	dbPath := fs.String("db", os.Getenv(EnvDBPath), "SQLite path or postgres:// DSN (default ~/.llmdiag/state.db)")
	logLevel := fs.String("log-level", envDefault(config.EnvPrefix+"LOG_LEVEL", "info"), "debug, info, warn or error")
	sweep := fs.Bool("sweep", false, "watch: analyze every file once before watching")
	includeVendor := fs.Bool("include-vendor", false, "watch: include vendor directories")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	// Log to stderr (stdout reserved for MCP protocol and diagnostics)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := fs.Arg(0)
	var err error
	switch cmd {
	case "", "serve":
		err = runServe(ctx, *configPath, *dbPath, logger)
	case "watch":
		if fs.NArg() < 2 {
			fs.Usage()
			os.Exit(2)
		}
		err = runWatch(ctx, fs.Arg(1), *configPath, *dbPath, *sweep, *includeVendor, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("llmdiag stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("llmdiag stopped")
}

func printVersion() {
	fmt.Printf("llmdiag\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
}

func runServe(ctx context.Context, configPath, dbPath string, logger *slog.Logger) error {
	logger.Info("llmdiag MCP server starting", "version", version,
		"build_mode", storage.BuildMode, "driver", storage.DriverName)

	p, err := newPipeline(ctx, configPath, dbPath, logger)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.Config{
		Monitor:  p.monitor,
		Storage:  p.store,
		Overlay:  p.overlay,
		Settings: p.settings,
		Logger:   logger,
	})
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Serve closes the monitor and storage on return
	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		_ = p.Close()
		return nil
	case err := <-errChan:
		_ = p.analyzer.Close()
		return err
	}
}

func runWatch(ctx context.Context, root, configPath, dbPath string, sweep, includeVendor bool, logger *slog.Logger) error {
	p, err := newPipeline(ctx, configPath, dbPath, logger, diagnostics.NewWriterPublisher(os.Stdout))
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ws, err := workspace.New(root, p.monitor, &workspace.Config{IncludeVendor: includeVendor, Logger: logger})
	if err != nil {
		return err
	}

	w, err := ws.Watch()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if sweep {
		stats, err := ws.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("initial sweep failed: %w", err)
		}
		for _, msg := range stats.ErrorMessages {
			logger.Warn("sweep error", "error", msg)
		}
	}

	return w.Run(ctx)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
