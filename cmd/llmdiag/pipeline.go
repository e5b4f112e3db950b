package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/llmdiag/internal/analyzer"
	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/monitor"
	"github.com/dshills/llmdiag/internal/storage"
)

const (
	// DefaultDataDir holds the database and config file
	DefaultDataDir = "~/.llmdiag"
	// EnvDBPath overrides the database location (SQLite path or postgres:// DSN)
	EnvDBPath = "LLMDIAG_DB_PATH"
	// EnvConfigPath overrides the settings file location
	EnvConfigPath = "LLMDIAG_CONFIG"
)

// pipeline holds everything a running command needs
type pipeline struct {
	settings *config.FileProvider
	store    storage.Storage
	overlay  *document.Overlay
	analyzer analyzer.Analyzer
	monitor  *monitor.Monitor
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// resolveDBPath returns the storage DSN, creating the directory of a SQLite file
func resolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = filepath.Join(DefaultDataDir, "state.db")
	}
	if storage.IsPostgresDSN(dbPath) || dbPath == ":memory:" {
		return dbPath, nil
	}

	dbPath, err := expandHome(dbPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

// newAnalyzer builds the analyzer named by the settings, falling back to
// environment detection when no provider is configured
func newAnalyzer(ctx context.Context, s config.Settings) (analyzer.Analyzer, error) {
	tmplPath, err := expandHome(s.PromptTemplate)
	if err != nil {
		return nil, err
	}
	tmpl, err := analyzer.LoadTemplate(tmplPath)
	if err != nil {
		return nil, err
	}

	provider := s.Provider
	if provider == "" {
		provider = analyzer.DetectProvider()
	}
	return analyzer.New(ctx, analyzer.Config{
		Provider:  provider,
		Model:     s.Model,
		CacheSize: analyzer.DefaultCacheSize,
		Template:  tmpl,
	})
}

// newPipeline wires settings, storage, analyzer and monitor together.
// publishers receive results in addition to the database.
func newPipeline(ctx context.Context, configPath, dbPath string, logger *slog.Logger, publishers ...diagnostics.Publisher) (*pipeline, error) {
	configPath, err := expandHome(configPath)
	if err != nil {
		return nil, err
	}
	settings := config.NewFileProvider(configPath, config.WithLogger(logger))
	s := settings.Settings()

	dsn, err := resolveDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	an, err := newAnalyzer(ctx, s)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}

	src, err := document.NewDefaultSource()
	if err != nil {
		_ = an.Close()
		_ = store.Close()
		return nil, err
	}
	overlay := document.NewOverlay(src)
	publisher := diagnostics.Multi(append([]diagnostics.Publisher{diagnostics.NewStorePublisher(store)}, publishers...))

	mon, err := monitor.New(monitor.Config{
		Settings:  settings,
		Ledger:    store,
		Source:    overlay,
		Analyzer:  an,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		_ = an.Close()
		_ = store.Close()
		return nil, err
	}

	logger.Info("pipeline ready",
		"provider", an.Provider(), "model", an.Model(),
		"config", configPath, "storage", redactDSN(dsn),
		"interval", s.AnalysisInterval(), "enabled", s.Enabled)

	return &pipeline{
		settings: settings,
		store:    store,
		overlay:  overlay,
		analyzer: an,
		monitor:  mon,
	}, nil
}

// Close stops pending analyses and releases resources
func (p *pipeline) Close() error {
	_ = p.monitor.Close()
	p.monitor.Wait()
	_ = p.analyzer.Close()
	return p.store.Close()
}

// redactDSN hides the password of a postgres DSN
func redactDSN(dsn string) string {
	if !storage.IsPostgresDSN(dsn) {
		return dsn
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
