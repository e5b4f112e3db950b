// Command analyze_file runs one analysis cycle over the given files and
// prints the resulting diagnostics. It uses a throwaway in-memory ledger, so
// every run analyzes from scratch.
//
//	analyze_file [-provider openai|gemini|local] [-model name] [-template prompt.md] file...
//
// Files may be local paths, file:// URLs, or s3://bucket/key when
// LLMDIAG_S3_ENDPOINT and its credentials are set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dshills/llmdiag/internal/analyzer"
	"github.com/dshills/llmdiag/internal/config"
	"github.com/dshills/llmdiag/internal/diagnostics"
	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/internal/monitor"
	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/pkg/types"
)

// fileReport is printed once per analyzed file
type fileReport struct {
	File        string             `json:"file"`
	Outcome     string             `json:"outcome"`
	Reason      string             `json:"reason,omitempty"`
	Model       string             `json:"model,omitempty"`
	Dropped     int                `json:"dropped,omitempty"`
	Rejected    string             `json:"rejected,omitempty"`
	DurationMS  int64              `json:"duration_ms"`
	Diagnostics []types.Diagnostic `json:"diagnostics"`
}

func main() {
	config.LoadDotEnv()

	provider := flag.String("provider", "", "analysis provider (default: detected from environment)")
	model := flag.String("model", "", "model name (default: provider default)")
	template := flag.String("template", "", "prompt template file")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyze_file [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tmpl, err := analyzer.LoadTemplate(*template)
	if err != nil {
		log.Fatalf("Failed to load template: %v", err)
	}

	an, err := analyzer.New(ctx, analyzer.Config{
		Provider: *provider,
		Model:    *model,
		Template: tmpl,
	})
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}
	defer an.Close()

	// Create in-memory storage
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	// Language and extension filters do not apply to explicitly named files
	settings := config.Defaults()
	settings.Model = *model
	settings.ExcludedFileExtensions = nil

	src, err := document.NewDefaultSource()
	if err != nil {
		log.Fatalf("Failed to configure document source: %v", err)
	}

	mon, err := monitor.New(monitor.Config{
		Settings:  config.Static(settings),
		Ledger:    store,
		Source:    src,
		Analyzer:  an,
		Publisher: diagnostics.NewStorePublisher(store),
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create monitor: %v", err)
	}
	defer mon.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, arg := range flag.Args() {
		id := arg
		if abs, err := filepath.Abs(arg); err == nil && !hasScheme(arg) {
			id = abs
		}

		res, err := mon.HandleOpen(ctx, monitor.Event{DocumentID: types.DocumentID(id), FilePath: id})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", arg, err)
			failed++
			continue
		}

		report := fileReport{
			File:        arg,
			Outcome:     string(res.Outcome),
			Reason:      string(res.Reason),
			Model:       res.Model,
			Dropped:     res.Dropped,
			DurationMS:  res.Duration.Milliseconds(),
			Diagnostics: diagnostics.Render(res.Issues),
		}
		if res.Rejected != nil {
			report.Rejected = res.Rejected.Error()
		}
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// hasScheme reports whether arg looks like a URL rather than a path
func hasScheme(arg string) bool {
	for i, c := range arg {
		switch {
		case c == ':':
			return i > 1 && len(arg) > i+2 && arg[i+1:i+3] == "//"
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return false
}
