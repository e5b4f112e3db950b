package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dshills/llmdiag/internal/gate"
	"github.com/dshills/llmdiag/internal/monitor"
	"github.com/dshills/llmdiag/pkg/types"
)

// Target receives the events produced by a Workspace. *monitor.Monitor
// satisfies it.
type Target interface {
	HandleSave(ctx context.Context, ev monitor.Event) (gate.Decision, error)
	Forget(ctx context.Context, id types.DocumentID) error
	AnalyzeAll(ctx context.Context, events []monitor.Event) (*monitor.Statistics, error)
}

// Config controls which files a Workspace sees
type Config struct {
	IncludeVendor bool     // Whether to descend into vendor directories (default: false)
	IgnoreDirs    []string // Directory names never walked or watched (default: DefaultIgnoreDirs)
	Logger        *slog.Logger
}

// DefaultIgnoreDirs lists build output and tool directories
func DefaultIgnoreDirs() []string {
	return []string{
		"node_modules",
		"build",
		"dist",
		"out",
		"target",
		"__pycache__",
	}
}

// Workspace feeds the files under a root directory to a Target
type Workspace struct {
	root   string
	target Target
	cfg    Config
	ignore map[string]struct{}
	logger *slog.Logger
}

// New creates a Workspace rooted at root. A nil cfg uses the defaults.
func New(root string, target Target, cfg *Config) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.IgnoreDirs == nil {
		c.IgnoreDirs = DefaultIgnoreDirs()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	ignore := make(map[string]struct{}, len(c.IgnoreDirs)+1)
	for _, d := range c.IgnoreDirs {
		ignore[d] = struct{}{}
	}
	if !c.IncludeVendor {
		ignore["vendor"] = struct{}{}
	}

	return &Workspace{root: abs, target: target, cfg: c, ignore: ignore, logger: c.Logger}, nil
}

// Root returns the absolute workspace root
func (w *Workspace) Root() string {
	return w.root
}

// skipDir reports whether a directory name is excluded from walking and watching
func (w *Workspace) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	_, ok := w.ignore[name]
	return ok
}

// ignored reports whether path lies under a skipped directory or is a
// hidden file
func (w *Workspace) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts[:len(parts)-1] {
		if w.skipDir(p) {
			return true
		}
	}
	return strings.HasPrefix(parts[len(parts)-1], ".")
}

// event builds the monitor event for a file, or false if the file is not
// source text.
func (w *Workspace) event(path string) (monitor.Event, bool) {
	lang, ok := LanguageID(path)
	if !ok {
		return monitor.Event{}, false
	}
	return monitor.Event{DocumentID: types.DocumentID(path), LanguageID: lang, FilePath: path}, true
}

// Discover finds all source files below the root
func (w *Workspace) Discover() ([]monitor.Event, error) {
	var events []monitor.Event

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != w.root && w.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		if ev, ok := w.event(path); ok {
			events = append(events, ev)
		}
		return nil
	})

	return events, err
}

// Sweep analyzes every source file in the workspace once
func (w *Workspace) Sweep(ctx context.Context) (*monitor.Statistics, error) {
	events, err := w.Discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	w.logger.Info("analyzing workspace", "root", w.root, "files", len(events))
	return w.target.AnalyzeAll(ctx, events)
}
