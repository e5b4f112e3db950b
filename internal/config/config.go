package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LLMDIAG_"

// DefaultAnalysisInterval is the debounce delay when none is configured
const DefaultAnalysisInterval = 3000 * time.Millisecond

// Settings is a snapshot of the user-tunable behaviour.
type Settings struct {
	Enabled                bool     `yaml:"enabled"`
	Model                  string   `yaml:"model"`
	AnalysisIntervalMS     int      `yaml:"analysis_interval_ms"`
	Languages              []string `yaml:"languages"`
	ExcludedFileExtensions []string `yaml:"excluded_file_extensions"`
	Provider               string   `yaml:"provider"`
	PromptTemplate         string   `yaml:"prompt_template"`
}

// Defaults returns the settings used when nothing is configured
func Defaults() Settings {
	return Settings{
		Enabled:                true,
		AnalysisIntervalMS:     int(DefaultAnalysisInterval / time.Millisecond),
		Languages:              []string{},
		ExcludedFileExtensions: []string{".txt", ".md", ".json", ".xml", ".yaml", ".yml", ".log"},
	}
}

// AnalysisInterval returns the debounce delay. Negative values mean no delay.
func (s Settings) AnalysisInterval() time.Duration {
	if s.AnalysisIntervalMS < 0 {
		return 0
	}
	return time.Duration(s.AnalysisIntervalMS) * time.Millisecond
}

// LanguageAllowed reports whether languageID passes the allow-list.
// An empty allow-list admits every language.
func (s Settings) LanguageAllowed(languageID string) bool {
	if len(s.Languages) == 0 {
		return true
	}
	for _, l := range s.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}

// ExtensionExcluded reports whether ext (with leading dot) is on the deny-list.
func (s Settings) ExtensionExcluded(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range s.ExcludedFileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (s *Settings) normalize() {
	exts := make([]string, 0, len(s.ExcludedFileExtensions))
	for _, e := range s.ExcludedFileExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	s.ExcludedFileExtensions = exts

	langs := make([]string, 0, len(s.Languages))
	for _, l := range s.Languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	s.Languages = langs
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
}

// Provider supplies settings. Callers ask again for every decision so edits
// take effect without a restart.
type Provider interface {
	Settings() Settings
}

// Static is a Provider that always returns the same settings
type Static Settings

// Settings implements Provider
func (s Static) Settings() Settings {
	out := Settings(s)
	out.Languages = append([]string(nil), s.Languages...)
	out.ExcludedFileExtensions = append([]string(nil), s.ExcludedFileExtensions...)
	return out
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}
	s.normalize()
	return s, nil
}

// Load reads a YAML settings file. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// ApplyEnv overlays LLMDIAG_* variables found through lookup.
// Malformed values are reported and skipped.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup(EnvPrefix + "ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sENABLED: %w", EnvPrefix, err))
		} else {
			s.Enabled = b
		}
	}
	if v, ok := lookup(EnvPrefix + "MODEL"); ok {
		s.Model = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "ANALYSIS_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sANALYSIS_INTERVAL_MS: %w", EnvPrefix, err))
		} else {
			s.AnalysisIntervalMS = n
		}
	}
	if v, ok := lookup(EnvPrefix + "LANGUAGES"); ok {
		s.Languages = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "EXCLUDED_FILE_EXTENSIONS"); ok {
		s.ExcludedFileExtensions = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "PROVIDER"); ok {
		s.Provider = v
	}
	if v, ok := lookup(EnvPrefix + "PROMPT_TEMPLATE"); ok {
		s.PromptTemplate = strings.TrimSpace(v)
	}

	s.normalize()
	return errors.Join(errs...)
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// FileProvider reads a YAML file plus environment overrides on every call.
// The file is re-parsed only when its modification time or size changes; on a
// parse error the last good settings are kept.
type FileProvider struct {
	path   string
	lookup func(string) (string, bool)
	logger *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  Settings
	loaded  bool
}

// Option configures a FileProvider
type Option func(*FileProvider)

// WithLogger sets the logger used for configuration problems
func WithLogger(l *slog.Logger) Option {
	return func(p *FileProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLookup replaces os.LookupEnv, mainly for tests
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(p *FileProvider) {
		if lookup != nil {
			p.lookup = lookup
		}
	}
}

// NewFileProvider creates a provider backed by path. An empty path uses
// defaults plus environment only.
func NewFileProvider(path string, opts ...Option) *FileProvider {
	p := &FileProvider{
		path:   path,
		lookup: os.LookupEnv,
		logger: slog.Default(),
		cached: Defaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the backing file path
func (p *FileProvider) Path() string {
	return p.path
}

// Settings implements Provider
func (p *FileProvider) Settings() Settings {
	base := p.fileSettings()
	if err := ApplyEnv(&base, p.lookup); err != nil {
		p.logger.Warn("ignoring invalid environment setting", "error", err)
	}
	return base
}

func (p *FileProvider) fileSettings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return Static(Defaults()).Settings()
	}

	info, err := os.Stat(p.path)
	if errors.Is(err, os.ErrNotExist) {
		if p.loaded {
			p.logger.Info("config file removed, using defaults", "path", p.path)
		}
		p.loaded = false
		p.cached = Defaults()
		return Static(p.cached).Settings()
	}
	if err != nil {
		p.logger.Warn("failed to stat config file", "path", p.path, "error", err)
		return Static(p.cached).Settings()
	}

	if p.loaded && info.ModTime().Equal(p.modTime) && info.Size() == p.size {
		return Static(p.cached).Settings()
	}

	s, err := Load(p.path)
	if err != nil {
		p.logger.Warn("keeping previous settings", "path", p.path, "error", err)
		return Static(p.cached).Settings()
	}

	p.cached = s
	p.modTime = info.ModTime()
	p.size = info.Size()
	p.loaded = true
	return Static(p.cached).Settings()
}
