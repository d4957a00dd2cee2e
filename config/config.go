// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Logging LoggingConfig  `yaml:"logging" toml:"logging"`
	Engine  EngineConfig   `yaml:"engine" toml:"engine"`
	Formats []FormatConfig `yaml:"formats" toml:"formats"`
	Bundles []BundleConfig `yaml:"bundles" toml:"bundles"`
	Active  string         `yaml:"active" toml:"active"`
	Server  ServerConfig   `yaml:"server" toml:"server"`
	Metrics MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Results ResultsConfig  `yaml:"results" toml:"results"`

	// BaseDir is the directory relative bundle paths are resolved against.
	BaseDir string `yaml:"-" toml:"-"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" toml:"format"` // "json" or "console"
}

// EngineConfig configures extraction and mapping.
type EngineConfig struct {
	Frontmatter   string         `yaml:"frontmatter" toml:"frontmatter"`   // "line" or "yaml"
	ArrayFormat   string         `yaml:"array_format" toml:"array_format"` // "csv" or "json"
	MaxPathLength int            `yaml:"max_path_length" toml:"max_path_length"`
	Analysis      AnalysisConfig `yaml:"analysis" toml:"analysis"`
}

// AnalysisConfig selects the strategy that may replace directive evaluation.
type AnalysisConfig struct {
	Mode    string        `yaml:"mode" toml:"mode"` // "none" or "expr"
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// FormatConfig is one output format.
type FormatConfig struct {
	Name       string   `yaml:"name" toml:"name"`
	Extensions []string `yaml:"extensions" toml:"extensions"`
	MimeType   string   `yaml:"mime_type" toml:"mime_type"`
	Default    bool     `yaml:"default" toml:"default"`
}

// BundleConfig names the artifacts of one schema bundle. Paths are relative to
// the config file.
type BundleConfig struct {
	Name           string        `yaml:"name" toml:"name"`
	Schema         string        `yaml:"schema" toml:"schema"`
	Template       string        `yaml:"template" toml:"template"`
	TemplateFormat string        `yaml:"template_format" toml:"template_format"`
	Prompts        PromptsConfig `yaml:"prompts" toml:"prompts"`
}

// PromptsConfig holds prompt file paths.
type PromptsConfig struct {
	Extraction string `yaml:"extraction" toml:"extraction"`
	Mapping    string `yaml:"mapping" toml:"mapping"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host" toml:"host"`
	Port         int           `yaml:"port" toml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// FilesRoot confines input and output paths sent over HTTP. Empty means
	// HTTP requests cannot touch the file system.
	FilesRoot string `yaml:"files_root" toml:"files_root"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path" toml:"path"`       // Custom path (default: /metrics)
}

// ResultsConfig configures the SQLite execution ledger.
type ResultsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

// Load reads configuration from a YAML or TOML file. The format follows the
// extension: ".toml" is TOML, anything else YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.ConfigNotFound(path, err)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, failure.ParseError(string(data), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, failure.ParseError(string(data), err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	cfg.BaseDir = filepath.Dir(abs)

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with no bundles, for running
// without a config file.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	cfg.Active = ""
	return &cfg
}

// Resolve returns p joined to BaseDir when relative.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Bundle returns the bundle named name.
func (c *Config) Bundle(name string) (BundleConfig, bool) {
	for _, b := range c.Bundles {
		if b.Name == name {
			return b, true
		}
	}
	return BundleConfig{}, false
}

// Files returns the absolute paths of every artifact the bundles reference.
func (c *Config) Files() []string {
	var out []string
	for _, b := range c.Bundles {
		for _, p := range []string{b.Schema, b.Template, b.Prompts.Extraction, b.Prompts.Mapping} {
			if p != "" {
				out = append(out, c.Resolve(p))
			}
		}
	}
	return out
}

// Catalog returns the configured formats as a ports.FormatCatalog.
func (c *Config) Catalog() *FormatCatalog {
	return &FormatCatalog{formats: c.Formats}
}

// FormatOf returns the template format of a bundle: the configured one, else the
// one implied by the template file extension.
func (b BundleConfig) FormatOf() string {
	if b.TemplateFormat != "" {
		return b.TemplateFormat
	}
	switch strings.ToLower(filepath.Ext(b.Template)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".xml":
		return "xml"
	case ".hbs", ".handlebars":
		return "handlebars"
	default:
		return "custom"
	}
}

// applyEnvOverrides applies DOCFORGE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Logging configuration
	if v := os.Getenv("DOCFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCFORGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Engine configuration
	if v := os.Getenv("DOCFORGE_FRONTMATTER"); v != "" {
		cfg.Engine.Frontmatter = v
	}
	if v := os.Getenv("DOCFORGE_ARRAY_FORMAT"); v != "" {
		cfg.Engine.ArrayFormat = v
	}
	if v := os.Getenv("DOCFORGE_ANALYSIS_MODE"); v != "" {
		cfg.Engine.Analysis.Mode = v
	}
	if v := os.Getenv("DOCFORGE_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.Analysis.Timeout = d
		}
	}
	if v := os.Getenv("DOCFORGE_ACTIVE"); v != "" {
		cfg.Active = v
	}

	// Server configuration
	if v := os.Getenv("DOCFORGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DOCFORGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DOCFORGE_SERVER_FILES_ROOT"); v != "" {
		cfg.Server.FilesRoot = v
	}

	// Metrics and ledger
	if v := os.Getenv("DOCFORGE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCFORGE_RESULTS_ENABLED"); v != "" {
		cfg.Results.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCFORGE_RESULTS_DSN"); v != "" {
		cfg.Results.DSN = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// DefaultFormats are used when the config lists none.
func DefaultFormats() []FormatConfig {
	return []FormatConfig{
		{Name: "json", Extensions: []string{".json"}, MimeType: "application/json", Default: true},
		{Name: "yaml", Extensions: []string{".yaml", ".yml"}, MimeType: "application/yaml"},
		{Name: "xml", Extensions: []string{".xml"}, MimeType: "application/xml"},
		{Name: "handlebars", Extensions: []string{".hbs", ".handlebars", ".md", ".html"}, MimeType: "text/x-handlebars-template"},
		{Name: "custom", Extensions: []string{".txt", ".md"}, MimeType: "text/plain"},
	}
}

func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Engine.Frontmatter == "" {
		cfg.Engine.Frontmatter = "line"
	}
	if cfg.Engine.ArrayFormat == "" {
		cfg.Engine.ArrayFormat = "csv"
	}
	if cfg.Engine.MaxPathLength == 0 {
		cfg.Engine.MaxPathLength = 4096
	}
	if cfg.Engine.Analysis.Mode == "" {
		cfg.Engine.Analysis.Mode = "none"
	}
	if cfg.Engine.Analysis.Timeout == 0 {
		cfg.Engine.Analysis.Timeout = 30 * time.Second
	}

	if len(cfg.Formats) == 0 {
		cfg.Formats = DefaultFormats()
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Results.DSN == "" {
		cfg.Results.DSN = "docforge.db"
	}

	// A single bundle is active by default.
	if cfg.Active == "" && len(cfg.Bundles) == 1 {
		cfg.Active = cfg.Bundles[0].Name
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return failure.InvalidFormat(cfg.Logging.Level, "debug|info|warn|error")
	}
	if cfg.Engine.Frontmatter != "line" && cfg.Engine.Frontmatter != "yaml" {
		return failure.InvalidFormat(cfg.Engine.Frontmatter, "line|yaml")
	}
	if cfg.Engine.ArrayFormat != "csv" && cfg.Engine.ArrayFormat != "json" {
		return failure.InvalidFormat(cfg.Engine.ArrayFormat, "csv|json")
	}
	if cfg.Engine.Analysis.Mode != "none" && cfg.Engine.Analysis.Mode != "expr" {
		return failure.InvalidFormat(cfg.Engine.Analysis.Mode, "none|expr")
	}

	for i, f := range cfg.Formats {
		if f.Name == "" {
			return failure.MissingRequired(fmt.Sprintf("formats[%d].name", i))
		}
	}

	seen := make(map[string]bool, len(cfg.Bundles))
	for i, b := range cfg.Bundles {
		switch {
		case b.Name == "":
			return failure.MissingRequired(fmt.Sprintf("bundles[%d].name", i))
		case b.Schema == "":
			return failure.MissingRequired(fmt.Sprintf("bundles[%d].schema", i))
		case b.Template == "":
			return failure.MissingRequired(fmt.Sprintf("bundles[%d].template", i))
		}
		if seen[b.Name] {
			return failure.InvalidFormat(b.Name, "unique bundle name")
		}
		seen[b.Name] = true
	}

	if cfg.Active != "" && !seen[cfg.Active] {
		return failure.NotFound("bundle", cfg.Active)
	}
	return nil
}

// FormatCatalog implements ports.FormatCatalog over configured formats.
type FormatCatalog struct {
	formats []FormatConfig
}

// IsExtensionSupported reports whether any format lists ext. The leading dot and
// case are ignored.
func (c *FormatCatalog) IsExtensionSupported(ext string) bool {
	ext = normalizeExt(ext)
	if ext == "" {
		return false
	}
	for _, f := range c.formats {
		for _, e := range f.Extensions {
			if normalizeExt(e) == ext {
				return true
			}
		}
	}
	return false
}

// GetFormat returns the format named name.
func (c *FormatCatalog) GetFormat(name string) (ports.FormatInfo, bool) {
	for _, f := range c.formats {
		if strings.EqualFold(f.Name, name) {
			return ports.FormatInfo{
				Name:       f.Name,
				Extensions: append([]string(nil), f.Extensions...),
				MimeType:   f.MimeType,
				Default:    f.Default,
			}, true
		}
	}
	return ports.FormatInfo{}, false
}

// Names lists format names in configuration order.
func (c *FormatCatalog) Names() []string {
	out := make([]string, len(c.formats))
	for i, f := range c.formats {
		out[i] = f.Name
	}
	return out
}

var _ ports.FormatCatalog = (*FormatCatalog)(nil)

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
