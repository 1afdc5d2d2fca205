package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/program"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tracescope/config.yaml"

// Config holds all tracescope configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Filters FiltersConfig `yaml:"filters"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	MCP     MCPConfig     `yaml:"mcp"`
}

type EngineConfig struct {
	CallAttribution   string `yaml:"call_attribution"`
	MergeInnerClasses bool   `yaml:"merge_inner_classes"`
}

// FiltersConfig lists the rules applied to every loaded trace.
type FiltersConfig struct {
	Classes  []string `yaml:"classes"`
	Methods  []string `yaml:"methods"` // "pkg.Class#method"
	Packages []string `yaml:"packages"`
	HideJDK  bool     `yaml:"hide_jdk"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := graph.ParseAttribution(c.Engine.CallAttribution); err != nil {
		result = multierror.Append(result, err)
	}
	for _, m := range c.Filters.Methods {
		if _, ok := filter.ParseMethodRule(m); !ok {
			result = multierror.Append(result, fmt.Errorf("method filter %q is not of the form pkg.Class#method", m))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "logfmt", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Storage.SQLiteJournalMode) {
	case "", "wal", "delete", "truncate", "persist", "memory", "off":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown sqlite journal mode %q", c.Storage.SQLiteJournalMode))
	}
	if c.Storage.SQLiteFile == "" {
		result = multierror.Append(result, fmt.Errorf("storage.sqlite_file must not be empty"))
	}

	return result.ErrorOrNil()
}

// EngineOptions converts the engine section. Call Validate first; an
// unknown attribution falls back to the defining class.
func (c *Config) EngineOptions(logger log.Logger) program.Options {
	attribution, _ := graph.ParseAttribution(c.Engine.CallAttribution)
	return program.Options{
		Attribution:       attribution,
		MergeInnerClasses: c.Engine.MergeInnerClasses,
		Logger:            logger,
	}
}

// FilterRules converts the filters section. Malformed method rules are
// skipped.
func (c *Config) FilterRules() filter.Rules {
	r := filter.Rules{
		Classes:  append([]string(nil), c.Filters.Classes...),
		Packages: append([]string(nil), c.Filters.Packages...),
	}
	for _, m := range c.Filters.Methods {
		if rule, ok := filter.ParseMethodRule(m); ok {
			r.Methods = append(r.Methods, rule)
		}
	}
	if c.Filters.HideJDK {
		r.Packages = append(r.Packages, DefaultJDKPackages()...)
	}
	return r
}

// DBPath returns the expanded path of the SQLite database.
func (c *Config) DBPath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
