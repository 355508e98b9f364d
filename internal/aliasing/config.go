// Package aliasing provides pattern-based identifier aliasing: stripping the
// optional URL prefixes authorities attach to otherwise-bare identifiers
// (e.g. a DOI resolver returning "http://dx.doi.org/10.1000/xyz" for a bare
// "10.1000/xyz") so a comparator can recognize both forms as the same
// value.
//
// Example configuration (.metavalidate.yaml):
//
//	identifier_patterns:
//	  - pattern: "http://dx.doi.org/{doi*}"
//	    canonical: "{doi*}"
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/correlator-io/metavalidate/internal/config"
)

type (
	// IdentifierPattern defines a pattern-based transformation rule for
	// authority-supplied identifier strings.
	//
	// Patterns are evaluated in order; first match wins.
	// Pattern syntax:
	//   - {variable} captures any characters except "/"
	//   - {variable*} captures any characters including "/" (for paths)
	//   - Literal characters match exactly
	//
	// Examples:
	//
	//	Pattern: "http://dx.doi.org/{doi*}"
	//	Canonical: "{doi*}"
	//	Input: "http://dx.doi.org/10.1000/xyz" → Output: "10.1000/xyz"
	IdentifierPattern struct {
		Pattern   string `yaml:"pattern"`
		Canonical string `yaml:"canonical"`
	}

	// Config holds identifier pattern configuration loaded from
	// .metavalidate.yaml, supplementing the built-in defaults returned by
	// DefaultPatterns.
	Config struct {
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		IdentifierPatterns []IdentifierPattern `yaml:"identifier_patterns"`
	}
)

const (
	// DefaultConfigPath is the default location for additional identifier
	// pattern configuration.
	DefaultConfigPath = ".metavalidate.yaml"

	// ConfigPathEnvVar is the environment variable name for a custom config
	// path.
	ConfigPathEnvVar = "METAVALIDATE_CONFIG_PATH"
)

// DefaultPatterns returns the built-in identifier-prefix patterns the
// engine ships with: the common DOI resolver URL forms. Authority adapters
// that need additional prefixes merge user config on top of these via
// MergePatterns.
func DefaultPatterns() []IdentifierPattern {
	return []IdentifierPattern{
		{Pattern: "http://dx.doi.org/{doi*}", Canonical: "{doi*}"},
		{Pattern: "https://dx.doi.org/{doi*}", Canonical: "{doi*}"},
		{Pattern: "http://doi.org/{doi*}", Canonical: "{doi*}"},
		{Pattern: "https://doi.org/{doi*}", Canonical: "{doi*}"},
		{Pattern: "doi:{doi*}", Canonical: "{doi*}"},
		{Pattern: "https://orcid.org/{orcid*}", Canonical: "{orcid*}"},
		{Pattern: "http://orcid.org/{orcid*}", Canonical: "{orcid*}"},
	}
}

// LoadConfig loads pattern configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - patterns are optional
//   - Returns empty config + logs warning if YAML is invalid (graceful degradation)
//   - Returns populated config on success
//
// This graceful degradation ensures the server can start even without extra
// patterns configured, since user-supplied identifier patterns are purely
// additive to DefaultPatterns.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		IdentifierPatterns: []IdentifierPattern{},
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing without extra patterns",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, continuing without extra patterns",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, continuing without extra patterns",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{IdentifierPatterns: []IdentifierPattern{}}, nil
	}

	if cfg.IdentifierPatterns == nil {
		cfg.IdentifierPatterns = []IdentifierPattern{}
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path specified in
// METAVALIDATE_CONFIG_PATH, falling back to DefaultConfigPath.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}

// MergePatterns combines the built-in defaults with user-supplied patterns,
// user patterns taking priority (evaluated first, since Resolver stops at
// the first match).
func MergePatterns(cfg *Config) []IdentifierPattern {
	if cfg == nil {
		return DefaultPatterns()
	}

	merged := make([]IdentifierPattern, 0, len(cfg.IdentifierPatterns)+len(DefaultPatterns()))
	merged = append(merged, cfg.IdentifierPatterns...)
	merged = append(merged, DefaultPatterns()...)

	return merged
}
