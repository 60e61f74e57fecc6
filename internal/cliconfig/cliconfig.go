// Package cliconfig loads the CLI's optional moss.yaml, the way
// funxy's internal/ext.Config loads funxy.yaml: a small yaml.v3
// struct, found by walking up from a starting directory, with
// defaults filled in after unmarshaling.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the optional moss.yaml found by Load in the given
// directory or its nearest ancestor that has one (the CLI starts from
// the working directory). Every field is a CLI-layer default; none of
// it changes program semantics.
type Config struct {
	// Color selects caret-diagnostic coloring: "auto" (the default,
	// isatty-gated), "always", or "never".
	Color string `yaml:"color,omitempty"`

	// CacheDir overrides the default module-cache location
	// (see internal/modcache).
	CacheDir string `yaml:"cache_dir,omitempty"`

	// UseCache enables the compiled-module disk cache for the `vm`
	// and `disasm` subcommands. Defaults to false: a cache miss just
	// recompiles, so this is purely a speedup toggle.
	UseCache bool `yaml:"use_cache,omitempty"`
}

func defaults() Config {
	return Config{Color: "auto", UseCache: false}
}

// Parse unmarshals yaml config bytes and fills in defaults for any
// field the document left zero.
func Parse(data []byte, path string) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Color != "auto" && cfg.Color != "always" && cfg.Color != "never" {
		return nil, fmt.Errorf("%s: color must be one of auto, always, never, got %q", path, cfg.Color)
	}
	return &cfg, nil
}

// Find walks up from dir looking for moss.yaml, returning "" if none
// is found anywhere up to the filesystem root (not an error: the CLI
// runs fine with no config file).
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "moss.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load finds and parses moss.yaml starting from dir, returning default
// settings (no error) if no config file exists.
func Load(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		d := defaults()
		return &d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data, path)
}
