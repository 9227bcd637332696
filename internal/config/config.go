package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/devpulse/devpulse/internal/scoring"
)

// Config holds all configurable devpulse settings.
type Config struct {
	DatabasePath       string           `json:"database_path"`        // override XDG default
	IdleTimeoutMinutes int              `json:"idle_timeout_minutes"` // inactivity window
	DefaultProject     string           `json:"default_project"`      // project name
	DefaultModel       string           `json:"default_model"`        // AI model identifier
	IgnorePatterns     []string         `json:"ignore_patterns"`      // file-watch excludes
	Scoring            *scoring.Weights `json:"scoring,omitempty"`    // weight overrides
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		IdleTimeoutMinutes: 120,
		IgnorePatterns:     []string{},
	}
}

// Weights returns the effective scoring policy: the configured override if
// present, otherwise the standard defaults.
func (c Config) Weights() scoring.Weights {
	if c.Scoring != nil {
		return *c.Scoring
	}
	return scoring.DefaultWeights()
}

// LoadGlobal reads ~/.config/devpulse/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "devpulse", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .devpulserc in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".devpulserc", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()

	for _, c := range []*Config{global, project} {
		if c == nil {
			continue
		}
		if c.DatabasePath != "" {
			result.DatabasePath = c.DatabasePath
		}
		if c.IdleTimeoutMinutes > 0 {
			result.IdleTimeoutMinutes = c.IdleTimeoutMinutes
		}
		if c.DefaultProject != "" {
			result.DefaultProject = c.DefaultProject
		}
		if c.DefaultModel != "" {
			result.DefaultModel = c.DefaultModel
		}
		if len(c.IgnorePatterns) > 0 {
			result.IgnorePatterns = c.IgnorePatterns
		}
		if c.Scoring != nil {
			result.Scoring = c.Scoring
		}
	}

	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
