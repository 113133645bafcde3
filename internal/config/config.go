// Package config handles reading and writing the sr configuration file (~/.sr/config.toml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds sr configuration settings. Empty fields mean "use the
// default"; command-line flags override whatever is set here.
type Config struct {
	DataDir       string `toml:"data_dir,omitempty" json:"data_dir,omitempty"`
	StoreMode     string `toml:"store_mode,omitempty" json:"store_mode,omitempty"`
	RemoteURL     string `toml:"remote_url,omitempty" json:"remote_url,omitempty"`
	DefaultFormat string `toml:"default_format,omitempty" json:"default_format,omitempty"`
	Author        string `toml:"author,omitempty" json:"author,omitempty"`
	NoteMaxLines  int    `toml:"note_max_lines,omitempty" json:"note_max_lines,omitempty"`
}

// validKeys lists the allowed configuration keys.
var validKeys = map[string]bool{
	"data_dir":       true,
	"store_mode":     true,
	"remote_url":     true,
	"default_format": true,
	"author":         true,
	"note_max_lines": true,
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{"author", "data_dir", "default_format", "note_max_lines", "remote_url", "store_mode"}
}

// Dir returns the default sr home directory (~/.sr).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".sr")
	}
	return filepath.Join(home, ".sr")
}

// Path returns the default config file path (~/.sr/config.toml).
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config from the default path.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config from a specific path. Returns an empty Config if
// the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config to a specific path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Get returns the string value of a configuration key.
func (c *Config) Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "data_dir":
		return c.DataDir, nil
	case "store_mode":
		return c.StoreMode, nil
	case "remote_url":
		return c.RemoteURL, nil
	case "default_format":
		return c.DefaultFormat, nil
	case "author":
		return c.Author, nil
	case "note_max_lines":
		if c.NoteMaxLines == 0 {
			return "", nil
		}
		return strconv.Itoa(c.NoteMaxLines), nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set assigns a value to a configuration key.
func (c *Config) Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "data_dir":
		c.DataDir = value
	case "store_mode":
		if value != "" && value != "file" && value != "sqlite" && value != "remote" {
			return fmt.Errorf("store_mode must be \"file\", \"sqlite\" or \"remote\", got %q", value)
		}
		c.StoreMode = value
	case "remote_url":
		c.RemoteURL = value
	case "default_format":
		if value != "" && value != "table" && value != "json" {
			return fmt.Errorf("default_format must be \"table\" or \"json\", got %q", value)
		}
		c.DefaultFormat = value
	case "author":
		c.Author = value
	case "note_max_lines":
		if value == "" {
			c.NoteMaxLines = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("note_max_lines must be a positive integer, got %q", value)
		}
		c.NoteMaxLines = n
	}
	return nil
}
