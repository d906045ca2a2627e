package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the in-memory representation of ~/.kbmatch/kbmatch.yaml.
type Config struct {
	ServerURL   string `yaml:"server_url,omitempty"`
	InsecureTLS bool   `yaml:"insecure_tls,omitempty"`
	// RequestTimeout is a time.ParseDuration string. Empty keeps the transport default.
	RequestTimeout string   `yaml:"request_timeout,omitempty"`
	SearchLimit    int      `yaml:"search_limit"`
	VersionLimit   int      `yaml:"version_limit"`
	BOMLimit       int      `yaml:"bom_limit"`
	MaxAttempts    int      `yaml:"max_attempts"`
	StripPatterns  []string `yaml:"strip_patterns,omitempty"`
	LogFile        string   `yaml:"log_file"`
	LogLevel       string   `yaml:"log_level"`
}

// KbmatchDir returns the absolute path to ~/.kbmatch/.
func KbmatchDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".kbmatch"), nil
}

// ConfigPath returns the absolute path to ~/.kbmatch/kbmatch.yaml.
func ConfigPath() (string, error) {
	dir, err := KbmatchDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kbmatch.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the defaults used when kbmatch.yaml is absent or omits a key.
func DefaultConfig() *Config {
	return &Config{
		SearchLimit:  20,
		VersionLimit: 1000,
		BOMLimit:     1000,
		MaxAttempts:  500,
		LogFile:      "kbmatch.log",
		LogLevel:     "debug",
	}
}

// Load reads and parses the config at path, or ~/.kbmatch/kbmatch.yaml when path
// is empty. A missing file yields DefaultConfig; keys absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if _, err := cfg.Timeout(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.LogFile, err = ExpandPath(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save marshals cfg and writes it to path, or ~/.kbmatch/kbmatch.yaml when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// Timeout parses RequestTimeout. An empty value is zero.
func (c *Config) Timeout() (time.Duration, error) {
	if strings.TrimSpace(c.RequestTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("request_timeout %q: %w", c.RequestTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("request_timeout %q is negative", c.RequestTimeout)
	}
	return d, nil
}
