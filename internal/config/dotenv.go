package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Keys read from the environment or ~/.kbmatch/.env.
const (
	EnvServerURL = "KBMATCH_SERVER_URL"
	EnvAPIToken  = "KBMATCH_API_TOKEN"
)

// DotEnvPath returns the absolute path to kbmatch's dotenv file (~/.kbmatch/.env).
func DotEnvPath() (string, error) {
	dir, err := KbmatchDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadDotEnv reads ~/.kbmatch/.env and returns its key/value pairs.
// A missing file yields an empty map.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}
	m, err := godotenv.Read(p)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return m, nil
}

// GetConfigValue returns the effective value for key, using process environment variables
// first and falling back to ~/.kbmatch/.env.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// Hub holds the effective Hub connection settings.
type Hub struct {
	ServerURL string
	APIToken  string
}

// ResolveHub merges the Hub settings: environment over .env over cfg.ServerURL.
// The token has no YAML fallback.
func ResolveHub(cfg *Config) (Hub, error) {
	url, err := GetConfigValue(EnvServerURL)
	if err != nil {
		return Hub{}, err
	}
	if url == "" {
		url = cfg.ServerURL
	}
	token, err := GetConfigValue(EnvAPIToken)
	if err != nil {
		return Hub{}, err
	}
	if url == "" {
		return Hub{}, fmt.Errorf("no Hub server URL: set %s or server_url in kbmatch.yaml", EnvServerURL)
	}
	if token == "" {
		return Hub{}, fmt.Errorf("no Hub API token: set %s in the environment or ~/.kbmatch/.env", EnvAPIToken)
	}
	return Hub{ServerURL: url, APIToken: token}, nil
}

// EnsureDotEnvTemplate creates ~/.kbmatch/.env if it does not already exist.
//
// The template lists the Hub keys with empty values for the user to fill in.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	body := map[string]string{
		EnvServerURL: "",
		EnvAPIToken:  "",
	}
	content, err := godotenv.Marshal(body)
	if err != nil {
		return fmt.Errorf("cannot render dotenv template: %w", err)
	}
	if err := os.WriteFile(p, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
