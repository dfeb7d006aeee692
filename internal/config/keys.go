package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey means neither the environment nor the config file
// provides an Anthropic API key.
var ErrNoAPIKey = errors.New("anthropic API key not configured")

// KeySource names where the active API key came from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config file"
	KeySourceNone   KeySource = "none"
)

// resolveAPIKey finds the key and its origin. The ANTHROPIC_API_KEY
// environment variable wins over the config file. ${VAR} references in
// the config value are expanded, and a value that is still an
// unexpanded reference counts as absent.
func resolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the Anthropic API key, preferring the environment
// over the config file.
func GetAPIKey(cfg *Config) (string, error) {
	key, source := resolveAPIKey(cfg)
	if source == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource reports where GetAPIKey would take the key from.
func GetAPIKeySource(cfg *Config) KeySource {
	_, source := resolveAPIKey(cfg)
	return source
}

// ValidateAPIKey checks the shape of a key without calling the API.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return errors.New("API key does not start with sk-ant-")
	case len(key) < 20:
		return errors.New("API key is too short to be valid")
	}
	return nil
}

// MaskAPIKey renders a key safe for log and status output. Only the
// prefix and the last four characters survive.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
