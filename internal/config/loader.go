package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RAGSTORE_"
)

// Load loads configuration from defaults and environment variables only.
func Load() (*Config, error) {
	return load("", false)
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RAGSTORE_STORE__TOP_K, RAGSTORE_EMBEDDINGS__MODEL, ...)
//  2. YAML config file (~/.config/ragstore/config.yaml by default)
//  3. Hardcoded defaults
//
// An empty configPath uses the default path, which may be absent. An explicit
// path must exist. Files larger than 1MB or writable by other users are rejected.
//
// Environment variables drop the prefix, are lowercased, and use a double
// underscore as the section separator:
//
//	RAGSTORE_STORE__TOP_K        -> store.top_k
//	RAGSTORE_EMBEDDINGS__API_KEY -> embeddings.api_key
func LoadWithFile(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = path
	}
	return load(configPath, explicit)
}

// DefaultConfigPath returns ~/.config/ragstore/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragstore", "config.yaml"), nil
}

func load(configPath string, mustExist bool) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath, mustExist)
		if err != nil {
			return nil, err
		}
		if content != nil {
			// rawbytes keeps the already-validated content; the file is not reopened
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps RAGSTORE_STORE__TOP_K to store.top_k.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// readConfigFile returns nil content when the file is absent and optional.
func readConfigFile(path string, mustExist bool) ([]byte, error) {
	// Open once and validate through the descriptor to avoid a TOCTOU race
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("config path is a directory")
	}

	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o002 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (world-writable)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
