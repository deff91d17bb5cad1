package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".xmtpclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("XMTPCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("XMTPCLAW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load reads the config file, applies env-file candidates and environment
// overrides, and fills defaults. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load process env vars from ~/.config/xmtpclaw/env (and fallbacks) first.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Override with environment variables for each group.
	envconfig.Process("XMTPCLAW_PATHS", &cfg.Paths)
	envconfig.Process("XMTPCLAW_AGENT", &cfg.Agent)
	envconfig.Process("XMTPCLAW_GATEWAY", &cfg.Gateway)
	envconfig.Process("XMTPCLAW_BRIDGE", &cfg.Bridge)
	envconfig.Process("XMTPCLAW_MIRROR", &cfg.Mirror)
	for i := range cfg.Accounts {
		// Single-account deployments may carry secrets in the process env.
		if len(cfg.Accounts) == 1 {
			envconfig.Process("XMTPCLAW", &cfg.Accounts[i])
		}
	}

	// Expand ~ in paths
	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.Paths.StateRoot)
	expandHome(&cfg.Paths.SecretsDir)

	if cfg.Paths.StateRoot == "" {
		if home, err := resolveHomeDir(); err == nil {
			cfg.Paths.StateRoot = filepath.Join(home, ConfigDir, "state")
		}
	}
	if cfg.Paths.SecretsDir == "" {
		if home, err := resolveHomeDir(); err == nil {
			cfg.Paths.SecretsDir = filepath.Join(home, ConfigDir, "secrets")
		}
	}
	for i := range cfg.Accounts {
		cfg.Accounts[i] = applyAccountDefaults(cfg.Accounts[i])
	}

	return cfg, nil
}

// Save writes the config file, creating the config directory if needed.
// Accounts carry key material, so the file and directory are restricted to
// the owner.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
