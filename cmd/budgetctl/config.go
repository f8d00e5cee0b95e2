package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultServer = "http://localhost:8081"

// ctlConfig is the budgetctl config file. The session section is rewritten
// on login and logout.
type ctlConfig struct {
	Server  string        `toml:"server"`
	Session sessionConfig `toml:"session"`
}

type sessionConfig struct {
	Token     string    `toml:"token,omitempty"`
	Email     string    `toml:"email,omitempty"`
	ExpiresAt time.Time `toml:"expires_at,omitempty"`
}

func (s sessionConfig) valid(now time.Time) bool {
	return s.Token != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// configDir follows XDG, falling back to ~/.config/budgetshare.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "budgetshare")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "budgetshare")
}

func defaultConfigPath() string {
	if p := os.Getenv("BUDGETCTL_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "budgetctl.toml")
}

// loadConfig reads path, returning defaults if it does not exist.
func loadConfig(path string) (ctlConfig, error) {
	cfg := ctlConfig{Server: defaultServer}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = defaultServer
	}
	return cfg, nil
}

// saveConfig writes cfg with owner-only permissions since it holds a token.
func saveConfig(path string, cfg ctlConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
