// Package config loads client and authority settings from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"worldsync/internal/entities"
)

type Client struct {
	FrameRateHz    int    `yaml:"frame_rate_hz" env:"WORLDSYNC_FRAME_RATE_HZ"`
	AuthorityURL   string `yaml:"authority_url" env:"WORLDSYNC_AUTHORITY_URL"`
	PlayerName     string `yaml:"player_name" env:"WORLDSYNC_PLAYER_NAME"`
	InboxSize      int    `yaml:"inbox_size" env:"WORLDSYNC_INBOX_SIZE"`
	JournalDir     string `yaml:"journal_dir" env:"WORLDSYNC_JOURNAL_DIR"`
	DefaultDestroy string `yaml:"default_destroy" env:"WORLDSYNC_DEFAULT_DESTROY"`
}

type Authority struct {
	ListenAddr string `yaml:"listen_addr" env:"WORLDSYNC_LISTEN_ADDR"`
	DBPath     string `yaml:"db_path" env:"WORLDSYNC_DB_PATH"`
	JournalDir string `yaml:"journal_dir" env:"WORLDSYNC_JOURNAL_DIR"`
	// DisableDB runs the relay with the journal only.
	DisableDB bool `yaml:"disable_db" env:"WORLDSYNC_DISABLE_DB"`
}

func DefaultClient() Client {
	return Client{
		FrameRateHz:    30,
		AuthorityURL:   "ws://127.0.0.1:8088/v1/sync",
		PlayerName:     "player",
		InboxSize:      256,
		JournalDir:     "./data/client",
		DefaultDestroy: "deferred",
	}
}

func DefaultAuthority() Authority {
	return Authority{
		ListenAddr: ":8088",
		DBPath:     "./data/authority/index.sqlite",
		JournalDir: "./data/authority",
	}
}

// LoadClient reads path (optional), applies environment overrides, then
// normalizes and validates.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := load(path, "client.yaml", &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("client.yaml: %w", err)
	}
	return cfg, nil
}

func LoadAuthority(path string) (Authority, error) {
	cfg := DefaultAuthority()
	if err := load(path, "authority.yaml", &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("authority.yaml: %w", err)
	}
	return cfg, nil
}

func load(path, name string, target any) error {
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(b, target); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Client) Normalize() {
	c.AuthorityURL = strings.TrimSpace(c.AuthorityURL)
	c.PlayerName = strings.TrimSpace(c.PlayerName)
	c.DefaultDestroy = strings.ToLower(strings.TrimSpace(c.DefaultDestroy))
	if c.DefaultDestroy == "" {
		c.DefaultDestroy = "deferred"
	}
	if c.FrameRateHz <= 0 {
		c.FrameRateHz = 30
	}
	if c.FrameRateHz > 240 {
		c.FrameRateHz = 240
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
}

func (c Client) Validate() error {
	if c.PlayerName == "" {
		return fmt.Errorf("player_name is required")
	}
	if c.AuthorityURL != "" {
		u, err := url.Parse(c.AuthorityURL)
		if err != nil {
			return fmt.Errorf("authority_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("authority_url: unsupported scheme %q", u.Scheme)
		}
	}
	if _, err := c.DestroyPolicy(); err != nil {
		return err
	}
	return nil
}

// DestroyPolicy maps default_destroy onto the runtime policy.
func (c Client) DestroyPolicy() (entities.DestroyPolicy, error) {
	switch c.DefaultDestroy {
	case "deferred", "":
		return entities.DestroyDeferred, nil
	case "now", "immediate":
		return entities.DestroyNow, nil
	}
	return entities.DestroyDeferred, fmt.Errorf("default_destroy: unknown policy %q", c.DefaultDestroy)
}

func (a *Authority) Normalize() {
	a.ListenAddr = strings.TrimSpace(a.ListenAddr)
	a.DBPath = strings.TrimSpace(a.DBPath)
	a.JournalDir = strings.TrimSpace(a.JournalDir)
}

func (a Authority) Validate() error {
	if a.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if !a.DisableDB && a.DBPath == "" {
		return fmt.Errorf("db_path is required unless disable_db is set")
	}
	return nil
}
