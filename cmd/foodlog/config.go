// ABOUTME: config.go provides configuration file management for the foodlog CLI.
// ABOUTME: Supports loading, saving, .env files and environment variable overrides.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bhavik/food-log/cmd/internal/appcli"
	"github.com/bhavik/food-log/foodlog"
)

// Config represents the foodlog CLI configuration.
type Config struct {
	RemoteURL    string `json:"remote_url"`
	AuthURL      string `json:"auth_url,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	Email        string `json:"email"`
	UserID       string `json:"user_id"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TokenExpires string `json:"token_expires,omitempty"`
	DB           string `json:"db"`
}

// ConfigPath is a function that returns the path to the foodlog config file.
// It can be overridden in tests.
var ConfigPath = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".foodlog", "config.json")
	}
	return filepath.Join(home, ".foodlog", "config.json")
}

// ConfigDir returns the directory containing the config file.
func ConfigDir() string {
	return filepath.Dir(ConfigPath())
}

// EnsureConfigDir creates the config directory if it doesn't exist. A file
// sitting where the directory should be is backed up first.
func EnsureConfigDir() error {
	dir := ConfigDir()

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		backup := dir + ".backup." + time.Now().Format("20060102-150405")
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("config path %s is a file, failed to backup: %w", dir, err)
		}
		fmt.Fprintf(os.Stderr, "Warning: %s was a file, backed up to %s\n", dir, backup)
	case !os.IsNotExist(err):
		return fmt.Errorf("check config dir: %w", err)
	}

	return os.MkdirAll(dir, 0o750)
}

// loadDotEnv reads a .env file from the working directory if one exists.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadConfig loads config from file and applies environment variable overrides.
// A missing file yields defaults; a corrupted one is backed up and reported.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	configPath := ConfigPath()

	info, statErr := os.Stat(configPath)
	if statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory, not a file", configPath)
	}

	// #nosec G304 -- configPath is derived from user's home directory, not user input
	data, err := os.ReadFile(configPath)
	if err == nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			backup := configPath + ".corrupt." + time.Now().Format("20060102-150405")
			if renameErr := os.Rename(configPath, backup); renameErr == nil {
				fmt.Fprintf(os.Stderr, "Warning: corrupted config backed up to %s\n", backup)
			}
			return nil, fmt.Errorf("config file corrupted: %w\nRun 'foodlog logout' to start fresh", jsonErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.DB == "" {
		cfg.DB = filepath.Join(ConfigDir(), "foodlog.db")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		DB: filepath.Join(ConfigDir(), "foodlog.db"),
	}
}

func applyEnvOverrides(cfg *Config) {
	if remote := os.Getenv("FOODLOG_REMOTE_URL"); remote != "" {
		cfg.RemoteURL = remote
	}
	if auth := os.Getenv("FOODLOG_AUTH_URL"); auth != "" {
		cfg.AuthURL = auth
	}
	if key := os.Getenv("FOODLOG_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if email := os.Getenv("FOODLOG_EMAIL"); email != "" {
		cfg.Email = email
	}
	if db := os.Getenv("FOODLOG_DB"); db != "" {
		cfg.DB = expandPath(db)
	}
}

// SaveConfig writes config to file.
func SaveConfig(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Credentials returns the saved session, or nil when nobody is logged in.
func (c *Config) Credentials() *foodlog.Credentials {
	if c.Token == "" || c.UserID == "" {
		return nil
	}
	creds := &foodlog.Credentials{
		User:         foodlog.UserIdentity{ID: c.UserID, Email: c.Email},
		AccessToken:  c.Token,
		RefreshToken: c.RefreshToken,
	}
	if c.TokenExpires != "" {
		if exp, err := time.Parse(time.RFC3339, c.TokenExpires); err == nil {
			creds.Expires = exp
		}
	}
	return creds
}

// SetCredentials records issued tokens, or clears them on sign-out.
func (c *Config) SetCredentials(creds foodlog.Credentials, signedIn bool) {
	if !signedIn {
		c.UserID = ""
		c.Token = ""
		c.RefreshToken = ""
		c.TokenExpires = ""
		return
	}
	c.UserID = creds.User.ID
	if creds.User.Email != "" {
		c.Email = creds.User.Email
	}
	c.Token = creds.AccessToken
	c.RefreshToken = creds.RefreshToken
	c.TokenExpires = ""
	if !creds.Expires.IsZero() {
		c.TokenExpires = creds.Expires.UTC().Format(time.RFC3339)
	}
}

// Runtime converts the saved config into shared runtime settings.
func (c *Config) Runtime() appcli.RuntimeConfig {
	return appcli.RuntimeConfig{
		DBPath:    c.DB,
		RemoteURL: c.RemoteURL,
		AuthURL:   c.AuthURL,
		APIKey:    c.APIKey,
	}
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
