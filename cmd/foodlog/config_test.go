package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bhavik/food-log/foodlog"
)

func useTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range []string{"FOODLOG_REMOTE_URL", "FOODLOG_AUTH_URL", "FOODLOG_API_KEY", "FOODLOG_EMAIL", "FOODLOG_DB", "FOODLOG_PASSWORD"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestConfigPath(t *testing.T) {
	home := useTempHome(t)
	path := ConfigPath()
	if path != filepath.Join(home, ".foodlog", "config.json") {
		t.Errorf("unexpected config path: %s", path)
	}
}

func TestEnsureConfigDirBacksUpFile(t *testing.T) {
	useTempHome(t)
	dir := ConfigDir()
	if err := os.WriteFile(dir, []byte("oops"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("config dir not created: %v", err)
	}
	matches, _ := filepath.Glob(dir + ".backup.*")
	if len(matches) != 1 {
		t.Fatalf("expected one backup, got %v", matches)
	}
}

func TestLoadConfig_NotExists(t *testing.T) {
	home := useTempHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed when file doesn't exist: %v", err)
	}
	if cfg.DB != filepath.Join(home, ".foodlog", "foodlog.db") {
		t.Errorf("default DB not set: %s", cfg.DB)
	}
	if cfg.RemoteURL != "" || cfg.Credentials() != nil {
		t.Errorf("fresh config should be local and signed out: %+v", cfg)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	home := useTempHome(t)
	t.Setenv("FOODLOG_REMOTE_URL", "https://food.example.com")
	t.Setenv("FOODLOG_API_KEY", "anon-key")
	t.Setenv("FOODLOG_EMAIL", "a@example.com")
	t.Setenv("FOODLOG_DB", "~/meals.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RemoteURL != "https://food.example.com" {
		t.Errorf("RemoteURL not set from env: %s", cfg.RemoteURL)
	}
	if cfg.APIKey != "anon-key" || cfg.Email != "a@example.com" {
		t.Errorf("env overrides missing: %+v", cfg)
	}
	if cfg.DB != filepath.Join(home, "meals.db") {
		t.Errorf("DB path not expanded: %s", cfg.DB)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	useTempHome(t)

	cfg := &Config{RemoteURL: "https://food.example.com", Email: "a@example.com", DB: "/tmp/x.db"}
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	info, err := os.Stat(ConfigPath())
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config should be private, got %v", info.Mode().Perm())
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.RemoteURL != cfg.RemoteURL || loaded.Email != cfg.Email || loaded.DB != cfg.DB {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadConfig_Corrupted(t *testing.T) {
	useTempHome(t)
	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if err := os.WriteFile(ConfigPath(), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "corrupted") {
		t.Fatalf("expected corruption error, got %v", err)
	}
	matches, _ := filepath.Glob(ConfigPath() + ".corrupt.*")
	if len(matches) != 1 {
		t.Fatalf("expected corrupt backup, got %v", matches)
	}
	if _, err := os.Stat(ConfigPath()); !os.IsNotExist(err) {
		t.Fatal("corrupt config should be moved aside")
	}
}

func TestConfigCredentialsRoundTrip(t *testing.T) {
	exp := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := &Config{}
	cfg.SetCredentials(foodlog.Credentials{
		User:         foodlog.UserIdentity{ID: "u1", Email: "a@example.com"},
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expires:      exp,
	}, true)

	creds := cfg.Credentials()
	if creds == nil {
		t.Fatal("expected saved credentials")
	}
	if creds.User.ID != "u1" || creds.AccessToken != "access" || creds.RefreshToken != "refresh" || !creds.Expires.Equal(exp) {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	cfg.SetCredentials(foodlog.Credentials{}, false)
	if cfg.Credentials() != nil {
		t.Fatal("sign-out should clear credentials")
	}
	if cfg.Email != "a@example.com" {
		t.Fatal("email is kept for the next login")
	}
}
