package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./dynlist.db" {
			t.Errorf("expected database path ./dynlist.db, got %s", config.Database.Path)
		}

		if config.MPD.Address != "localhost:6600" {
			t.Errorf("expected mpd address localhost:6600, got %s", config.MPD.Address)
		}

		if config.Server.Addr() != "127.0.0.1:6680" {
			t.Errorf("expected server address 127.0.0.1:6680, got %s", config.Server.Addr())
		}

		if !config.Scheduler.CatchUp {
			t.Error("expected catch-up to be enabled by default")
		}

		if !config.Materializer.Verify {
			t.Error("expected verification to be enabled by default")
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig overlays defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[mpd]
network = "unix"
address = "/run/mpd/socket"
password = "hunter2"

[scheduler]
catch_up = false
max_concurrent = 4

[log]
level = "debug"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.MPD.Network != "unix" || config.MPD.Password != "hunter2" {
			t.Errorf("unexpected mpd section: %+v", config.MPD)
		}

		if config.Scheduler.CatchUp || config.Scheduler.MaxConcurrent != 4 {
			t.Errorf("unexpected scheduler section: %+v", config.Scheduler)
		}

		if config.Server.Port != 6680 {
			t.Errorf("expected omitted server port to keep default 6680, got %d", config.Server.Port)
		}

		if config.Log.Level != "debug" {
			t.Errorf("expected log level debug, got %s", config.Log.Level)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := os.WriteFile(configPath, []byte("[mpd]\nnetwork = \"udp\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
