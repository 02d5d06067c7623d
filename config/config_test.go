package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.Recording.Format != "wav" {
		t.Errorf("format = %q, want wav", cfg.Recording.Format)
	}
	if !strings.Contains(cfg.Storage.Path, "talkback") {
		t.Errorf("storage path %q", cfg.Storage.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}

	t.Setenv("TALKBACK_DEVICE", "USB Mic")
	t.Setenv("TALKBACK_FORMAT", "FLAC")
	t.Setenv("TALKBACK_DB", ":memory:")
	t.Setenv("TALKBACK_LOG_LEVEL", "debug")
	t.Setenv("TALKBACK_HOTKEY", "0")

	applyEnvOverrides(cfg)

	if cfg.Audio.DeviceName != "USB Mic" {
		t.Errorf("device override failed: %q", cfg.Audio.DeviceName)
	}
	if cfg.Recording.Format != "flac" {
		t.Errorf("format override failed: %q", cfg.Recording.Format)
	}
	if cfg.Storage.Path != ":memory:" {
		t.Errorf("db override failed: %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override failed: %q", cfg.Logging.Level)
	}
	if cfg.Hotkey.Enabled {
		t.Error("hotkey should be disabled via env")
	}
}

func TestLoadWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paths.ConfigPath != path {
		t.Errorf("config path = %q", cfg.Paths.ConfigPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if !strings.Contains(string(data), "[recording]") {
		t.Errorf("template missing recording section:\n%s", data)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Audio.DeviceName = "Built-in Microphone"
	cfg.Recording.Format = "flac"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Audio.DeviceName != "Built-in Microphone" || loaded.Recording.Format != "flac" {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"format":  "[recording]\nformat = \"mp3\"\n",
		"level":   "[logging]\nlevel = \"loud\"\n",
		"garbage": "this is = = not toml",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
