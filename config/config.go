package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"talkback/encoder"

	"github.com/pelletier/go-toml/v2"
)

const defaultConfigDir = ".config/talkback"

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName string `toml:"device_name"` // empty: system default
	} `toml:"audio"`

	Recognition struct {
		Language string `toml:"language"`
	} `toml:"recognition"`

	Recording struct {
		Format string `toml:"format"` // wav, flac
		Dir    string `toml:"dir"`
	} `toml:"recording"`

	Storage struct {
		Path string `toml:"path"` // sqlite database, or ":memory:"
	} `toml:"storage"`

	Logging struct {
		Level string `toml:"level"` // debug, info, warn, error
		Dir   string `toml:"dir"`   // empty: TALKBACK_LOG_PATH or OS default
	} `toml:"logging"`

	Hotkey struct {
		Enabled bool `toml:"enabled"`
	} `toml:"hotkey"`

	Paths struct {
		ConfigPath string `toml:"-"`
	} `toml:"-"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.Recognition.Language = "en"
	cfg.Recording.Format = encoder.Formats[0]
	cfg.Recording.Dir = filepath.Join(dataDir, "recordings")
	cfg.Storage.Path = filepath.Join(dataDir, "talkback.sqlite")
	cfg.Logging.Level = "info"
	cfg.Hotkey.Enabled = true
	return cfg, nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "talkback"), nil
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "talkback"), nil
		}
		return filepath.Join(home, "AppData", "Local", "talkback"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "talkback"), nil
	}
	return filepath.Join(home, ".local", "share", "talkback"), nil
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultConfigDir, "config.toml")
}

// Load reads the config at path over the defaults. A missing file is
// created from the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = DefaultPath()
	}
	cfg.Paths.ConfigPath = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func (c *Config) Validate() error {
	ok := false
	for _, f := range encoder.Formats {
		ok = ok || c.Recording.Format == f
	}
	if !ok {
		return fmt.Errorf("recording.format %q: want one of %s", c.Recording.Format, strings.Join(encoder.Formats, ", "))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALKBACK_DEVICE"); v != "" {
		cfg.Audio.DeviceName = v
	}
	if v := os.Getenv("TALKBACK_LANGUAGE"); v != "" {
		cfg.Recognition.Language = v
	}
	if v := os.Getenv("TALKBACK_FORMAT"); v != "" {
		cfg.Recording.Format = strings.ToLower(v)
	}
	if v := os.Getenv("TALKBACK_RECORDINGS_DIR"); v != "" {
		cfg.Recording.Dir = v
	}
	if v := os.Getenv("TALKBACK_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TALKBACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TALKBACK_HOTKEY"); v != "" {
		cfg.Hotkey.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
}
