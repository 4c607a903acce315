// Package config loads optional settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/linuxmatters/leveller/internal/preset"
)

const (
	AppName  = "leveller"
	FileName = "config.toml"
)

// Duration is a time.Duration written as a string ("90s", "5m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the settings a user may persist. Command-line flags take
// precedence over every field.
type Config struct {
	EnginePath  string   `toml:"engine_path"`  // ffmpeg executable, PATH lookup if empty
	Timeout     Duration `toml:"timeout"`      // per engine invocation, 0 = unbounded
	Jobs        int      `toml:"jobs"`         // files processed in parallel
	Preset      string   `toml:"preset"`       // default preset name
	FilePattern string   `toml:"file_pattern"` // glob for directory input
	Overwrite   bool     `toml:"overwrite"`
	MainsHz     float64  `toml:"mains_hz"` // hum notch frequency, 0 = from timezone
	LogFile     string   `toml:"log_file"` // debug log destination, none if empty
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Jobs:        1,
		Preset:      preset.Default,
		FilePattern: "*.wav",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/leveller/config.toml, or the platform
// equivalent. Empty when no config directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, FileName)
}

// Load reads the config at path over the defaults. An empty path means
// DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.MainsHz != 0 && c.MainsHz != 50 && c.MainsHz != 60 {
		return fmt.Errorf("mains_hz must be 50 or 60, got %g", c.MainsHz)
	}
	if _, err := preset.Resolve(c.Preset); err != nil {
		return err
	}
	if _, err := filepath.Match(c.FilePattern, ""); err != nil {
		return fmt.Errorf("invalid file_pattern %q: %w", c.FilePattern, err)
	}
	return nil
}
