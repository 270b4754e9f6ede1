package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/heatsync/heatsync/internal/ble"
	"github.com/heatsync/heatsync/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	Display  DisplayConfig `yaml:"display"`
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
}

// DeviceConfig identifies the vest's GATT layout.
type DeviceConfig struct {
	ServiceUUID     string `yaml:"service_uuid"`
	VestCharUUID    string `yaml:"vest_char_uuid"` // must be present for the session to become ready
	PowerCharUUID   string `yaml:"power_char_uuid"`
	PeltierCharUUID string `yaml:"peltier_char_uuid"`
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	UnitSuffix string `yaml:"unit_suffix"` // appended to setpoints, e.g. "°F"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "heatsync")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the stock HeatSync identifiers.
func Default() *Config {
	home, _ := os.UserHomeDir()
	logFile := filepath.Join(home, ".local", "state", "heatsync", "heatsync.log")

	return &Config{
		Device: DeviceConfig{
			ServiceUUID:     ble.ServiceUUID,
			VestCharUUID:    ble.VestCharUUID,
			PowerCharUUID:   ble.PowerCharUUID,
			PeltierCharUUID: ble.PeltierCharUUID,
		},
		Display: DisplayConfig{
			UnitSuffix: protocol.DefaultUnitSuffix,
		},
		LogLevel: "info",
		LogFile:  logFile,
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log_file is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.LogFile = expandTilde(cfg.LogFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	uuids := []struct {
		name  string
		value string
	}{
		{"device.service_uuid", c.Device.ServiceUUID},
		{"device.vest_char_uuid", c.Device.VestCharUUID},
		{"device.power_char_uuid", c.Device.PowerCharUUID},
		{"device.peltier_char_uuid", c.Device.PeltierCharUUID},
	}
	seen := make(map[uuid.UUID]string)
	for i, u := range uuids {
		parsed, err := uuid.Parse(u.value)
		if err != nil {
			return fmt.Errorf("%s must be a UUID, got %q: %w", u.name, u.value, err)
		}
		// Only the control characteristics need to be distinct.
		if i == 0 {
			continue
		}
		if other, ok := seen[parsed]; ok {
			return fmt.Errorf("%s duplicates %s", u.name, other)
		}
		seen[parsed] = u.name
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// SessionOptions maps the config onto the BLE session's options.
func (c *Config) SessionOptions() ble.SessionOptions {
	opts := ble.DefaultSessionOptions()
	opts.ServiceUUID = strings.ToLower(c.Device.ServiceUUID)
	opts.VestCharUUID = strings.ToLower(c.Device.VestCharUUID)
	opts.PowerCharUUID = strings.ToLower(c.Device.PowerCharUUID)
	opts.PeltierCharUUID = strings.ToLower(c.Device.PeltierCharUUID)
	opts.UnitSuffix = c.Display.UnitSuffix
	return opts
}

// ParseLogLevel converts a log_level string to a slog.Level. Unknown
// values map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# heatsync configuration
#
# device: GATT identifiers of the vest controller. The session becomes
# ready once vest_char_uuid is found on the service.
# display.unit_suffix is appended to setpoints; values are sent unconverted.
# log_level: debug, info, warn or error.

`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
