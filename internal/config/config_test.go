package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/heatsync/heatsync/internal/ble"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.ServiceUUID != ble.ServiceUUID {
		t.Errorf("Device.ServiceUUID = %q, want %q", cfg.Device.ServiceUUID, ble.ServiceUUID)
	}
	if cfg.Device.VestCharUUID != ble.VestCharUUID {
		t.Errorf("Device.VestCharUUID = %q, want %q", cfg.Device.VestCharUUID, ble.VestCharUUID)
	}
	if cfg.Display.UnitSuffix != "°F" {
		t.Errorf("Display.UnitSuffix = %q, want %q", cfg.Display.UnitSuffix, "°F")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogFile == "" {
		t.Error("LogFile should not be empty")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  service_uuid: 0000ffe0-0000-1000-8000-00805f9b34fb
  vest_char_uuid: 0000ffe1-0000-1000-8000-00805f9b34fb
display:
  unit_suffix: "°C"
log_level: debug
log_file: /tmp/heatsync.log
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ServiceUUID != "0000ffe0-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Device.ServiceUUID = %q", cfg.Device.ServiceUUID)
	}
	if cfg.Device.VestCharUUID != "0000ffe1-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Device.VestCharUUID = %q", cfg.Device.VestCharUUID)
	}
	// Unset fields keep their defaults.
	if cfg.Device.PowerCharUUID != ble.PowerCharUUID {
		t.Errorf("Device.PowerCharUUID = %q, want default %q", cfg.Device.PowerCharUUID, ble.PowerCharUUID)
	}
	if cfg.Display.UnitSuffix != "°C" {
		t.Errorf("Display.UnitSuffix = %q, want %q", cfg.Display.UnitSuffix, "°C")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogFile != "/tmp/heatsync.log" {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, "/tmp/heatsync.log")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
log_file: ~/logs/heatsync.log
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "logs/heatsync.log")
	if cfg.LogFile != expected {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("device: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "uppercase UUIDs",
			modify:  func(c *Config) { c.Device.ServiceUUID = strings.ToUpper(c.Device.ServiceUUID) },
			wantErr: false,
		},
		{
			name:    "invalid service UUID",
			modify:  func(c *Config) { c.Device.ServiceUUID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "empty vest characteristic",
			modify:  func(c *Config) { c.Device.VestCharUUID = "" },
			wantErr: true,
		},
		{
			name:    "duplicate control characteristics",
			modify:  func(c *Config) { c.Device.PeltierCharUUID = c.Device.VestCharUUID },
			wantErr: true,
		},
		{
			name:    "empty unit suffix",
			modify:  func(c *Config) { c.Display.UnitSuffix = "" },
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	cfg.Device.ServiceUUID = strings.ToUpper(ble.ServiceUUID)
	cfg.Display.UnitSuffix = "°C"

	opts := cfg.SessionOptions()

	if opts.ServiceUUID != ble.ServiceUUID {
		t.Errorf("ServiceUUID = %q, want %q", opts.ServiceUUID, ble.ServiceUUID)
	}
	if opts.PeltierCharUUID != ble.PeltierCharUUID {
		t.Errorf("PeltierCharUUID = %q, want %q", opts.PeltierCharUUID, ble.PeltierCharUUID)
	}
	if opts.UnitSuffix != "°C" {
		t.Errorf("UnitSuffix = %q, want %q", opts.UnitSuffix, "°C")
	}
	if opts.QueueSize <= 0 {
		t.Errorf("QueueSize = %d, want > 0", opts.QueueSize)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "heatsync", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# heatsync") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Device.ServiceUUID != ble.ServiceUUID {
		t.Errorf("written config Device.ServiceUUID = %q, want %q", cfg.Device.ServiceUUID, ble.ServiceUUID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "heatsync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
