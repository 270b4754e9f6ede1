package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/heatsync/heatsync/internal/ble"
	"github.com/heatsync/heatsync/internal/config"
	"github.com/heatsync/heatsync/internal/statusbus"
	"github.com/heatsync/heatsync/internal/tui"
)

// CLI is the root command structure for heatsync.
type CLI struct {
	Config string `short:"c" help:"Path to config file (default: ~/.config/heatsync/config.yaml)" type:"path"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive control panel (default)"`

	Headless HeadlessCmd `cmd:"" help:"Run the session and log status changes"`
	Scan     ScanCmd     `cmd:"" help:"List nearby vests"`
	Init     InitCmd     `cmd:"" help:"Write a default config file"`
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	cfg, err := loadConfig(globals.Config)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to the log file.
	closeLog, err := setupFileLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())

	bus := statusbus.New(16)
	defer bus.Close()
	statuses, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	session, done := startSession(ctx, cfg, bus)
	err = tui.Run(session, statuses, cfg.Display.UnitSuffix)
	cancel()
	<-done
	return err
}

// --- Headless Command ---

type HeadlessCmd struct{}

func (c *HeadlessCmd) Run(globals *CLI) error {
	cfg, err := loadConfig(globals.Config)
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg)
	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := statusbus.New(16)
	defer bus.Close()
	statuses, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	_, done := startSession(ctx, cfg, bus)
	slog.Info("Running. Ctrl+C to quit.")
	statusbus.Log(ctx, statuses)
	slog.Info("Shutting down")
	<-done
	return nil
}

// --- Scan Command ---

type ScanCmd struct {
	Timeout time.Duration `short:"t" default:"5s" help:"How long to scan"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	cfg, err := loadConfig(globals.Config)
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg)

	fmt.Printf("Scanning for %s (%s)...\n", cfg.Device.ServiceUUID, c.Timeout)
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), cfg.SessionOptions().ServiceUUID, c.Timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No vests found.")
		return nil
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-20s  %-40s  %d dBm\n", name, d.ID, d.RSSI)
	}
	return nil
}

// --- Init Command ---

type InitCmd struct{}

func (c *InitCmd) Run(globals *CLI) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("heatsync"),
		kong.Description("HeatSync cooling vest controller."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// startSession wires the radio and the status bus into a session and
// starts it. The session stops when ctx is done; the returned channel is
// closed once it has.
func startSession(ctx context.Context, cfg *config.Config, bus *statusbus.Bus) (*ble.Session, <-chan struct{}) {
	session := ble.NewSession(ble.NewTinyGoAdapter(), bus, cfg.SessionOptions())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := session.Run(ctx); err != nil {
			slog.Error("[BLE] session stopped", "error", err)
		}
	}()
	session.Begin()
	return session, done
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. The result is
// validated.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case path != "":
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		defaultPath := config.DefaultConfigPath()
		if _, err := os.Stat(defaultPath); err == nil {
			c, err := config.Load(defaultPath)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
			}
			cfg = c
		} else {
			// No config file, use defaults
			cfg = config.Default()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func setupLogging(w io.Writer, cfg *config.Config) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(h))
}

// setupFileLogging sends logs to cfg.LogFile. The returned function
// closes the file.
func setupFileLogging(cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	setupLogging(f, cfg)
	return func() { f.Close() }, nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== heatsync ===")
	fmt.Printf("  Service: %s\n", cfg.Device.ServiceUUID)
	fmt.Printf("  Vest:    %s\n", cfg.Device.VestCharUUID)
	fmt.Printf("  Power:   %s\n", cfg.Device.PowerCharUUID)
	fmt.Printf("  Peltier: %s\n", cfg.Device.PeltierCharUUID)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("================")
}
