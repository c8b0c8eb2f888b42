// Command gpioremote is a remote control client for an MQTT-connected GPIO
// device, plus the small backend that stores its audit log.
//
// Client commands (login, monitor, gpio, rules, logs) open one broker session
// per invocation. The serve command runs the HTTP log API together with the
// backend MQTT listener and the optional InfluxDB recorder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/logging"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// clientFactory replaces the paho client constructor when set.
var clientFactory mqtt.ClientFactory

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gpioremote",
		Short:         "GPIO remote control over MQTT",
		Long:          "gpioremote monitors a remote GPIO device over a cloud MQTT broker, switches its pins, manages threshold rules and reads the command audit log.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", getConfigPath(), "path to config file (env GPIOREMOTE_CONFIG)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newGPIOCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpioremote %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses GPIOREMOTE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GPIOREMOTE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the --config file, falling back to defaults when it does
// not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger writes to the command's stderr so results on stdout stay clean.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	if cfg.Logging.Output == "stdout" {
		return logging.NewWithWriter(cfg.Logging, version, cmd.OutOrStdout())
	}
	return logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
}

// credentialCache returns the configured cache or the per-user default.
func credentialCache(cfg *config.Config) (*credentials.FileCache, error) {
	path := cfg.Credentials.CachePath
	if path == "" {
		var err error
		if path, err = credentials.DefaultCachePath(); err != nil {
			return nil, err
		}
	}
	return credentials.NewFileCache(path), nil
}

// loadCredentials reads the cached login.
func loadCredentials(cfg *config.Config) (credentials.Credentials, error) {
	cache, err := credentialCache(cfg)
	if err != nil {
		return credentials.Credentials{}, err
	}
	creds, err := cache.Load()
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("%w (run gpioremote login)", err)
	}
	return creds, nil
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	cancel()
	os.Exit(code)
}
