package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/api"
	"github.com/nerrad567/gpio-remote/internal/connection"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/logging"
	"github.com/nerrad567/gpio-remote/internal/rules"
	"github.com/nerrad567/gpio-remote/internal/telemetry"
)

func newMonitorCmd() *cobra.Command {
	var (
		pins   []int
		listen string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch connection, device liveness and telemetry",
		Long:  "Opens a session and prints every change of the presented status, the dashboard readings, GPIO pin states and the rule list until interrupted. With --listen the same events are served on a local WebSocket stream.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, pins, listen)
		},
	}

	cmd.Flags().IntSliceVar(&pins, "pin", nil, "GPIO pins to track (default from config)")
	cmd.Flags().StringVar(&listen, "listen", "", "serve /status and the WebSocket stream on host:port")
	return cmd
}

// lockedWriter serializes output from event handlers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func runMonitor(cmd *cobra.Command, pins []int, listen string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(pins) > 0 {
		cfg.Device.Pins = pins
	}
	log := newLogger(cmd, cfg)

	client, err := openClient(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	out.printf("%s\n", formatStatus(client.Status()))
	client.OnStatus(func(st connection.Status) {
		out.printf("%s\n", formatStatus(st))
	})
	client.OnDashboard(func(d telemetry.Dashboard) {
		out.printf("%s", formatDashboard(d))
	})
	client.Board().OnChange(func(pin int, state telemetry.PinState) {
		out.printf("gpio %d: %s\n", pin, state)
	})
	client.Catalog().OnChange(func(list []rules.Rule) {
		out.printf("rules: %d defined\n", len(list))
	})

	if listen != "" {
		srv, err := startStatusServer(cmd.Context(), cfg.API, cfg.WebSocket, listen, log, client)
		if err != nil {
			return err
		}
		defer srv.Close() //nolint:errcheck // Shutdown on exit
		out.printf("streaming on ws://%s%s\n", srv.Addr(), cfg.WebSocket.Path)
	}

	<-cmd.Context().Done()
	return nil
}

// formatStatus renders the presented status on one line.
func formatStatus(st connection.Status) string {
	commands := "commands blocked"
	if st.CommandsAllowed {
		commands = "commands allowed"
	}
	line := fmt.Sprintf("status: %s, device %s, %s", st.State, st.Liveness, commands)
	if !st.LastSeenAt.IsZero() {
		line += ", last seen " + st.LastSeenAt.Format(time.RFC3339)
	}
	return line
}

// formatDashboard renders every dashboard reading, one per line.
func formatDashboard(d telemetry.Dashboard) string {
	s := "dashboard:\n"
	for _, r := range d.Readings() {
		s += fmt.Sprintf("  %-26s %s\n", r.Label+":", r.Value)
	}
	return s
}

// splitListen parses host:port, where port may be 0.
func splitListen(listen string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid listen port %q", portStr)
	}
	return host, port, nil
}

// startStatusServer serves /status and the WebSocket stream for one client.
func startStatusServer(ctx context.Context, apiCfg config.APIConfig, wsCfg config.WebSocketConfig, listen string, log *logging.Logger, client *clientSession) (*api.Server, error) {
	host, port, err := splitListen(listen)
	if err != nil {
		return nil, err
	}
	apiCfg.Host, apiCfg.Port = host, port

	hub := api.NewHub(wsCfg, log)
	hub.Relay(client.Client)

	srv, err := api.New(api.Deps{
		Config:  apiCfg,
		WS:      wsCfg,
		Logger:  log,
		Status:  client,
		Hub:     hub,
		Version: version,
	})
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}
