package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/api"
	"github.com/nerrad567/gpio-remote/internal/audit"
	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/influxdb"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/logging"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
	"github.com/nerrad567/gpio-remote/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audit log API",
		Long:  "Serves GET and POST /log backed by the configured database. When listener.enabled is set it also records every message on the listener topics, and when influxdb.enabled is set it stores sensor readings in InfluxDB.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override api.host and api.port (host:port)")
	return cmd
}

func runServe(cmd *cobra.Command, listen string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen != "" {
		if cfg.API.Host, cfg.API.Port, err = splitListen(listen); err != nil {
			return err
		}
	}
	log := newLogger(cmd, cfg)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Shutdown on exit
	repo := audit.NewRepository(db)

	srv, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Logs:    repo,
		Version: version,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close() //nolint:errcheck // Shutdown on exit
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", srv.Addr())

	if cfg.Listener.Enabled || cfg.InfluxDB.Enabled {
		stop, err := startBackendSession(ctx, cfg, log, repo)
		if err != nil {
			return err
		}
		defer stop()
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// startBackendSession connects the backend's own broker session and wires
// the audit listener and the InfluxDB recorder onto it.
func startBackendSession(ctx context.Context, cfg *config.Config, log *logging.Logger, repo *audit.Repository) (func(), error) {
	creds := credentials.Credentials{
		Identity:   cfg.Listener.Username,
		Secret:     cfg.Listener.Password,
		Deployment: cfg.Listener.Deployment,
	}

	// The backend only observes the device; its own drop must not publish
	// the device-offline will.
	opts := []mqtt.Option{mqtt.WithLogger(log), mqtt.WithoutLastWill()}
	if clientFactory != nil {
		opts = append(opts, mqtt.WithClientFactory(clientFactory))
	}
	session, err := mqtt.New(creds, cfg.Session, cfg.Device, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend session: %w", err)
	}

	var (
		sink   *audit.AsyncSink
		influx *influxdb.Client
	)
	stop := func() {
		_ = session.Close()
		if sink != nil {
			sink.Stop()
		}
		if influx != nil {
			_ = influx.Close()
		}
	}

	var filters []string
	if cfg.Listener.Enabled {
		sink = audit.NewAsyncSink(repo, cfg.Audit.BufferSize, log.Logger)
		sink.Start(context.WithoutCancel(ctx))
		audit.NewListener(sink, cfg.Listener.Topics, cfg.Listener.User, log.Logger).Attach(session)
		filters = cfg.Listener.Topics
	}

	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB, influxdb.WithDefaultDevice(cfg.Device.ID))
		if err != nil {
			stop()
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influx.SetOnError(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		recorder := telemetry.NewRecorder(influx, log.Logger)
		session.OnMessage(recorder.HandleMessage)

		sensors := mqtt.Topics{Device: cfg.Device.ID}.AllSensors()
		if !coveredBy(filters, sensors) {
			session.Subscribe(sensors)
		}
	}

	if err := session.Connect(ctx); err != nil {
		stop()
		return nil, fmt.Errorf("backend session: %w", err)
	}
	log.Info("backend session connected", "endpoint", session.Endpoint(), "client_id", session.ClientID())
	return stop, nil
}

// coveredBy reports whether a multi-level filter in filters already matches
// everything filter does. Overlapping subscriptions deliver each message twice.
func coveredBy(filters []string, filter string) bool {
	base := strings.TrimSuffix(strings.TrimSuffix(filter, "/#"), "/+")
	for _, f := range filters {
		if f == filter {
			return true
		}
		if (f == "#" || strings.HasSuffix(f, "/#")) && mqtt.TopicMatches(f, base) {
			return true
		}
	}
	return false
}
