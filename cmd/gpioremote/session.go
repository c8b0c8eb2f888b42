package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/audit"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/database"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/logging"
	"github.com/nerrad567/gpio-remote/internal/remote"
	_ "github.com/nerrad567/gpio-remote/migrations" // Registers the embedded schema
)

// clientSession is an open remote client with its audit sink.
type clientSession struct {
	*remote.Client
	stop func()
}

// Close closes the client, then flushes the audit sink.
func (s *clientSession) Close() {
	_ = s.Client.Close()
	s.stop()
}

// openClient loads the cached login, builds the configured audit sink and
// connects.
func openClient(cmd *cobra.Command, cfg *config.Config, log *logging.Logger) (*clientSession, error) {
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	sink, stop, err := buildSink(cmd.Context(), cfg, log)
	if err != nil {
		return nil, err
	}

	opts := remote.FromConfig(cfg)
	opts.Sink = sink
	opts.Logger = log.Logger
	opts.ClientFactory = clientFactory

	client, err := remote.Open(cmd.Context(), creds, opts)
	if err != nil {
		stop()
		return nil, fmt.Errorf("opening session: %w", err)
	}
	return &clientSession{Client: client, stop: stop}, nil
}

// buildSink returns the audit sink selected by audit.sink and a stop
// function that flushes it and releases its resources.
func buildSink(ctx context.Context, cfg *config.Config, log *logging.Logger) (audit.Sink, func(), error) {
	var (
		writer  audit.Writer
		release = func() {}
	)

	switch cfg.Audit.Sink {
	case "none":
		return audit.Discard, func() {}, nil

	case "http":
		writer = audit.NewHTTPClient(cfg.API.BackendURL)

	case "database":
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		writer = audit.NewRepository(db)
		release = func() { _ = db.Close() }

	case "nats":
		nw, err := audit.DialNATS(cfg.Audit.NATS.URL, cfg.Audit.NATS.Subject)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		writer = nw
		release = func() { _ = nw.Close() }

	default:
		return nil, nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}

	sink := audit.NewAsyncSink(writer, cfg.Audit.BufferSize, log.Logger)
	sink.Start(context.WithoutCancel(ctx))
	return sink, func() {
		sink.Stop()
		release()
	}, nil
}

// openDatabase opens and migrates the audit store.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		DSN:         cfg.DSN,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
