package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/journal"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	cfg, err := config.ConsumerConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	facadeOptions := []func(*consumer.Facade){
		consumer.WithLogger(logger),
		consumer.WithDataAddr(config.Data.Listen),
	}
	if config.Settings.StatsInterval > 0 {
		facadeOptions = append(facadeOptions, consumer.WithStats(config.Settings.StatsInterval))
	}
	facade, err := consumer.New(cfg, facadeOptions...)
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	ctrl := control.New(
		control.WithLogger(logger),
		control.WithAddr(config.Control.Listen),
		control.WithRemotePort(config.Control.RemotePort),
		control.WithKeepAlive(config.Control.KeepAlive),
	)

	store, sessionID, err := createJournal(ctx, &config.Journal, config)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	if err = facade.Start(ctx); err != nil {
		return fmt.Errorf("starting acquisition: %w", err)
	}
	defer facade.Stop()

	if err = ctrl.Start(ctx); err != nil {
		return fmt.Errorf("starting control channel: %w", err)
	}
	defer ctrl.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := newHub()
	rec := &recorder{
		store:     store,
		sessionID: sessionID,
		ctrl:      ctrl,
		telemetry: facade.Worker(),
		interval:  config.Journal.TelemetryInterval,
		hub:       h,
		logger:    logger.With(slog.String("component", "journal")),
	}
	go rec.run(ctx)

	srv := newServer(ctx, facade, ctrl, h, store, sessionID, config, logger)
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", config.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", config.Server.Listen, err)
	}

	logger.Info("eegd started",
		slog.String("data", facade.Worker().LocalAddr().String()),
		slog.String("control", ctrl.LocalAddr().String()),
		slog.String("http", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err = httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil

	case err = <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// createJournal opens a per-run journal in the configured directory. It returns a nil
// store when journaling is disabled.
func createJournal(ctx context.Context, config *JournalConfig, appConfig *Config) (journal.Store, int64, error) {
	if config.DataDirectory == "" {
		return nil, 0, nil
	}

	stat, err := os.Stat(config.DataDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("journal directory '%s' does not exist: %w", config.DataDirectory, err)
		}
		return nil, 0, err
	}
	if !stat.IsDir() {
		return nil, 0, fmt.Errorf("invalid journal directory '%s'", config.DataDirectory)
	}

	dbPath := filepath.Join(config.DataDirectory, fmt.Sprintf("eeg_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	store := journal.New(dbPath)

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	sessionID, err := store.CreateSession(ctx, host, appConfig)
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("creating session: %w", err), store.Close())
	}
	return store, sessionID, nil
}
