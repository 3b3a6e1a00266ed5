package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/svcwatch/internal/config"
	"github.com/loykin/svcwatch/internal/env"
	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/history/factory"
	"github.com/loykin/svcwatch/internal/logger"
	"github.com/loykin/svcwatch/internal/registry"
	"github.com/loykin/svcwatch/internal/server"
	"github.com/loykin/svcwatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the svcwatch daemon",
		Long: `Start the daemon that supervises services and serves the REST API.
Without a config file every setting takes its default and may be overridden
with SVCWATCH_* environment variables.

Examples:
  svcwatch serve
  svcwatch serve svcwatch.toml
  svcwatch serve --config=svcwatch.toml --daemonize --pidfile=/run/svcwatch.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")
	return cmd
}

func runServe(flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log, logCloser, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	sinks, closeSinks := openHistory(cfg.History, log)
	defer closeSinks()

	bus := events.NewBus(events.DefaultRecent)
	timings := cfg.Supervisor.Timings()
	reg, err := registry.New(registry.Options{
		Services:        store.NewFileServices(cfg.ServicesFile, log),
		Settings:        store.NewFileSettings(cfg.SettingsFile),
		Timings:         &timings,
		RestartSettle:   cfg.Supervisor.RestartSettle,
		StartAllSpacing: cfg.Supervisor.StartAllSpacing,
		Env:             env.New(cfg.Env),
		Logger:          log,
		Events:          bus,
		History:         sinks,
	})
	if err != nil {
		return err
	}

	router := server.NewRouter(reg, bus, cfg.Server.BasePath, log)
	router.SetToken(cfg.Server.Token)
	srv := server.NewServer(cfg.Server.Listen, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("HTTP server failed", "error", serveErr)
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	reg.Shutdown()
	log.Info("all services stopped")
	return serveErr
}

// openHistory builds one sink per configured DSN. A sink that cannot be
// opened is logged and skipped.
func openHistory(cfgs []config.HistoryConfig, log *slog.Logger) ([]history.Sink, func()) {
	var sinks []history.Sink
	for _, h := range cfgs {
		s, err := factory.NewSinkFromDSN(h.DSN)
		if err != nil {
			log.Warn("history sink disabled", "error", err)
			continue
		}
		sinks = append(sinks, s)
	}
	return sinks, func() {
		for _, s := range sinks {
			if c, ok := s.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
}
