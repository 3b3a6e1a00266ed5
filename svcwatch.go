// Package svcwatch embeds the service watchdog in another program.
//
// A Watcher owns an ordered list of services persisted to a TOML file, the
// supervisor of each running service and an in-process event bus. Mount
// Handler on any HTTP server to expose the REST API.
package svcwatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/loykin/svcwatch/internal/env"
	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/history/factory"
	"github.com/loykin/svcwatch/internal/registry"
	"github.com/loykin/svcwatch/internal/server"
	"github.com/loykin/svcwatch/internal/store"
	"github.com/loykin/svcwatch/internal/supervisor"
)

// Re-export core types for external consumers.

type Service = store.Service

type Settings = store.Settings

type StatusRow = registry.Row

type StartAllResult = registry.StartAllResult

type Timings = supervisor.Timings

type Event = events.Event

// Errors callers may match with errors.Is.
var (
	ErrInvalidIndex             = registry.ErrInvalidIndex
	ErrDuplicateName            = registry.ErrDuplicateName
	ErrInvalidService           = registry.ErrInvalidService
	ErrAlreadyRunning           = supervisor.ErrAlreadyRunning
	ErrLaunchAborted            = supervisor.ErrLaunchAborted
	ErrConfigInvalid            = supervisor.ErrConfigInvalid
	ErrSpawnFailed              = supervisor.ErrSpawnFailed
	ErrLaunchVerificationFailed = supervisor.ErrLaunchVerificationFailed
)

func DefaultTimings() Timings { return supervisor.DefaultTimings() }

type Options struct {
	ServicesFile string
	SettingsFile string
	// Env entries ("K=V") are added to every service's environment.
	Env     []string
	Timings *Timings
	Logger  *slog.Logger
	// HistoryDSNs select history sinks, e.g. "sqlite:///var/lib/svcwatch/history.db".
	HistoryDSNs []string
}

type Watcher struct {
	reg   *registry.Registry
	bus   *events.Bus
	log   *slog.Logger
	sinks []history.Sink
}

func New(opts Options) (*Watcher, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{bus: events.NewBus(events.DefaultRecent), log: log}
	for _, dsn := range opts.HistoryDSNs {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			w.closeSinks()
			return nil, err
		}
		w.sinks = append(w.sinks, s)
	}
	reg, err := registry.New(registry.Options{
		Services: store.NewFileServices(opts.ServicesFile, log),
		Settings: store.NewFileSettings(opts.SettingsFile),
		Timings:  opts.Timings,
		Env:      env.New(opts.Env),
		Logger:   log,
		Events:   w.bus,
		History:  w.sinks,
	})
	if err != nil {
		w.closeSinks()
		return nil, err
	}
	w.reg = reg
	return w, nil
}

func (w *Watcher) List() []Service                        { return w.reg.List() }
func (w *Watcher) Get(i int) (Service, error)             { return w.reg.Get(i) }
func (w *Watcher) Add(s Service) (int, error)             { return w.reg.Add(s) }
func (w *Watcher) Update(i int, s Service) error          { return w.reg.Update(i, s) }
func (w *Watcher) Delete(i int) error                     { return w.reg.Delete(i) }
func (w *Watcher) Start(ctx context.Context, i int) error { return w.reg.Start(ctx, i) }
func (w *Watcher) Stop(i int) error                       { return w.reg.Stop(i) }
func (w *Watcher) Restart(ctx context.Context, i int) error {
	return w.reg.Restart(ctx, i)
}
func (w *Watcher) StartAll(ctx context.Context) StartAllResult { return w.reg.StartAll(ctx) }
func (w *Watcher) StopAll() int                                { return w.reg.StopAll() }
func (w *Watcher) Status(i int) (StatusRow, error)             { return w.reg.Status(i) }
func (w *Watcher) StatusAll() []StatusRow                      { return w.reg.StatusAll() }
func (w *Watcher) Settings() Settings                          { return w.reg.Settings() }
func (w *Watcher) UpdateSettings(s Settings) error             { return w.reg.UpdateSettings(s) }

// Subscribe streams supervision events. Slow subscribers miss events rather
// than block supervisors.
func (w *Watcher) Subscribe(buffer int) (<-chan Event, func()) { return w.bus.Subscribe(buffer) }

// Handler returns the REST API mounted under basePath.
func (w *Watcher) Handler(basePath string) http.Handler {
	return server.NewRouter(w.reg, w.bus, basePath, w.log).Handler()
}

// Close stops every service and releases history sinks.
func (w *Watcher) Close() {
	w.reg.Shutdown()
	w.closeSinks()
}

func (w *Watcher) closeSinks() {
	for _, s := range w.sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
