// Package registry holds the ordered service list and the supervisor for
// each position. A service is addressed by its index in the list; deleting
// index k moves every later service, and its supervisor, to index-1.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/svcwatch/internal/env"
	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/process"
	"github.com/loykin/svcwatch/internal/store"
	"github.com/loykin/svcwatch/internal/supervisor"
)

var (
	ErrInvalidIndex    = errors.New("invalid service index")
	ErrDuplicateName   = errors.New("service name already exists")
	ErrInvalidService  = errors.New("invalid service")
	ErrInvalidSettings = errors.New("invalid settings")
)

const (
	DefaultRestartSettle   = time.Second
	DefaultStartAllSpacing = 200 * time.Millisecond
)

// Options configures a Registry. Services and Settings are required.
type Options struct {
	Services store.Services
	Settings store.SettingsStore

	Probe           process.Probe
	Timings         *supervisor.Timings
	RestartSettle   time.Duration
	StartAllSpacing time.Duration
	Env             *env.Env // nil passes the daemon environment through

	Logger  *slog.Logger
	Events  events.Sink
	// History sinks are fed through one background queue, drained by Shutdown.
	History []history.Sink
}

type entry struct {
	svc store.Service
	sup *supervisor.Supervisor
	// pending is the supervisor of an in-flight start.
	pending *supervisor.Supervisor
}

// Registry is safe for concurrent use. Its lock is never held while a
// supervisor starts or stops.
type Registry struct {
	opts Options
	log  *slog.Logger

	// ops serializes list mutations so the persisted file and the in-memory
	// list change together.
	ops sync.Mutex

	mu       sync.Mutex
	entries  []*entry
	settings store.Settings

	// ctx bounds background starts and is cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	async  sync.WaitGroup

	history *history.Queue
}

// New loads the service list and settings and returns a Registry with no
// service running.
func New(opts Options) (*Registry, error) {
	if opts.Services == nil || opts.Settings == nil {
		return nil, errors.New("registry: services and settings stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.RestartSettle == 0 {
		opts.RestartSettle = DefaultRestartSettle
	}
	if opts.StartAllSpacing == 0 {
		opts.StartAllSpacing = DefaultStartAllSpacing
	}

	services, err := opts.Services.Load()
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	settings, err := opts.Settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	r := &Registry{opts: opts, log: opts.Logger, settings: settings}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if len(opts.History) > 0 {
		r.history = history.NewQueue(history.DefaultQueueSize, r.log, opts.History...)
	}
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if seen[svc.Name] {
			r.log.Warn("skipping duplicate service", "name", svc.Name)
			continue
		}
		seen[svc.Name] = true
		r.entries = append(r.entries, &entry{svc: svc})
	}
	r.log.Info("registry loaded", "services", len(r.entries), "log_base_path", settings.LogBasePath)
	return r, nil
}

func (r *Registry) notify(name, msg string) {
	r.opts.Events.Publish(events.Event{Time: time.Now(), Service: name, Message: msg})
}

// Len is the number of configured services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) List() []store.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Service, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.svc
	}
	return out
}

func (r *Registry) Get(i int) (store.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.entryLocked(i)
	if err != nil {
		return store.Service{}, err
	}
	return e.svc, nil
}

func (r *Registry) entryLocked(i int) (*entry, error) {
	if i < 0 || i >= len(r.entries) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	return r.entries[i], nil
}

func (r *Registry) indexLocked(e *entry) int {
	for i, x := range r.entries {
		if x == e {
			return i
		}
	}
	return -1
}

func (r *Registry) servicesLocked() []store.Service {
	out := make([]store.Service, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.svc
	}
	return out
}

func normalize(svc store.Service) (store.Service, error) {
	svc.Name = strings.TrimSpace(svc.Name)
	svc.Executable = strings.TrimSpace(svc.Executable)
	svc.WorkDir = strings.TrimSpace(svc.WorkDir)
	if err := svc.Validate(); err != nil {
		return svc, fmt.Errorf("%w: %w", ErrInvalidService, err)
	}
	return svc, nil
}

// Add appends svc and persists the list. It returns the new index.
func (r *Registry) Add(svc store.Service) (int, error) {
	svc, err := normalize(svc)
	if err != nil {
		return -1, err
	}
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	for _, e := range r.entries {
		if e.svc.Name == svc.Name {
			r.mu.Unlock()
			return -1, fmt.Errorf("%w: %s", ErrDuplicateName, svc.Name)
		}
	}
	next := append(r.servicesLocked(), svc)
	r.mu.Unlock()

	if err := r.opts.Services.Save(next); err != nil {
		return -1, err
	}

	r.mu.Lock()
	r.entries = append(r.entries, &entry{svc: svc})
	idx := len(r.entries) - 1
	r.mu.Unlock()
	r.log.Info("service added", "index", idx, "name", svc.Name)
	r.notify(svc.Name, "service added")
	return idx, nil
}

// Update replaces the description at i. A running service keeps running
// with its old description until it is restarted.
func (r *Registry) Update(i int, svc store.Service) error {
	svc, err := normalize(svc)
	if err != nil {
		return err
	}
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	e, err := r.entryLocked(i)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	for j, other := range r.entries {
		if j != i && other.svc.Name == svc.Name {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateName, svc.Name)
		}
	}
	next := r.servicesLocked()
	next[i] = svc
	r.mu.Unlock()

	if err := r.opts.Services.Save(next); err != nil {
		return err
	}

	r.mu.Lock()
	e.svc = svc
	r.mu.Unlock()
	r.log.Info("service updated", "index", i, "name", svc.Name)
	r.notify(svc.Name, "service updated")
	return nil
}

// Delete stops the service at i and removes it. Later services shift down by
// one, keeping their supervisors.
func (r *Registry) Delete(i int) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	e, err := r.entryLocked(i)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	sups := r.detachLocked(e)
	r.mu.Unlock()

	stopAll(sups)

	r.mu.Lock()
	pos := r.indexLocked(e)
	next := r.servicesLocked()
	next = append(next[:pos:pos], next[pos+1:]...)
	r.mu.Unlock()

	if err := r.opts.Services.Save(next); err != nil {
		return err
	}

	r.mu.Lock()
	r.entries = append(r.entries[:pos:pos], r.entries[pos+1:]...)
	r.mu.Unlock()
	r.log.Info("service deleted", "index", pos, "name", e.svc.Name)
	r.notify(e.svc.Name, "service deleted")
	return nil
}

// detachLocked releases the entry's supervisors and returns them for
// stopping outside the lock.
func (r *Registry) detachLocked(e *entry) []*supervisor.Supervisor {
	var out []*supervisor.Supervisor
	if e.pending != nil {
		out = append(out, e.pending)
		e.pending = nil
	}
	if e.sup != nil {
		out = append(out, e.sup)
		e.sup = nil
	}
	return out
}

func stopAll(sups []*supervisor.Supervisor) {
	for _, s := range sups {
		s.Stop()
	}
}

// Spec resolves the supervisor spec for the service at i using the current
// settings.
func (r *Registry) Spec(i int) (supervisor.Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.entryLocked(i)
	if err != nil {
		return supervisor.Spec{}, err
	}
	return r.specLocked(e.svc), nil
}

func (r *Registry) specLocked(svc store.Service) supervisor.Spec {
	logDir := filepath.Join(r.settings.LogBasePath, svc.Name)
	spec := supervisor.Spec{
		Name:       svc.Name,
		Executable: svc.Executable,
		WorkDir:    svc.WorkDir,
		Args:       append([]string(nil), svc.Args...),
		StdoutPath: filepath.Join(logDir, "output.log"),
		StderrPath: filepath.Join(logDir, "error.log"),
	}
	if r.opts.Env != nil {
		spec.Env = r.opts.Env.Merge(svc.Env)
	} else if len(svc.Env) > 0 {
		spec.Env = env.New(nil).Merge(svc.Env)
	}
	return spec
}

func (r *Registry) Settings() store.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings persists s. New log paths apply to subsequent starts.
func (r *Registry) UpdateSettings(s store.Settings) error {
	s.LogBasePath = strings.TrimSpace(s.LogBasePath)
	if s.LogBasePath == "" {
		return fmt.Errorf("%w: log_base_path is required", ErrInvalidSettings)
	}
	r.ops.Lock()
	defer r.ops.Unlock()
	if err := r.opts.Settings.Save(s); err != nil {
		return err
	}
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
	r.log.Info("settings updated", "log_base_path", s.LogBasePath)
	return nil
}
