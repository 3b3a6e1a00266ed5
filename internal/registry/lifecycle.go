package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/status"
	"github.com/loykin/svcwatch/internal/supervisor"
)

func (r *Registry) newSupervisorLocked(e *entry) *supervisor.Supervisor {
	var sinks []history.Sink
	if r.history != nil {
		sinks = []history.Sink{r.history}
	}
	return supervisor.New(r.specLocked(e.svc), supervisor.Options{
		Probe:   r.opts.Probe,
		Timings: r.opts.Timings,
		Logger:  r.log,
		Events:  r.opts.Events,
		History: sinks,
	})
}

// begin reserves entry i for a start and returns the supervisor that will
// run it. The entry reports Starting until finish is called.
func (r *Registry) begin(i int) (*entry, *supervisor.Supervisor, error) {
	r.mu.Lock()
	e, err := r.entryLocked(i)
	if err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	if e.pending != nil || (e.sup != nil && e.sup.IsRunning()) {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%s: %w", e.svc.Name, supervisor.ErrAlreadyRunning)
	}
	old := e.sup
	e.sup = nil
	sup := r.newSupervisorLocked(e)
	e.pending = sup
	r.mu.Unlock()

	// A supervisor that gave up after a crash loop may still hold a handle.
	if old != nil {
		old.Stop()
	}
	return e, sup, nil
}

func (r *Registry) finish(ctx context.Context, e *entry, sup *supervisor.Supervisor) error {
	err := sup.Start(ctx)

	r.mu.Lock()
	owned := e.pending == sup && r.indexLocked(e) >= 0
	if owned {
		e.pending = nil
		if err == nil {
			e.sup = sup
		}
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if !owned {
		// Stopped or deleted while starting.
		sup.Stop()
		return supervisor.ErrLaunchAborted
	}
	return nil
}

// Start launches the service at i and blocks until it is verified or the
// launch fails.
func (r *Registry) Start(ctx context.Context, i int) error {
	e, sup, err := r.begin(i)
	if err != nil {
		return err
	}
	return r.finish(ctx, e, sup)
}

// StartAsync reserves the service at i and verifies it in the background.
// Failures are reported through the event sink.
func (r *Registry) StartAsync(i int) error {
	e, sup, err := r.begin(i)
	if err != nil {
		return err
	}
	r.async.Add(1)
	go func() {
		defer r.async.Done()
		if err := r.finish(r.ctx, e, sup); err != nil {
			r.notify(e.svc.Name, "start failed: "+err.Error())
		}
	}()
	return nil
}

// Stop detaches the supervisor at i and stops it. Stopping a service that is
// not running is not an error.
func (r *Registry) Stop(i int) error {
	r.mu.Lock()
	e, err := r.entryLocked(i)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	sups := r.detachLocked(e)
	r.mu.Unlock()
	stopAll(sups)
	return nil
}

// Restart stops the service at i, waits RestartSettle and starts it again.
func (r *Registry) Restart(ctx context.Context, i int) error {
	if err := r.Stop(i); err != nil {
		return err
	}
	t := time.NewTimer(r.opts.RestartSettle)
	select {
	case <-ctx.Done():
		t.Stop()
		return fmt.Errorf("%w: %w", supervisor.ErrLaunchAborted, ctx.Err())
	case <-t.C:
	}
	return r.Start(ctx, i)
}

// StartAllResult counts the outcome of StartAll.
type StartAllResult struct {
	Started int `json:"started"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// StartAll starts every service that is not already running. Launches are
// spaced StartAllSpacing apart and verified concurrently; StartAll returns
// once every launch has finished.
func (r *Registry) StartAll(ctx context.Context) StartAllResult {
	r.mu.Lock()
	targets := append([]*entry(nil), r.entries...)
	r.mu.Unlock()

	var (
		res StartAllResult
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	count := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			res.Started++
		case errors.Is(err, supervisor.ErrAlreadyRunning):
			res.Skipped++
		default:
			res.Failed++
		}
	}

	for n, e := range targets {
		if n > 0 && !sleepCtx(ctx, r.opts.StartAllSpacing) {
			break
		}
		r.mu.Lock()
		i := r.indexLocked(e)
		r.mu.Unlock()
		if i < 0 {
			continue
		}
		ent, sup, err := r.begin(i)
		if err != nil {
			count(err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.finish(ctx, ent, sup)
			if err != nil {
				r.log.Warn("start failed", "service", ent.svc.Name, "error", err)
			}
			count(err)
		}()
	}
	wg.Wait()
	r.log.Info("start all finished", "started", res.Started, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

// StopAll stops every service concurrently and returns how many were active.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	var sups []*supervisor.Supervisor
	active := 0
	for _, e := range r.entries {
		if e.pending != nil || (e.sup != nil && e.sup.IsRunning()) {
			active++
		}
		sups = append(sups, r.detachLocked(e)...)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
	return active
}

// Shutdown stops every service, waits for background starts to return and
// flushes queued history events.
func (r *Registry) Shutdown() {
	r.cancel()
	r.StopAll()
	r.async.Wait()
	if r.history != nil {
		r.history.Close()
	}
}

// Row is one line of the status table.
type Row struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	status.Snapshot
}

func (r *Registry) snapshotLocked(e *entry) status.Snapshot {
	if e.pending != nil {
		return status.Snapshot{State: status.Starting}
	}
	if e.sup == nil {
		return status.Report(nil)
	}
	return e.sup.Snapshot()
}

// Status reports the service at i.
func (r *Registry) Status(i int) (Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.entryLocked(i)
	if err != nil {
		return Row{}, err
	}
	return Row{Index: i, Name: e.svc.Name, Snapshot: r.snapshotLocked(e)}, nil
}

// StatusAll reports every service in index order.
func (r *Registry) StatusAll() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]Row, len(r.entries))
	for i, e := range r.entries {
		rows[i] = Row{Index: i, Name: e.svc.Name, Snapshot: r.snapshotLocked(e)}
	}
	return rows
}

// Failures is the consecutive rapid-failure count of the service at i.
func (r *Registry) Failures(i int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.entryLocked(i)
	if err != nil {
		return 0, err
	}
	if e.sup == nil {
		return 0, nil
	}
	return e.sup.Failures(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
