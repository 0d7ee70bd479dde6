// Package controller implements the session lifecycle: start, pause,
// continue, stop, list and attach. It talks to running drivers only through
// process-group signals and the durable session store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fakeyudi/fuzzherd/internal/config"
	"github.com/fakeyudi/fuzzherd/internal/driver"
	"github.com/fakeyudi/fuzzherd/internal/mux"
	"github.com/fakeyudi/fuzzherd/internal/procgroup"
	"github.com/fakeyudi/fuzzherd/internal/session"
)

var (
	// ErrSessionNotFound is returned when the session's process group is not
	// alive, whatever the store says.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned for transitions out of Stopped.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Warning describes a transition that was a no-op. Empty means none.
type Warning string

// Status is a session as shown by List.
type Status struct {
	Name    string
	State   session.State // reconciled with liveness
	Stored  session.State
	Alive   bool
	PGID    int
	Backend string
	RunDir  string
	Created time.Time
}

// Controller drives session transitions.
type Controller struct {
	Store   session.Store
	Mux     mux.Multiplexer
	Signals procgroup.Signaller
	// Backend returns the multiplexer a recorded session was started with.
	Backend func(name string) mux.Multiplexer
	// Command is the driver command line; Start appends --session <name>.
	Command []string
	// Dir is the working directory of launched drivers.
	Dir   string
	Grace time.Duration
	Log   *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Controller with real clocks.
func New(store session.Store, m mux.Multiplexer, sig procgroup.Signaller, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		Store:   store,
		Mux:     m,
		Signals: sig,
		Backend: func(name string) mux.Multiplexer { return mux.ForBackend(name, sig) },
		Log:     log,
		Now:     time.Now,
		Sleep:   sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backendFor picks the multiplexer of rec, falling back to the configured one.
func (c *Controller) backendFor(rec *session.Record) mux.Multiplexer {
	if rec.Backend == "" || rec.Backend == c.Mux.Name() || c.Backend == nil {
		return c.Mux
	}
	return c.Backend(rec.Backend)
}

// resolve loads the record of name, synthesizing an Unknown one when none
// exists, and probes liveness of its process group.
func (c *Controller) resolve(ctx context.Context, name string) (*session.Record, mux.Multiplexer, bool) {
	rec, err := c.Store.Load(name)
	if err != nil {
		rec = &session.Record{Name: name, State: session.Unknown}
	}
	m := c.backendFor(rec)
	if rec.PGID == 0 {
		if pgid, err := m.Lookup(ctx, name); err == nil {
			rec.PGID = pgid
		}
	}
	alive := rec.PGID > 1 && m.Exists(ctx, name, rec.PGID)
	return rec, m, alive
}

// live resolves name and fails with ErrSessionNotFound unless its group is
// alive. An Unknown state is reported as Running.
func (c *Controller) live(ctx context.Context, name string) (*session.Record, mux.Multiplexer, error) {
	rec, m, alive := c.resolve(ctx, name)
	if !alive {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	if rec.State == session.Unknown || !rec.State.Valid() {
		rec.State = session.Running
	}
	return rec, m, nil
}

func (c *Controller) transition(rec *session.Record, to session.State) error {
	from := rec.State
	rec.State = to
	if err := c.Store.Save(rec); err != nil {
		return err
	}
	c.Log.Info("session transition", "session", rec.Name, "from", from, "to", to)
	return nil
}

// Pause suspends a running session in place.
func (c *Controller) Pause(ctx context.Context, name string) (Warning, error) {
	rec, _, err := c.live(ctx, name)
	if err != nil {
		return "", err
	}
	switch rec.State {
	case session.Stopped:
		return "", fmt.Errorf("%w: cannot pause stopped session %s", ErrInvalidTransition, name)
	case session.Paused:
		return Warning(fmt.Sprintf("session %s is already paused", name)), nil
	}
	if err := c.Signals.Send(rec.PGID, procgroup.Suspend); err != nil {
		return "", fmt.Errorf("pause %s: %w", name, err)
	}
	return "", c.transition(rec, session.Paused)
}

// Continue resumes a paused session.
func (c *Controller) Continue(ctx context.Context, name string) (Warning, error) {
	rec, _, err := c.live(ctx, name)
	if err != nil {
		return "", err
	}
	switch rec.State {
	case session.Stopped:
		return "", fmt.Errorf("%w: cannot continue stopped session %s", ErrInvalidTransition, name)
	case session.Paused:
	default:
		return Warning(fmt.Sprintf("session %s is not paused", name)), nil
	}
	if err := c.Signals.Send(rec.PGID, procgroup.Resume); err != nil {
		return "", fmt.Errorf("continue %s: %w", name, err)
	}
	return "", c.transition(rec, session.Running)
}

// Stop interrupts a session, waits the grace period and marks it Stopped
// whether or not the process has exited.
func (c *Controller) Stop(ctx context.Context, name string) (Warning, error) {
	rec, _, err := c.live(ctx, name)
	if err != nil {
		return "", err
	}
	if rec.State == session.Stopped {
		return "", fmt.Errorf("%w: session %s is already stopped", ErrInvalidTransition, name)
	}
	if err := c.Signals.Send(rec.PGID, procgroup.Interrupt); err != nil {
		return "", fmt.Errorf("stop %s: %w", name, err)
	}
	// A suspended group only sees the interrupt once it runs again.
	if rec.State == session.Paused {
		if err := c.Signals.Send(rec.PGID, procgroup.Resume); err != nil {
			c.Log.Warn("failed to resume paused session for shutdown", "session", name, "err", err)
		}
	}
	if c.Grace > 0 {
		if err := c.Sleep(ctx, c.Grace); err != nil {
			return "", err
		}
	}
	var w Warning
	if c.Signals.Alive(rec.PGID) {
		w = Warning(fmt.Sprintf("session %s did not exit within %s; marked stopped", name, c.Grace))
	}
	return w, c.transition(rec, session.Stopped)
}

// Attach connects the terminal to a live session.
func (c *Controller) Attach(ctx context.Context, name string) error {
	_, m, err := c.live(ctx, name)
	if err != nil {
		return err
	}
	return m.Attach(ctx, name)
}

// Lookup returns the reconciled status of one session.
func (c *Controller) Lookup(ctx context.Context, name string) Status {
	rec, _, alive := c.resolve(ctx, name)
	return reconcile(rec, alive)
}

// List reports every known session, recorded or discovered through the
// multiplexer, with its state reconciled against liveness.
func (c *Controller) List(ctx context.Context) ([]Status, error) {
	recs, err := c.Store.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.Name] = true
	}
	names, err := c.Mux.List(ctx)
	if err != nil {
		c.Log.Warn("failed to list multiplexer sessions", "err", err)
	}
	for _, n := range names {
		if strings.HasPrefix(n, session.NamePrefix) && !seen[n] && session.ValidName(n) {
			recs = append(recs, &session.Record{Name: n, State: session.Unknown})
		}
	}

	out := make([]Status, 0, len(recs))
	for _, r := range recs {
		m := c.backendFor(r)
		pgid := r.PGID
		if pgid == 0 {
			if p, err := m.Lookup(ctx, r.Name); err == nil {
				pgid = p
				r.PGID = p
			}
		}
		alive := pgid > 1 && m.Exists(ctx, r.Name, pgid)
		out = append(out, reconcile(r, alive))
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// reconcile applies liveness to the stored state: a dead group is always
// Stopped, and an unknown live one is Running.
func reconcile(r *session.Record, alive bool) Status {
	st := Status{
		Name:    r.Name,
		State:   r.State,
		Stored:  r.State,
		Alive:   alive,
		PGID:    r.PGID,
		Backend: r.Backend,
		RunDir:  r.RunDir,
		Created: r.CreatedAt,
	}
	switch {
	case !alive:
		st.State = session.Stopped
	case r.State == session.Unknown || !r.State.Valid():
		st.State = session.Running
	}
	return st
}

// Start creates a session record and launches a driver for it in a new
// detached process group.
func (c *Controller) Start(ctx context.Context, cfg config.Config) (*session.Record, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if _, err := config.Preflight(cfg); err != nil {
		return nil, err
	}
	if len(c.Command) == 0 {
		return nil, errors.New("no driver command configured")
	}

	live, err := c.Mux.List(ctx)
	if err != nil {
		c.Log.Warn("failed to list multiplexer sessions", "err", err)
	}
	now := c.Now()
	name := session.NewName(now, func(n string) bool {
		if slices.Contains(live, n) {
			return true
		}
		_, err := c.Store.Load(n)
		return err == nil
	})

	runTag := driver.NewRunTag(now)
	runDir, err := filepath.Abs(driver.RunDir(cfg, runTag))
	if err != nil {
		return nil, fmt.Errorf("resolving run directory: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	rec := &session.Record{
		Name:      name,
		State:     session.Running,
		RunDir:    runDir,
		RunTag:    runTag,
		Backend:   c.Mux.Name(),
		CreatedAt: now,
	}
	if err := c.Store.Save(rec); err != nil {
		return nil, err
	}

	argv := append(slices.Clone(c.Command), "--session", name)
	pgid, err := c.Mux.Launch(ctx, mux.LaunchSpec{
		Name:    name,
		Dir:     c.Dir,
		Argv:    argv,
		LogPath: filepath.Join(runDir, "console.log"),
	})
	if err != nil {
		rec.State = session.Stopped
		if serr := c.Store.Save(rec); serr != nil {
			c.Log.Warn("failed to record failed start", "session", name, "err", serr)
		}
		return nil, fmt.Errorf("launching session %s: %w", name, err)
	}

	// The driver may already have written its own state; keep it.
	if cur, err := c.Store.Load(name); err == nil {
		rec = cur
	}
	rec.PGID = pgid
	if err := c.Store.Save(rec); err != nil {
		return nil, err
	}
	c.Log.Info("session started", "session", name, "pgid", pgid, "backend", rec.Backend, "run_dir", runDir)
	return rec, nil
}
