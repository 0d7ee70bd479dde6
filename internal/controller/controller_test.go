package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/fuzzherd/internal/config"
	"github.com/fakeyudi/fuzzherd/internal/mux"
	"github.com/fakeyudi/fuzzherd/internal/procgroup"
	"github.com/fakeyudi/fuzzherd/internal/session"
)

type sent struct {
	pgid int
	msg  procgroup.Message
}

type fakeSignals struct {
	alive map[int]bool
	sent  []sent
	// exitOnInterrupt kills the group when it is interrupted.
	exitOnInterrupt bool
}

func (f *fakeSignals) Send(pgid int, m procgroup.Message) error {
	if !f.alive[pgid] {
		return procgroup.ErrNoGroup
	}
	f.sent = append(f.sent, sent{pgid, m})
	if m == procgroup.Interrupt && f.exitOnInterrupt {
		f.alive[pgid] = false
	}
	return nil
}

func (f *fakeSignals) Alive(pgid int) bool { return f.alive[pgid] }

type fakeMux struct {
	sig      *fakeSignals
	sessions map[string]int // name -> pgid
	launched []mux.LaunchSpec
	nextPGID int
	failLaunch error
	attached []string
}

func (m *fakeMux) Name() string { return "fake" }

func (m *fakeMux) Launch(_ context.Context, spec mux.LaunchSpec) (int, error) {
	if m.failLaunch != nil {
		return 0, m.failLaunch
	}
	m.launched = append(m.launched, spec)
	m.nextPGID++
	m.sessions[spec.Name] = m.nextPGID
	m.sig.alive[m.nextPGID] = true
	return m.nextPGID, nil
}

func (m *fakeMux) Lookup(_ context.Context, name string) (int, error) {
	if pgid, ok := m.sessions[name]; ok {
		return pgid, nil
	}
	return 0, mux.ErrUnknownSession
}

func (m *fakeMux) Exists(_ context.Context, _ string, pgid int) bool { return m.sig.alive[pgid] }

func (m *fakeMux) List(context.Context) ([]string, error) {
	var names []string
	for n := range m.sessions {
		names = append(names, n)
	}
	return names, nil
}

func (m *fakeMux) Attach(_ context.Context, name string) error {
	m.attached = append(m.attached, name)
	return nil
}

type fixture struct {
	c     *Controller
	store session.Store
	sig   *fakeSignals
	mux   *fakeMux
	slept []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := session.NewStoreAt(t.TempDir())
	require.NoError(t, err)
	sig := &fakeSignals{alive: map[int]bool{}}
	m := &fakeMux{sig: sig, sessions: map[string]int{}, nextPGID: 100}
	f := &fixture{store: store, sig: sig, mux: m}
	f.c = New(store, m, sig, nil)
	f.c.Grace = 3 * time.Second
	f.c.Sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

// session records name with state and a group that is alive or not.
func (f *fixture) session(t require.TestingT, name string, st session.State, pgid int, alive bool) {
	require.NoError(t, f.store.Save(&session.Record{Name: name, State: st, PGID: pgid, Backend: "fake"}))
	f.sig.alive[pgid] = alive
}

func (f *fixture) listed(t *testing.T, name string) session.State {
	t.Helper()
	all, err := f.c.List(context.Background())
	require.NoError(t, err)
	for _, s := range all {
		if s.Name == name {
			return s.State
		}
	}
	t.Fatalf("session %s not listed", name)
	return ""
}

func TestPauseContinueStopScenario(t *testing.T) {
	f := newFixture(t)
	f.sig.exitOnInterrupt = true
	ctx := context.Background()
	f.session(t, "fuzz-a", session.Running, 42, true)
	assert.Equal(t, session.Running, f.listed(t, "fuzz-a"))

	w, err := f.c.Pause(ctx, "fuzz-a")
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.Equal(t, session.Paused, f.listed(t, "fuzz-a"))

	w, err = f.c.Continue(ctx, "fuzz-a")
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.Equal(t, session.Running, f.listed(t, "fuzz-a"))

	w, err = f.c.Stop(ctx, "fuzz-a")
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.Equal(t, session.Stopped, f.listed(t, "fuzz-a"))
	assert.Equal(t, session.Stopped, f.store.Get("fuzz-a"))

	assert.Equal(t, []sent{{42, procgroup.Suspend}, {42, procgroup.Resume}, {42, procgroup.Interrupt}}, f.sig.sent)
	assert.Equal(t, []time.Duration{3 * time.Second}, f.slept)
}

func TestDeadGroupIsSessionNotFound(t *testing.T) {
	ops := map[string]func(*Controller, context.Context, string) error{
		"pause":    func(c *Controller, ctx context.Context, n string) error { _, err := c.Pause(ctx, n); return err },
		"continue": func(c *Controller, ctx context.Context, n string) error { _, err := c.Continue(ctx, n); return err },
		"stop":     func(c *Controller, ctx context.Context, n string) error { _, err := c.Stop(ctx, n); return err },
		"attach":   func(c *Controller, ctx context.Context, n string) error { return c.Attach(ctx, n) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.session(t, "fuzz-a", session.Paused, 42, false)
			err := op(f.c, context.Background(), "fuzz-a")
			require.ErrorIs(t, err, ErrSessionNotFound)
			assert.Equal(t, session.Paused, f.store.Get("fuzz-a"), "state must not change")
			assert.Empty(t, f.sig.sent)

			err = op(f.c, context.Background(), "fuzz-missing")
			require.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestPauseOnStoppedIsInvalid(t *testing.T) {
	f := newFixture(t)
	// Stopped in the store but the process lingers.
	f.session(t, "fuzz-a", session.Stopped, 42, true)
	_, err := f.c.Pause(context.Background(), "fuzz-a")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.c.Continue(context.Background(), "fuzz-a")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.c.Stop(context.Background(), "fuzz-a")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, session.Stopped, f.store.Get("fuzz-a"))
	assert.Empty(t, f.sig.sent)
}

func TestNoOpWarnings(t *testing.T) {
	f := newFixture(t)
	f.session(t, "fuzz-a", session.Paused, 42, true)
	w, err := f.c.Pause(context.Background(), "fuzz-a")
	require.NoError(t, err)
	assert.Contains(t, string(w), "already paused")

	f.session(t, "fuzz-b", session.Running, 43, true)
	w, err = f.c.Continue(context.Background(), "fuzz-b")
	require.NoError(t, err)
	assert.Contains(t, string(w), "not paused")
	assert.Equal(t, session.Running, f.store.Get("fuzz-b"))
	assert.Empty(t, f.sig.sent)
}

func TestTransitionProperties(t *testing.T) {
	states := []session.State{session.Unknown, session.Running, session.Paused, session.Stopped}
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		st := rapid.SampledFrom(states).Draw(rt, "state")
		alive := rapid.Bool().Draw(rt, "alive")
		f.session(rt, "fuzz-p", st, 42, alive)
		op := rapid.IntRange(0, 2).Draw(rt, "op")

		var w Warning
		var err error
		switch op {
		case 0:
			w, err = f.c.Pause(context.Background(), "fuzz-p")
		case 1:
			w, err = f.c.Continue(context.Background(), "fuzz-p")
		default:
			w, err = f.c.Stop(context.Background(), "fuzz-p")
		}
		after := f.store.Get("fuzz-p")

		switch {
		case !alive:
			if !errors.Is(err, ErrSessionNotFound) || after != st {
				rt.Fatalf("dead group: err %v, state %s -> %s", err, st, after)
			}
		case st == session.Stopped:
			if !errors.Is(err, ErrInvalidTransition) || after != st {
				rt.Fatalf("stopped: err %v, state -> %s", err, after)
			}
		case op == 1 && st != session.Paused:
			if err != nil || w == "" || after != st {
				rt.Fatalf("continue from %s: warning %q err %v state -> %s", st, w, err, after)
			}
		case op == 0 && st == session.Paused:
			if err != nil || w == "" || after != st {
				rt.Fatalf("pause when paused: warning %q err %v", w, err)
			}
		case op == 2:
			if err != nil || after != session.Stopped {
				rt.Fatalf("stop from %s: err %v state -> %s", st, err, after)
			}
		}
	})
}

func TestStopPausedResumesAfterInterrupt(t *testing.T) {
	f := newFixture(t)
	f.session(t, "fuzz-a", session.Paused, 42, true)
	w, err := f.c.Stop(context.Background(), "fuzz-a")
	require.NoError(t, err)
	assert.Contains(t, string(w), "did not exit", "process still alive after grace")
	assert.Equal(t, []sent{{42, procgroup.Interrupt}, {42, procgroup.Resume}}, f.sig.sent)
	assert.Equal(t, session.Stopped, f.store.Get("fuzz-a"))
}

func TestListReconcilesWithLiveness(t *testing.T) {
	f := newFixture(t)
	f.session(t, "fuzz-dead", session.Running, 10, false)
	f.session(t, "fuzz-paused", session.Paused, 11, true)
	// Known to the multiplexer only.
	f.mux.sessions["fuzz-orphan"] = 12
	f.sig.alive[12] = true
	f.mux.sessions["other"] = 13
	f.sig.alive[13] = true

	all, err := f.c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "fuzz-dead", all[0].Name)
	assert.Equal(t, session.Stopped, all[0].State)
	assert.Equal(t, session.Running, all[0].Stored)
	assert.Equal(t, "fuzz-orphan", all[1].Name)
	assert.Equal(t, session.Running, all[1].State)
	assert.Equal(t, session.Paused, all[2].State)
}

func TestUnknownLiveSessionCanBePaused(t *testing.T) {
	f := newFixture(t)
	f.mux.sessions["fuzz-orphan"] = 12
	f.sig.alive[12] = true
	_, err := f.c.Pause(context.Background(), "fuzz-orphan")
	require.NoError(t, err)
	assert.Equal(t, session.Paused, f.store.Get("fuzz-orphan"))
}

func TestAttach(t *testing.T) {
	f := newFixture(t)
	f.session(t, "fuzz-a", session.Running, 42, true)
	require.NoError(t, f.c.Attach(context.Background(), "fuzz-a"))
	assert.Equal(t, []string{"fuzz-a"}, f.mux.attached)
}

func startConfig(t *testing.T) config.Config {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.SamplesDir = filepath.Join(dir, "samples")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Target.Path = "/bin/sh"
	cfg.Mutator.Path = "/bin/sh"
	require.NoError(t, os.MkdirAll(cfg.SamplesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SamplesDir, "seed"), []byte("x"), 0o644))
	return cfg
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	f.c.Command = []string{"/usr/local/bin/fuzzherd", "run"}
	f.c.Now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	cfg := startConfig(t)

	rec, err := f.c.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "fuzz-20261019-120000", rec.Name)
	assert.Equal(t, session.Running, rec.State)
	assert.Equal(t, 101, rec.PGID)
	assert.DirExists(t, rec.RunDir)

	require.Len(t, f.mux.launched, 1)
	spec := f.mux.launched[0]
	assert.Equal(t, []string{"/usr/local/bin/fuzzherd", "run", "--session", rec.Name}, spec.Argv)
	assert.Equal(t, filepath.Join(rec.RunDir, "console.log"), spec.LogPath)

	stored, err := f.store.Load(rec.Name)
	require.NoError(t, err)
	assert.Equal(t, 101, stored.PGID)

	// Same second: the name gets a suffix.
	rec2, err := f.c.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, rec.Name, rec2.Name)
}

func TestStartPreflight(t *testing.T) {
	f := newFixture(t)
	f.c.Command = []string{"fuzzherd", "run"}
	cfg := startConfig(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.SamplesDir, "seed")))

	_, err := f.c.Start(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrNoSamples)

	cfg = startConfig(t)
	cfg.Mutator.Path = "definitely-not-a-mutator"
	_, err = f.c.Start(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrToolMissing)
	assert.Empty(t, f.mux.launched)
}

func TestStartLaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.c.Command = []string{"fuzzherd", "run"}
	f.mux.failLaunch = errors.New("no tmux server")
	_, err := f.c.Start(context.Background(), startConfig(t))
	require.Error(t, err)

	recs, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, session.Stopped, recs[0].State)
}
