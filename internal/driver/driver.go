// Package driver runs the fuzzing main loop of one session: cycle the
// samples, run trials, record outcomes and publish statistics until told to
// stop.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/fuzzherd/internal/config"
	"github.com/fakeyudi/fuzzherd/internal/corpus"
	"github.com/fakeyudi/fuzzherd/internal/findings"
	"github.com/fakeyudi/fuzzherd/internal/metrics"
	"github.com/fakeyudi/fuzzherd/internal/outcome"
	"github.com/fakeyudi/fuzzherd/internal/session"
	"github.com/fakeyudi/fuzzherd/internal/stats"
	"github.com/fakeyudi/fuzzherd/internal/trial"
)

// maxSeed bounds mutation seeds to what common mutators accept.
const maxSeed = 1 << 31

// interruptSettle is how long a trial whose target died of SIGINT waits for
// the same signal to cancel the run.
const interruptSettle = 200 * time.Millisecond

// NewRunTag returns a tag unique to one driver start.
func NewRunTag(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// RunDir is where the run tagged runTag keeps its files.
func RunDir(cfg config.Config, runTag string) string {
	return filepath.Join(cfg.OutputDir, "runs", runTag)
}

// Options configure a driver.
type Options struct {
	Config  config.Config
	Session string
	RunTag  string
	RunDir  string
	// Store, when set, receives the final Stopped state of Session.
	Store session.Store
	Log   *slog.Logger
	// Console receives a one-line summary at every display refresh.
	Console io.Writer

	// Mutator and Target override the configured commands.
	Mutator trial.Mutator
	Target  trial.Target
	// Now defaults to time.Now.
	Now func() time.Time
	// Seed fixes the mutation seed sequence. Zero seeds from the clock.
	Seed uint64
}

// Driver is the single owner of a run's counters.
type Driver struct {
	cfg      config.Config
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	samples  []string
	rng      *rand.Rand
	layout   corpus.Layout
	counters *stats.Counters
	exec     *trial.Executor
	corpus   *corpus.Manager
	snap     *stats.Snapshotter
	metrics  *metrics.Metrics
	index    *findings.Index

	failures uint64
}

// New checks that a run can start and prepares its directory tree.
func New(opts Options) (*Driver, error) {
	cfg := opts.Config
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts.RunTag == "" || opts.RunDir == "" {
		return nil, errors.New("run tag and run directory are required")
	}
	samples, err := preflight(opts)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("run", opts.RunTag)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	d := &Driver{
		cfg:      cfg,
		opts:     opts,
		log:      log,
		now:      now,
		samples:  samples,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		layout:   corpus.Layout{Root: opts.RunDir},
		counters: stats.NewCounters(now()),
		metrics:  metrics.New(opts.Session),
	}
	if err := d.layout.Acquire(); err != nil {
		return nil, err
	}

	d.index, err = findings.Open(findings.Config{Path: filepath.Join(opts.RunDir, findings.DirName), Logger: log})
	if err != nil {
		return nil, d.abandon(err)
	}
	d.corpus, err = corpus.NewManager(d.layout, cfg.RetentionCap(), log)
	if err != nil {
		return nil, d.abandon(err)
	}
	d.corpus.KeepMutants = cfg.KeepMutants
	d.corpus.Index = d.index

	d.snap, err = stats.NewSnapshotter(filepath.Join(opts.RunDir, "stats"), filepath.Join(opts.RunDir, stats.FeedFile),
		opts.RunTag, opts.Session, cfg.SnapshotInterval, d.counters.Start, log)
	if err != nil {
		return nil, d.abandon(err)
	}

	mutator, target := opts.Mutator, opts.Target
	if mutator == nil {
		mutator = &trial.CommandMutator{Path: cfg.Mutator.Path, Args: cfg.Mutator.Args}
	}
	if target == nil {
		target = &trial.CommandTarget{Path: cfg.Target.Path, Args: cfg.Target.Args}
	}
	d.exec = &trial.Executor{
		Mutator: mutator,
		Target:  target,
		Classifier: outcome.Classifier{
			Recognized:         cfg.RecognizedCodes(),
			SignalsIntentional: cfg.SignalOutcome == "intentional",
		},
		MutantsDir: d.layout.Mutants(),
		Timeout:    cfg.Timeout,
	}
	return d, nil
}

// abandon undoes a partially prepared run and returns err.
func (d *Driver) abandon(err error) error {
	if d.index != nil {
		d.index.Close()
	}
	if rerr := d.layout.Release(false); rerr != nil {
		d.log.Warn("failed to release run directory", "err", rerr)
	}
	return err
}

// preflight resolves the sample set, checking external tools only when they
// will actually be run.
func preflight(opts Options) ([]string, error) {
	if opts.Mutator == nil && opts.Target == nil {
		return config.Preflight(opts.Config)
	}
	return config.Samples(opts.Config.SamplesDir)
}

// Counters returns a copy of the live counters.
func (d *Driver) Counters() stats.Counters {
	return d.counters.Clone()
}

// Metrics returns the run's collectors.
func (d *Driver) Metrics() *metrics.Metrics {
	return d.metrics
}

// Run executes the main loop until ctx is cancelled or SIGINT/SIGTERM
// arrives, then flushes a final snapshot, records the session as stopped and
// releases the run tree.
func (d *Driver) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.log.Info("run started", "session", d.opts.Session, "samples", len(d.samples), "dir", d.opts.RunDir)
	d.display()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.loop(gctx)
	})
	if d.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return d.metrics.Serve(gctx, d.cfg.MetricsAddr, d.log)
		})
	}
	err := g.Wait()

	return errors.Join(err, d.shutdown())
}

func (d *Driver) loop(ctx context.Context) error {
	cycle, err := NewCycle(d.samples)
	if err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		sample := cycle.Next()
		d.counters.TotalSamples++
		d.log.Debug("sample", "path", sample, "pass", cycle.Passes())
		for i := 0; i < d.cfg.MutantsPerSample; i++ {
			if ctx.Err() != nil {
				return nil
			}
			d.step(ctx, sample)
		}
	}
}

// step runs one trial and everything that follows it.
func (d *Driver) step(ctx context.Context, sample string) {
	t := trial.Trial{
		Sample:    sample,
		Seed:      d.rng.Int64N(maxSeed),
		Intensity: d.cfg.Intensity,
	}
	res, err := d.exec.Run(ctx, t)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		d.failures++
		d.metrics.ObserveMutationFailure()
		if d.failures == 1 || d.failures%1000 == 0 {
			d.log.Warn("trial skipped", "sample", filepath.Base(sample), "failures", d.failures, "err", err)
		}
	case d.interrupted(ctx, res):
		os.Remove(res.Mutant)
		return
	default:
		now := d.now()
		d.corpus.Record(t, res, d.counters, now)
		d.metrics.ObserveTrial(res.Outcome, res.Duration)
		if d.counters.TotalMutants%uint64(d.cfg.DisplayEvery) == 0 {
			d.display()
		}
	}

	if path, err := d.snap.Tick(d.counters, d.now()); err != nil {
		d.log.Warn("snapshot failed", "err", err)
	} else if path != "" {
		d.log.Info("snapshot written", "path", path)
	}
}

// interrupted reports whether res ended because the session was being
// interrupted. The target shares the driver's process group, so an
// interrupt aimed at the session can reach the target first.
func (d *Driver) interrupted(ctx context.Context, res trial.Result) bool {
	if !res.Status.Signaled || res.Status.Signal != syscall.SIGINT {
		return ctx.Err() != nil
	}
	select {
	case <-ctx.Done():
		return true
	case <-time.After(interruptSettle):
		return false
	}
}

func (d *Driver) display() {
	snap := stats.Take(d.opts.RunTag, d.opts.Session, d.counters, d.now())
	if err := d.snap.Display(snap); err != nil {
		d.log.Warn("display refresh failed", "err", err)
	}
	if d.opts.Console != nil {
		c := snap.Counters
		fmt.Fprintf(d.opts.Console, "mutants %d  crashes %d  hangs %d  intentional %d  exec/s %.1f\n",
			c.TotalMutants, c.Crashes, c.Hangs, c.IntentionalTotal(), snap.ExecPerSec())
	}
}

// shutdown runs every cleanup step and reports all failures.
func (d *Driver) shutdown() error {
	var errs []error
	path, err := d.snap.Flush(d.counters, d.now())
	if err != nil {
		errs = append(errs, fmt.Errorf("final snapshot: %w", err))
	} else {
		d.log.Info("final snapshot written", "path", path)
	}

	if d.opts.Store != nil && d.opts.Session != "" {
		if err := d.opts.Store.Set(d.opts.Session, session.Stopped); err != nil {
			d.log.Warn("failed to record session stop", "session", d.opts.Session, "err", err)
		}
	}

	if err := d.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close findings index: %w", err))
	}
	if err := d.layout.Release(d.cfg.KeepMutants); err != nil {
		errs = append(errs, err)
	}
	c := d.counters
	d.log.Info("run stopped", "mutants", c.TotalMutants, "crashes", c.Crashes, "hangs", c.Hangs, "intentional", c.IntentionalTotal())
	return errors.Join(errs...)
}
