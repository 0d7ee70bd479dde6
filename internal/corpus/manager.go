package corpus

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fakeyudi/fuzzherd/internal/findings"
	"github.com/fakeyudi/fuzzherd/internal/outcome"
	"github.com/fakeyudi/fuzzherd/internal/stats"
	"github.com/fakeyudi/fuzzherd/internal/trial"
)

// Index receives every retained artifact.
type Index interface {
	Add(f findings.Finding) error
}

// Manager records trial outcomes into the counters and the run tree.
type Manager struct {
	Layout Layout
	// Cap bounds the retained artifacts per intentional exit code.
	Cap int
	// KeepMutants disables deleting mutants after each trial.
	KeepMutants bool
	Index       Index
	Log         *slog.Logger

	retained map[int]int
}

// NewManager returns a Manager for l, seeding per-code retained counts from
// artifacts already on disk.
func NewManager(l Layout, capPerCode int, log *slog.Logger) (*Manager, error) {
	counts, err := l.retainedCounts()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{Layout: l, Cap: capPerCode, Log: log, retained: counts}, nil
}

// Retained returns how many artifacts are kept for intentional code.
func (m *Manager) Retained(code int) int {
	return m.retained[code]
}

// Record accounts one completed trial. Counters change whether or not the
// artifact copy succeeds; copy failures are logged and otherwise ignored. It
// returns the retained artifact path, if any.
func (m *Manager) Record(t trial.Trial, r trial.Result, c *stats.Counters, now time.Time) string {
	c.TotalMutants++
	o := r.Outcome
	if o.Finding() {
		c.LastDiscovery = now
	}

	var dir string
	switch o.Kind {
	case outcome.Crash:
		c.Crashes++
		dir = m.Layout.Crashed()
	case outcome.Hang:
		c.Hangs++
		dir = m.Layout.Hanging()
	case outcome.Intentional:
		c.Intentional[o.Code]++
		if m.retained[o.Code] < m.Cap {
			dir = m.Layout.Intentional(o.Code)
		} else {
			m.Log.Debug("intentional artifact cap reached", "code", o.Code, "cap", m.Cap)
		}
	}

	var artifact string
	if dir != "" {
		path, err := copyInto(r.Mutant, dir)
		if err != nil {
			m.Log.Warn("failed to retain artifact", "outcome", o.String(), "mutant", r.Mutant, "err", err)
		} else {
			artifact = path
			if o.Kind == outcome.Intentional {
				m.retained[o.Code]++
			}
			m.Log.Info("finding", "outcome", o.String(), "sample", filepath.Base(t.Sample), "seed", t.Seed, "artifact", path)
			if m.Index != nil {
				f := findings.New(o, t.Sample, t.Seed, t.Intensity, path, now)
				if err := m.Index.Add(f); err != nil {
					m.Log.Warn("failed to index finding", "artifact", path, "err", err)
				}
			}
		}
	}

	if !m.KeepMutants && r.Mutant != "" {
		if err := os.Remove(r.Mutant); err != nil && !os.IsNotExist(err) {
			m.Log.Warn("failed to delete mutant", "mutant", r.Mutant, "err", err)
		}
	}
	return artifact
}

// copyInto copies src into dir under its own base name. The copy appears
// atomically.
func copyInto(src, dir string) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	path = filepath.Join(dir, filepath.Base(src))
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}
