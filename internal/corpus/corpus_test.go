package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/fuzzherd/internal/findings"
	"github.com/fakeyudi/fuzzherd/internal/outcome"
	"github.com/fakeyudi/fuzzherd/internal/stats"
	"github.com/fakeyudi/fuzzherd/internal/trial"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type memIndex struct {
	added []findings.Finding
	err   error
}

func (m *memIndex) Add(f findings.Finding) error {
	m.added = append(m.added, f)
	return m.err
}

func newRun(t *testing.T, capPerCode int) (*Manager, *stats.Counters) {
	t.Helper()
	l := Layout{Root: t.TempDir()}
	require.NoError(t, l.Acquire())
	m, err := NewManager(l, capPerCode, nil)
	require.NoError(t, err)
	return m, stats.NewCounters(t0)
}

func mutant(t *testing.T, m *Manager, i int) string {
	t.Helper()
	path := filepath.Join(m.Layout.Mutants(), fmt.Sprintf("seed.bin-%04d", i))
	require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
	return path
}

func count(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestIntentionalCap(t *testing.T) {
	m, c := newRun(t, 5)
	o := outcome.Outcome{Kind: outcome.Intentional, Code: 50}

	for i := 0; i < 100; i++ {
		m.Record(trial.Trial{Sample: "seed.bin"}, trial.Result{Outcome: o, Mutant: mutant(t, m, i)}, c, t0)
	}

	assert.Equal(t, uint64(100), c.Intentional[50])
	assert.Equal(t, uint64(100), c.TotalMutants)
	assert.Equal(t, 5, count(t, m.Layout.Intentional(50)))
	assert.Equal(t, 0, count(t, m.Layout.Mutants()), "mutants are deleted after each trial")
}

func TestCapsAreIndependentPerCode(t *testing.T) {
	m, c := newRun(t, 2)
	for i := 0; i < 10; i++ {
		code := 50
		if i%2 == 1 {
			code = 51
		}
		o := outcome.Outcome{Kind: outcome.Intentional, Code: code}
		m.Record(trial.Trial{}, trial.Result{Outcome: o, Mutant: mutant(t, m, i)}, c, t0)
	}
	assert.Equal(t, 2, count(t, m.Layout.Intentional(50)))
	assert.Equal(t, 2, count(t, m.Layout.Intentional(51)))
	assert.Equal(t, uint64(5), c.Intentional[50])
	assert.Equal(t, uint64(5), c.Intentional[51])
}

func TestCapSeededFromDisk(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(l.Intentional(7), 0o755))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(l.Intentional(7), fmt.Sprint(i)), nil, 0o644))
	}
	m, err := NewManager(l, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Retained(7))
}

func TestCrashAndHangAreRetained(t *testing.T) {
	m, c := newRun(t, 5)
	idx := &memIndex{}
	m.Index = idx

	crash := m.Record(trial.Trial{Sample: "s", Seed: 11}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Crash}, Mutant: mutant(t, m, 1)}, c, t0.Add(time.Second))
	hang := m.Record(trial.Trial{Sample: "s", Seed: 12}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Hang}, Mutant: mutant(t, m, 2)}, c, t0.Add(2*time.Second))

	assert.Equal(t, filepath.Join(m.Layout.Crashed(), "seed.bin-0001"), crash)
	assert.Equal(t, filepath.Join(m.Layout.Hanging(), "seed.bin-0002"), hang)
	assert.Equal(t, uint64(1), c.Crashes)
	assert.Equal(t, uint64(1), c.Hangs)
	assert.True(t, c.LastDiscovery.Equal(t0.Add(2*time.Second)))
	require.Len(t, idx.added, 2)
	assert.Equal(t, int64(11), idx.added[0].Seed)
	assert.Equal(t, "hang", idx.added[1].Kind)
}

func TestNormalLeavesDiscoveryAlone(t *testing.T) {
	m, c := newRun(t, 5)
	m.Record(trial.Trial{}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Normal}, Mutant: mutant(t, m, 1)}, c, t0)
	assert.True(t, c.LastDiscovery.IsZero())
	assert.Equal(t, uint64(1), c.TotalMutants)
	assert.Equal(t, uint64(0), c.Findings())
}

func TestCopyFailureStillCounts(t *testing.T) {
	m, c := newRun(t, 5)
	missing := filepath.Join(m.Layout.Mutants(), "gone")
	got := m.Record(trial.Trial{}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Crash}, Mutant: missing}, c, t0)
	assert.Empty(t, got)
	assert.Equal(t, uint64(1), c.Crashes)
	assert.Equal(t, 0, count(t, m.Layout.Crashed()))
}

func TestIndexFailureIsIgnored(t *testing.T) {
	m, c := newRun(t, 5)
	m.Index = &memIndex{err: errors.New("disk full")}
	got := m.Record(trial.Trial{}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Crash}, Mutant: mutant(t, m, 1)}, c, t0)
	assert.NotEmpty(t, got)
}

func TestKeepMutants(t *testing.T) {
	m, c := newRun(t, 5)
	m.KeepMutants = true
	p := mutant(t, m, 1)
	m.Record(trial.Trial{}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Normal}, Mutant: p}, c, t0)
	assert.FileExists(t, p)
	require.NoError(t, m.Layout.Release(true))
	assert.FileExists(t, p)
}

func TestRelease(t *testing.T) {
	m, c := newRun(t, 5)
	m.KeepMutants = true
	mutant(t, m, 1)
	m.Record(trial.Trial{}, trial.Result{Outcome: outcome.Outcome{Kind: outcome.Crash}, Mutant: mutant(t, m, 2)}, c, t0)

	require.NoError(t, m.Layout.Release(false))
	assert.NoDirExists(t, m.Layout.Mutants())
	assert.NoDirExists(t, m.Layout.Hanging(), "empty category directories are removed")
	assert.DirExists(t, m.Layout.Crashed())
}

func TestCountersStayConsistent(t *testing.T) {
	kinds := []outcome.Kind{outcome.Normal, outcome.Intentional, outcome.Crash, outcome.Hang}
	rapid.Check(t, func(rt *rapid.T) {
		m, c := newRun(t, rapid.IntRange(0, 3).Draw(rt, "cap"))
		m.KeepMutants = true
		n := rapid.IntRange(0, 40).Draw(rt, "trials")
		for i := 0; i < n; i++ {
			o := outcome.Outcome{Kind: kinds[rapid.IntRange(0, 3).Draw(rt, "kind")]}
			if o.Kind == outcome.Intentional {
				o.Code = rapid.IntRange(1, 3).Draw(rt, "code")
			}
			m.Record(trial.Trial{}, trial.Result{Outcome: o, Mutant: filepath.Join(m.Layout.Mutants(), "missing")}, c, t0)
			if !c.Consistent() {
				rt.Fatalf("findings %d exceed total %d", c.Findings(), c.TotalMutants)
			}
		}
		if c.TotalMutants != uint64(n) {
			rt.Fatalf("total %d, want %d", c.TotalMutants, n)
		}
	})
}
