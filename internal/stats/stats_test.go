package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestCloneIsIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCounters(t0)
		c.TotalMutants = rapid.Uint64Range(0, 1000).Draw(t, "mutants")
		for _, code := range rapid.SliceOfN(rapid.IntRange(-31, 255), 0, 5).Draw(t, "codes") {
			c.Intentional[code]++
		}
		snap := c.Clone()

		c.TotalMutants++
		c.Intentional[9999] = 1
		for code := range c.Intentional {
			c.Intentional[code] += 10
		}

		if snap.TotalMutants+1 != c.TotalMutants {
			t.Fatalf("clone shares TotalMutants")
		}
		if _, ok := snap.Intentional[9999]; ok {
			t.Fatalf("clone shares the intentional map")
		}
		for code, n := range snap.Intentional {
			if c.Intentional[code] != n+10 {
				t.Fatalf("code %d: clone %d, live %d", code, n, c.Intentional[code])
			}
		}
	})
}

func TestConsistent(t *testing.T) {
	c := NewCounters(t0)
	c.TotalMutants = 10
	c.Crashes = 3
	c.Hangs = 2
	c.Intentional[50] = 5
	assert.True(t, c.Consistent())
	assert.Equal(t, uint64(10), c.Findings())
	c.Hangs++
	assert.False(t, c.Consistent())
	assert.Equal(t, []int{50}, c.Codes())
}

func TestTextRenderer(t *testing.T) {
	c := NewCounters(t0)
	c.TotalSamples = 2
	c.TotalMutants = 120
	c.Crashes = 1
	c.Intentional[50] = 7
	c.Intentional[-6] = 1
	c.LastDiscovery = t0.Add(30 * time.Second)
	snap := Take("run-1", "fuzz-a", c, t0.Add(time.Minute))

	out, err := (&TextRenderer{}).Render(snap)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "run run-1")
	assert.Contains(t, text, "total mutants:        120")
	assert.Contains(t, text, "exec/s:               2.00")
	assert.Contains(t, text, "intentional exits:    8")
	assert.Less(t, strings.Index(text, "code -6"), strings.Index(text, "code 50"))
	assert.Contains(t, text, "(30s ago)")
}

func TestJSONRoundTrip(t *testing.T) {
	c := NewCounters(t0)
	c.TotalMutants = 5
	c.Intentional[50] = 2
	snap := Take("run-1", "fuzz-a", c, t0.Add(time.Second))

	data, err := (&JSONRenderer{}).Render(snap)
	require.NoError(t, err)
	got, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Counters.Intentional[50])
	assert.Equal(t, "fuzz-a", got.Session)
	assert.True(t, got.TakenAt.Equal(snap.TakenAt))
}

func TestSnapshotterDueAndUniqueNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotter(filepath.Join(dir, "stats"), filepath.Join(dir, FeedFile), "run-1", "fuzz-a", time.Minute, t0, nil)
	require.NoError(t, err)
	c := NewCounters(t0)

	assert.False(t, s.Due(t0.Add(59*time.Second)))
	path, err := s.Tick(c, t0.Add(59*time.Second))
	require.NoError(t, err)
	assert.Empty(t, path)

	at := t0.Add(time.Minute)
	first, err := s.Tick(c, at)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.False(t, s.Due(at.Add(time.Second)), "interval restarts from the previous snapshot")

	// Same timestamp again: a new file, never an overwrite.
	second, err := s.Write(Take("run-1", "fuzz-a", c, at))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := os.ReadDir(filepath.Join(dir, "stats"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 2, "temp files must not linger: %v", names)
	for _, n := range names {
		assert.True(t, strings.HasPrefix(n, "run-1-"), n)
	}
}

func TestSnapshotIsPointInTime(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotter(dir, "", "run-1", "", time.Hour, t0, nil)
	require.NoError(t, err)
	c := NewCounters(t0)
	c.TotalMutants = 3

	snap := Take("run-1", "", c, t0.Add(time.Second))
	c.TotalMutants = 400
	path, err := s.Write(snap)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "total mutants:        3\n")
}

func TestFlushWritesFinalSnapshotAndFeed(t *testing.T) {
	dir := t.TempDir()
	feed := filepath.Join(dir, FeedFile)
	s, err := NewSnapshotter(filepath.Join(dir, "stats"), feed, "run-2", "fuzz-b", time.Hour, t0, nil)
	require.NoError(t, err)
	c := NewCounters(t0)
	c.TotalMutants = 42

	path, err := s.Flush(c, t0.Add(10*time.Second))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "final:                yes")

	got, err := ReadFeed(feed)
	require.NoError(t, err)
	assert.True(t, got.Final)
	assert.Equal(t, uint64(42), got.Counters.TotalMutants)
}

func TestTickFailureWaitsForNextInterval(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotter(filepath.Join(dir, "stats"), "", "run-1", "", time.Minute, t0, nil)
	require.NoError(t, err)
	c := NewCounters(t0)

	// The snapshot directory disappears and a file takes its place.
	require.NoError(t, os.RemoveAll(s.Dir))
	require.NoError(t, os.WriteFile(s.Dir, []byte("x"), 0o644))

	at := t0.Add(time.Minute)
	_, err = s.Tick(c, at)
	require.Error(t, err)
	assert.False(t, s.Due(at.Add(time.Second)), "a failed write must not retry on every trial")

	path, err := s.Tick(c, at.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.True(t, s.Due(at.Add(time.Minute)))
}
