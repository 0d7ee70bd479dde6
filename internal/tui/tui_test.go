package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/fuzzherd/internal/session"
	"github.com/fakeyudi/fuzzherd/internal/stats"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func writeFeed(t *testing.T, runDir string, c *stats.Counters) {
	t.Helper()
	s, err := stats.NewSnapshotter(filepath.Join(runDir, "stats"), filepath.Join(runDir, stats.FeedFile), "run-1", "fuzz-a", time.Hour, t0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Display(stats.Take("run-1", "fuzz-a", c, t0.Add(time.Minute))))
}

func ready(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestModelShowsFeed(t *testing.T) {
	runDir := t.TempDir()
	c := stats.NewCounters(t0)
	c.TotalMutants = 1234
	c.Crashes = 3
	c.Intentional[50] = 9
	writeFeed(t, runDir, c)
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "crashed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "crashed", "seed-abc"), nil, 0o644))

	m := ready(t, New(Source{Session: "fuzz-a", RunDir: runDir, State: func() session.State { return session.Paused }}, nil))
	msg := m.load()()
	next, _ := m.Update(msg)
	next, _ = next.Update(tickMsg(t0))
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "fuzz-a")
	assert.Contains(t, view, "1234")
	assert.Contains(t, view, "paused")

	m.activeTab = tabCodes
	assert.Contains(t, m.View(), "exit 50")
	m.activeTab = tabArtifacts
	assert.Contains(t, m.View(), "seed-abc")
}

func TestModelWithoutFeed(t *testing.T) {
	m := ready(t, New(Source{Session: "fuzz-a", RunDir: t.TempDir()}, nil))
	next, _ := m.Update(m.load()())
	assert.Contains(t, next.(Model).View(), "waiting for the first status update")
}

func TestQuitKeys(t *testing.T) {
	m := New(Source{RunDir: t.TempDir()}, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTabNavigation(t *testing.T) {
	m := ready(t, New(Source{RunDir: t.TempDir()}, nil))
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, tabCodes, next.(Model).activeTab)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, tabArtifacts, next.(Model).activeTab)
}

func TestWatchSignalsOnReplace(t *testing.T) {
	runDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := Watch(ctx, filepath.Join(runDir, stats.FeedFile))
	require.NoError(t, err)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "other"), []byte("x"), 0o644))
	writeFeed(t, runDir, stats.NewCounters(t0))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
