package findings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/fuzzherd/internal/outcome"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestAddAndList(t *testing.T) {
	x, err := OpenInMemory()
	require.NoError(t, err)
	defer x.Close()

	require.NoError(t, x.Add(New(outcome.Outcome{Kind: outcome.Crash}, "a.png", 1, 0.01, "crashed/a.png-1", t0.Add(2*time.Second))))
	require.NoError(t, x.Add(New(outcome.Outcome{Kind: outcome.Crash}, "a.png", 2, 0.01, "crashed/a.png-2", t0)))
	require.NoError(t, x.Add(New(outcome.Outcome{Kind: outcome.Intentional, Code: 50}, "b.png", 3, 0.01, "intentional/50/b.png-3", t0)))

	all, err := x.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	crashes, err := x.List(context.Background(), "crash/")
	require.NoError(t, err)
	require.Len(t, crashes, 2)
	assert.Equal(t, int64(2), crashes[0].Seed, "oldest first")
	assert.Equal(t, "crashed/a.png-1", crashes[1].Artifact)

	intentional, err := x.List(context.Background(), "intentional/")
	require.NoError(t, err)
	require.Len(t, intentional, 1)
	assert.Equal(t, 50, intentional[0].Code)
}

func TestPersistentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DirName)
	x, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, x.Add(New(outcome.Outcome{Kind: outcome.Hang}, "s", 9, 0.5, "hanging/s-9", t0)))

	_, err = Open(Config{Path: path})
	require.ErrorIs(t, err, ErrLocked)
	require.NoError(t, x.Close())

	x, err = Open(Config{Path: path, ReadOnly: true})
	require.NoError(t, err)
	defer x.Close()
	got, err := x.List(context.Background(), "hang/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].Seed)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}
