package stats

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FeedFile is the display feed file name inside a run directory.
const FeedFile = "status.json"

// Snapshotter writes durable snapshot files on an interval and refreshes the
// display feed on demand.
type Snapshotter struct {
	Dir      string // durable snapshot directory
	FeedPath string // display feed, overwritten in place
	RunTag   string
	Session  string
	Interval time.Duration
	Log      *slog.Logger

	last time.Time
	text SnapshotRenderer
	feed SnapshotRenderer
}

// NewSnapshotter returns a Snapshotter whose first interval starts at start.
func NewSnapshotter(dir, feedPath, runTag, session string, interval time.Duration, start time.Time, log *slog.Logger) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Snapshotter{
		Dir:      dir,
		FeedPath: feedPath,
		RunTag:   runTag,
		Session:  session,
		Interval: interval,
		Log:      log,
		last:     start,
		text:     &TextRenderer{},
		feed:     &JSONRenderer{},
	}, nil
}

// Due reports whether the interval since the previous snapshot has elapsed.
func (s *Snapshotter) Due(now time.Time) bool {
	return s.Interval > 0 && now.Sub(s.last) >= s.Interval
}

// Tick writes a snapshot when one is due. It returns the file written, if any.
// A failed write still starts a new interval.
func (s *Snapshotter) Tick(c *Counters, now time.Time) (string, error) {
	if !s.Due(now) {
		return "", nil
	}
	path, err := s.Write(Take(s.RunTag, s.Session, c, now))
	if err != nil {
		// Retry on the next interval, not on every trial.
		s.last = now
	}
	return path, err
}

// Write stores snap under a name unique to the run tag and timestamp. Existing
// snapshots are never overwritten.
func (s *Snapshotter) Write(snap Snapshot) (string, error) {
	data, err := s.text.Render(snap)
	if err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	base := fmt.Sprintf("%s-%s", s.RunTag, snap.TakenAt.UTC().Format("20060102T150405.000000000Z"))
	path, err := writeNew(s.Dir, base, ".txt", data)
	if err != nil {
		return "", err
	}
	s.last = snap.TakenAt
	s.Log.Debug("snapshot written", "path", path, "mutants", snap.Counters.TotalMutants)
	return path, nil
}

// Display refreshes the live display feed with snap.
func (s *Snapshotter) Display(snap Snapshot) error {
	if s.FeedPath == "" {
		return nil
	}
	data, err := s.feed.Render(snap)
	if err != nil {
		return fmt.Errorf("render display feed: %w", err)
	}
	return replaceFile(s.FeedPath, data)
}

// Flush writes the final snapshot and display feed. Both are attempted even
// if one fails.
func (s *Snapshotter) Flush(c *Counters, now time.Time) (string, error) {
	snap := Take(s.RunTag, s.Session, c, now)
	snap.Final = true
	path, werr := s.Write(snap)
	derr := s.Display(snap)
	return path, errors.Join(werr, derr)
}

// writeNew writes data to dir/base+ext, adding a numeric suffix if the name is
// taken. The file appears atomically via a hard link from a temp file.
func writeNew(dir, base, ext string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	for i := 0; ; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		err := os.Link(tmpName, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
}

// replaceFile atomically replaces path with data.
func replaceFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".feed-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write display feed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write display feed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write display feed: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write display feed: %w", err)
	}
	return nil
}

// ReadFeed loads the display feed at path.
func ReadFeed(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(data)
}
