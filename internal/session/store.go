package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoSession is returned by Load when no record exists for the name.
var ErrNoSession = errors.New("no such session")

// ErrInvalidName is returned for names that cannot be used as record keys.
var ErrInvalidName = errors.New("invalid session name")

// Store persists session records. Get never fails: a missing or unreadable
// record reads as Unknown.
type Store interface {
	Get(name string) State
	Set(name string, st State) error
	Load(name string) (*Record, error) // returns ErrNoSession if none exists
	Save(r *Record) error
	List() ([]*Record, error)
}

// diskStore keeps one JSON file per session in the XDG data directory.
type diskStore struct {
	dir string
	now func() time.Time
}

// NewStore returns a Store backed by the XDG data directory.
// Path: $XDG_DATA_HOME/fuzzherd/sessions or ~/.local/share/fuzzherd/sessions
func NewStore() (Store, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "sessions"))
}

// NewStoreAt returns a Store rooted at dir, creating it if needed.
func NewStoreAt(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &diskStore{dir: dir, now: time.Now}, nil
}

// DataDir returns the fuzzherd-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "fuzzherd"), nil
}

func (d *diskStore) path(name string) string {
	return filepath.Join(d.dir, name+".json")
}

func (d *diskStore) Get(name string) State {
	r, err := d.Load(name)
	if err != nil || !r.State.Valid() {
		return Unknown
	}
	return r.State
}

// Set updates the state of name, creating a minimal record if none exists.
func (d *diskStore) Set(name string, st State) error {
	r, err := d.Load(name)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			return err
		}
		r = &Record{Name: name, CreatedAt: d.now()}
	}
	r.State = st
	return d.Save(r)
}

// Save marshals r to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(r *Record) (err error) {
	if !ValidName(r.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, r.Name)
	}
	r.UpdatedAt = d.now()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(d.dir, r.Name+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = os.Rename(tmpName, d.path(r.Name)); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Load reads and unmarshals the record for name.
// Returns ErrNoSession if the file does not exist.
func (d *diskStore) Load(name string) (*Record, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}
	if r.Name == "" {
		r.Name = name
	}
	return &r, nil
}

// List returns every readable record sorted by name. Corrupt files are skipped.
func (d *diskStore) List() ([]*Record, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []*Record
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		r, err := d.Load(name)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
