// Package findings keeps a queryable index of every artifact a run retained.
// The index is a badger database inside the run directory, written only by
// the run's driver.
package findings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fakeyudi/fuzzherd/internal/outcome"
)

// DirName is the index directory inside a run directory.
const DirName = "findings.db"

// ErrLocked is returned when another process holds the index open.
var ErrLocked = errors.New("findings index is in use by a running session")

// Finding describes one retained artifact.
type Finding struct {
	Kind      string    `json:"kind"`
	Code      int       `json:"code,omitempty"`
	Sample    string    `json:"sample"`
	Seed      int64     `json:"seed"`
	Intensity float64   `json:"intensity"`
	Artifact  string    `json:"artifact"`
	At        time.Time `json:"at"`
}

// New builds a Finding for an outcome.
func New(o outcome.Outcome, sample string, seed int64, intensity float64, artifact string, at time.Time) Finding {
	return Finding{
		Kind:      o.Kind.String(),
		Code:      o.Code,
		Sample:    sample,
		Seed:      seed,
		Intensity: intensity,
		Artifact:  artifact,
		At:        at.UTC(),
	}
}

// Key orders findings by kind, then time.
func (f Finding) Key() []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", f.Kind, f.At.UTC().Format("20060102T150405.000000000Z"), filepath.Base(f.Artifact)))
}

// Config configures the index.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	ReadOnly bool
	Logger   *slog.Logger
}

// Index is an open findings database.
type Index struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the index described by cfg.
func Open(cfg Config) (*Index, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent index")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if !cfg.ReadOnly {
			if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
				return nil, fmt.Errorf("create findings directory %s: %w", cfg.Path, err)
			}
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(cfg.ReadOnly)
	}
	opts = opts.WithSyncWrites(false).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "directory lock") {
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return nil, fmt.Errorf("open findings index: %w", err)
	}
	return &Index{db: db}, nil
}

// OpenInMemory returns an index that lives only as long as the process.
func OpenInMemory() (*Index, error) {
	return Open(Config{InMemory: true})
}

// Add stores f.
func (x *Index) Add(f Finding) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode finding: %w", err)
	}
	err = x.db.Update(func(txn *badger.Txn) error {
		return txn.Set(f.Key(), data)
	})
	if err != nil {
		return fmt.Errorf("store finding: %w", err)
	}
	return nil
}

// List returns the findings whose kind starts with prefix, oldest first
// within each kind. An empty prefix lists everything.
func (x *Index) List(ctx context.Context, prefix string) ([]Finding, error) {
	var out []Finding
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var f Finding
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			})
			if err != nil {
				return fmt.Errorf("decode finding %s: %w", it.Item().Key(), err)
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close flushes and closes the index.
func (x *Index) Close() error {
	return x.db.Close()
}
