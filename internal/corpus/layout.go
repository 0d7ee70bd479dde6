// Package corpus owns a run's directory tree and decides which mutants are
// kept as findings.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// Layout is the directory tree of one run:
//
//	<root>/mutants/
//	<root>/crashed/
//	<root>/hanging/
//	<root>/intentional/<code>/
type Layout struct {
	Root string
}

func (l Layout) Mutants() string         { return filepath.Join(l.Root, "mutants") }
func (l Layout) Crashed() string         { return filepath.Join(l.Root, "crashed") }
func (l Layout) Hanging() string         { return filepath.Join(l.Root, "hanging") }
func (l Layout) IntentionalRoot() string { return filepath.Join(l.Root, "intentional") }

// Intentional returns the artifact directory for exit code code.
func (l Layout) Intentional(code int) string {
	return filepath.Join(l.IntentionalRoot(), strconv.Itoa(code))
}

// Acquire creates the run tree.
func (l Layout) Acquire() error {
	for _, dir := range []string{l.Mutants(), l.Crashed(), l.Hanging(), l.IntentionalRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return nil
}

// Release clears transient mutants and removes category directories that
// stayed empty. With keepMutants the mutants directory is left alone.
func (l Layout) Release(keepMutants bool) error {
	var errs []error
	if !keepMutants {
		if err := os.RemoveAll(l.Mutants()); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear mutants: %w", err))
		}
	}
	for _, dir := range []string{l.Crashed(), l.Hanging(), l.IntentionalRoot()} {
		if err := removeIfEmpty(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeIfEmpty(dir string) error {
	err := os.Remove(dir)
	if err == nil || errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
		return nil
	}
	return fmt.Errorf("failed to remove %s: %w", dir, err)
}

// retainedCounts counts the artifacts already present per intentional code.
func (l Layout) retainedCounts() (map[int]int, error) {
	counts := make(map[int]int)
	entries, err := os.ReadDir(l.IntentionalRoot())
	if errors.Is(err, os.ErrNotExist) {
		return counts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intentional artifacts: %w", err)
	}
	for _, e := range entries {
		code, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(l.IntentionalRoot(), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read intentional artifacts: %w", err)
		}
		for _, f := range files {
			if f.Type().IsRegular() {
				counts[code]++
			}
		}
	}
	return counts, nil
}
