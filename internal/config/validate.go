package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoSamples is returned when the samples directory holds no regular files.
	ErrNoSamples = errors.New("no samples found")
	// ErrToolMissing is returned when the target or mutator cannot be resolved.
	ErrToolMissing = errors.New("required external tool missing")
)

// Error is a configuration problem that prevents a run from starting.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return "configuration error: " + e.Reason + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints on cfg.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Reason: "invalid configuration", Err: err}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag()+param(fe), fe.Value()))
	}
	return &Error{Reason: strings.Join(msgs, "; ")}
}

func param(fe validator.FieldError) string {
	if fe.Param() == "" {
		return ""
	}
	return "=" + fe.Param()
}

// Samples returns the sorted list of regular files in the samples directory.
func Samples(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Reason: "reading samples directory " + dir, Err: err}
	}
	var samples []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		samples = append(samples, filepath.Join(dir, e.Name()))
	}
	if len(samples) == 0 {
		return nil, &Error{Reason: dir, Err: ErrNoSamples}
	}
	sort.Strings(samples)
	return samples, nil
}

// Preflight verifies that a run can start: samples exist and both external
// tools resolve. It returns the sorted sample set.
func Preflight(cfg Config) ([]string, error) {
	for _, tool := range []struct{ role, path string }{
		{"target", cfg.Target.Path},
		{"mutator", cfg.Mutator.Path},
	} {
		if _, err := exec.LookPath(tool.path); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("%s %q", tool.role, tool.path), Err: errors.Join(ErrToolMissing, err)}
		}
	}
	return Samples(cfg.SamplesDir)
}
