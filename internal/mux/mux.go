// Package mux launches drivers inside detached sessions that survive terminal
// disconnection. Two backends exist: tmux, and a plain setsid'd process for
// hosts without a terminal multiplexer.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/fakeyudi/fuzzherd/internal/procgroup"
)

// ErrAttachUnsupported is returned by backends that cannot hand a terminal
// over to the session.
var ErrAttachUnsupported = errors.New("attach not supported by this backend")

// ErrUnknownSession is returned by Lookup when the backend cannot find the
// session.
var ErrUnknownSession = errors.New("session unknown to backend")

// LaunchSpec describes a driver process to start in a new session.
type LaunchSpec struct {
	Name    string
	Dir     string
	Argv    []string
	LogPath string // session console output
}

// Multiplexer abstracts detached-session operations.
type Multiplexer interface {
	// Name returns the backend name ("tmux" or "detached").
	Name() string

	// Launch starts spec.Argv in a new detached session and returns the id of
	// the process group the driver runs in.
	Launch(ctx context.Context, spec LaunchSpec) (pgid int, err error)

	// Lookup finds the process group of a session that has no durable
	// record.
	Lookup(ctx context.Context, name string) (pgid int, err error)

	// Exists reports whether the named session is still alive.
	Exists(ctx context.Context, name string, pgid int) bool

	// List returns the names of live sessions known to the backend.
	List(ctx context.Context) ([]string, error)

	// Attach connects the caller's terminal to the session.
	Attach(ctx context.Context, name string) error
}

// New returns the backend selected by kind: "tmux", "detached" or "auto".
func New(kind string, sig procgroup.Signaller) (Multiplexer, error) {
	switch kind {
	case "tmux":
		if err := TmuxAvailable(); err != nil {
			return nil, err
		}
		return NewTmux(nil, sig), nil
	case "detached":
		return NewDetached(sig), nil
	case "auto", "":
		if TmuxAvailable() == nil {
			return NewTmux(nil, sig), nil
		}
		return NewDetached(sig), nil
	}
	return nil, fmt.Errorf("unknown multiplexer %q", kind)
}

// ForBackend returns the backend recorded for an existing session.
func ForBackend(name string, sig procgroup.Signaller) Multiplexer {
	if name == "tmux" && TmuxAvailable() == nil {
		return NewTmux(nil, sig)
	}
	return NewDetached(sig)
}

// TmuxAvailable checks that a tmux binary can be executed.
func TmuxAvailable() error {
	if err := exec.Command("tmux", "-V").Run(); err != nil {
		return fmt.Errorf("tmux not available: %w", err)
	}
	return nil
}
