package mux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/fakeyudi/fuzzherd/internal/procgroup"
)

// Detached starts the driver as the leader of a new OS session (setsid), with
// its console redirected to the session log. The session id doubles as the
// process group id.
type Detached struct {
	sig procgroup.Signaller
}

// NewDetached returns the setsid backend.
func NewDetached(sig procgroup.Signaller) *Detached {
	if sig == nil {
		sig = procgroup.OS{}
	}
	return &Detached{sig: sig}
}

func (d *Detached) Name() string { return "detached" }

func (d *Detached) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.New("empty command")
	}
	out := os.DevNull
	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return 0, fmt.Errorf("creating log directory: %w", err)
		}
		out = spec.LogPath
	}
	logFile, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening session log: %w", err)
	}
	defer logFile.Close()

	// Not CommandContext: the driver must outlive the launching command.
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached session: %w", err)
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while this process is still around.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Lookup always fails: without a record there is no way to find the group.
func (d *Detached) Lookup(context.Context, string) (int, error) {
	return 0, ErrUnknownSession
}

func (d *Detached) Exists(_ context.Context, _ string, pgid int) bool {
	return d.sig.Alive(pgid)
}

// List returns nothing: detached sessions are only discoverable through the
// state store.
func (d *Detached) List(context.Context) ([]string, error) {
	return nil, nil
}

func (d *Detached) Attach(context.Context, string) error {
	return ErrAttachUnsupported
}
