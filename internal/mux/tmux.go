package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fakeyudi/fuzzherd/internal/procgroup"
)

// TmuxRunner executes a tmux command and returns its stdout.
// This abstraction allows mocking in tests.
type TmuxRunner func(ctx context.Context, args ...string) (string, error)

func defaultTmuxRunner(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}

// Tmux runs each driver in its own detached tmux session. The pane's process
// is the leader of the driver's process group.
type Tmux struct {
	run TmuxRunner
	sig procgroup.Signaller
}

// NewTmux returns a tmux backend. A nil runner uses the real tmux binary.
func NewTmux(run TmuxRunner, sig procgroup.Signaller) *Tmux {
	if run == nil {
		run = defaultTmuxRunner
	}
	return &Tmux{run: run, sig: sig}
}

func (t *Tmux) Name() string { return "tmux" }

// exact targets a session by its full name, not a prefix match.
func exact(name string) string { return "=" + name }

func (t *Tmux) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.New("empty command")
	}
	args := []string{"new-session", "-d", "-s", spec.Name}
	if spec.Dir != "" {
		args = append(args, "-c", spec.Dir)
	}
	args = append(args, spec.Argv...)
	if _, err := t.run(ctx, args...); err != nil {
		return 0, fmt.Errorf("failed to create tmux session: %w", err)
	}

	if spec.LogPath != "" {
		// Best-effort copy of the pane output; the driver keeps its own run log.
		_, _ = t.run(ctx, "pipe-pane", "-t", exact(spec.Name)+":", "-o", "cat >> "+shellQuote(spec.LogPath))
	}

	pid, err := t.panePID(ctx, spec.Name)
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// panePID returns the PID of the first pane of the session.
func (t *Tmux) panePID(ctx context.Context, name string) (int, error) {
	out, err := t.run(ctx, "list-panes", "-t", exact(name)+":", "-F", "#{pane_pid}")
	if err != nil {
		return 0, fmt.Errorf("reading pane pid: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, fmt.Errorf("parsing pane pid %q: %w", first, err)
	}
	return pid, nil
}

func (t *Tmux) Lookup(ctx context.Context, name string) (int, error) {
	pid, err := t.panePID(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownSession, err)
	}
	return pid, nil
}

// Exists reports whether tmux still has the session and, when pgid is known,
// whether that group is alive.
func (t *Tmux) Exists(ctx context.Context, name string, pgid int) bool {
	if _, err := t.run(ctx, "has-session", "-t", exact(name)); err != nil {
		return false
	}
	if pgid > 0 && t.sig != nil {
		return t.sig.Alive(pgid)
	}
	return true
}

func (t *Tmux) List(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// No server means no sessions.
		msg := err.Error()
		if strings.Contains(msg, "no server running") || strings.Contains(msg, "no sessions") ||
			strings.Contains(msg, "error connecting") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Attach hands the terminal to the session. Inside tmux the client is
// switched instead of nesting.
func (t *Tmux) Attach(ctx context.Context, name string) error {
	verb := "attach-session"
	if os.Getenv("TMUX") != "" {
		verb = "switch-client"
	}
	cmd := exec.CommandContext(ctx, "tmux", verb, "-t", exact(name))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
