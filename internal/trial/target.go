package trial

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/fakeyudi/fuzzherd/internal/outcome"
)

// Target executes the program under test on one input.
type Target interface {
	Execute(ctx context.Context, input string, timeout time.Duration) (outcome.ExitStatus, error)
}

// CommandTarget runs the target binary. It stays in the caller's process
// group so suspending the session also freezes the target. Without an
// {input} placeholder the input path is appended. Output is discarded.
// A timed out or cancelled target is killed with all of its descendants.
type CommandTarget struct {
	Path string
	Args []string
}

func (t *CommandTarget) Execute(ctx context.Context, input string, timeout time.Duration) (outcome.ExitStatus, error) {
	args := Expand(t.Args, Vars{Input: input})
	if !mentions(t.Args, PlaceholderInput) {
		args = append(args, input)
	}
	cmd := exec.Command(t.Path, args...)
	if err := cmd.Start(); err != nil {
		return outcome.ExitStatus{}, fmt.Errorf("failed to start target: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	switch waitFor(ctx, done, newWatchdog(timeout)) {
	case expired:
		killTree(cmd.Process.Pid)
		<-done
		return outcome.TimedOut(), nil
	case cancelled:
		killTree(cmd.Process.Pid)
		<-done
		return outcome.ExitStatus{}, ctx.Err()
	}

	// An interrupt delivered to the whole group can end the target too.
	if ctx.Err() != nil {
		return outcome.ExitStatus{}, ctx.Err()
	}
	if cmd.ProcessState == nil {
		return outcome.ExitStatus{}, errors.New("target did not run")
	}
	return outcome.FromProcessState(cmd.ProcessState), nil
}
