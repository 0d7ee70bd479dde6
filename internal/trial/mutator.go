package trial

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Mutator writes a mutated copy of sample to out.
type Mutator interface {
	Mutate(ctx context.Context, sample, out string, seed int64, intensity float64) error
}

// CommandMutator runs an external mutation tool. Without an {input}
// placeholder the sample is piped on stdin; without {output} the tool's
// stdout becomes the mutant.
type CommandMutator struct {
	Path string
	Args []string
}

func (m *CommandMutator) Mutate(ctx context.Context, sample, out string, seed int64, intensity float64) error {
	args := Expand(m.Args, Vars{Input: sample, Output: out, Seed: seed, Intensity: intensity})
	cmd := exec.CommandContext(ctx, m.Path, args...)

	if !mentions(m.Args, PlaceholderInput) {
		in, err := os.Open(sample)
		if err != nil {
			return fmt.Errorf("failed to open sample: %w", err)
		}
		defer in.Close()
		cmd.Stdin = in
	}
	if !mentions(m.Args, PlaceholderOutput) {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create mutant: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%w: %s: %v: %s", ErrMutationFailed, m.Path, err, firstLine(msg))
		}
		return fmt.Errorf("%w: %s: %v", ErrMutationFailed, m.Path, err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: %s produced no mutant", ErrMutationFailed, m.Path)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
