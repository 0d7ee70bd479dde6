// Package trial runs one fuzz trial: mutate a sample into a fresh mutant file,
// then execute the target on it under a hard deadline.
package trial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/fuzzherd/internal/outcome"
)

var (
	// ErrMutationFailed is returned when the mutator exits non-zero or leaves
	// no mutant behind.
	ErrMutationFailed = errors.New("mutation failed")
	// ErrNoTrial marks a trial that was skipped. No counters change for it.
	ErrNoTrial = errors.New("no trial")
)

// Placeholders expanded in command arguments.
const (
	PlaceholderInput     = "{input}"
	PlaceholderOutput    = "{output}"
	PlaceholderSeed      = "{seed}"
	PlaceholderIntensity = "{intensity}"
)

// Vars are the values substituted for placeholders.
type Vars struct {
	Input     string
	Output    string
	Seed      int64
	Intensity float64
}

// Expand substitutes vars into every argument of args.
func Expand(args []string, v Vars) []string {
	r := strings.NewReplacer(
		PlaceholderInput, v.Input,
		PlaceholderOutput, v.Output,
		PlaceholderSeed, strconv.FormatInt(v.Seed, 10),
		PlaceholderIntensity, strconv.FormatFloat(v.Intensity, 'g', -1, 64),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

func mentions(args []string, placeholder string) bool {
	for _, a := range args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

// Trial is one mutate-then-execute attempt.
type Trial struct {
	Sample    string
	Seed      int64
	Intensity float64
}

// Result is what a completed trial produced.
type Result struct {
	Status   outcome.ExitStatus
	Outcome  outcome.Outcome
	Mutant   string
	Duration time.Duration
}

// Executor runs trials.
type Executor struct {
	Mutator    Mutator
	Target     Target
	Classifier outcome.Classifier
	MutantsDir string
	Timeout    time.Duration
}

// MutantPath returns a fresh mutant path for sample. Names never repeat
// within a run.
func (e *Executor) MutantPath(sample string) string {
	return filepath.Join(e.MutantsDir, fmt.Sprintf("%s-%s", filepath.Base(sample), uuid.NewString()))
}

// Run mutates t.Sample and executes the target on the result. When the
// mutator fails the error wraps both ErrNoTrial and the cause, and no mutant
// is left behind. A cancelled context during execution also discards the
// trial.
func (e *Executor) Run(ctx context.Context, t Trial) (Result, error) {
	mutant := e.MutantPath(t.Sample)
	if err := e.Mutator.Mutate(ctx, t.Sample, mutant, t.Seed, t.Intensity); err != nil {
		os.Remove(mutant)
		return Result{}, errors.Join(ErrNoTrial, err)
	}

	start := time.Now()
	status, err := e.Target.Execute(ctx, mutant, e.Timeout)
	if err != nil {
		os.Remove(mutant)
		return Result{}, errors.Join(ErrNoTrial, err)
	}
	return Result{
		Status:   status,
		Outcome:  e.Classifier.Classify(status),
		Mutant:   mutant,
		Duration: time.Since(start),
	}, nil
}
