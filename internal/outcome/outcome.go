// Package outcome classifies how a single target invocation ended.
package outcome

import (
	"fmt"
	"os"
	"syscall"
)

// ExitStatus is how a target invocation terminated.
type ExitStatus struct {
	// Code is the exit code, or -N when the process was killed by signal N.
	Code     int            `json:"code"`
	Signal   syscall.Signal `json:"signal,omitempty"`
	Signaled bool           `json:"signaled,omitempty"`
	TimedOut bool           `json:"timed_out,omitempty"`
}

// Exited returns the status of a normal exit with code.
func Exited(code int) ExitStatus {
	return ExitStatus{Code: code}
}

// Killed returns the status of a process terminated by sig.
func Killed(sig syscall.Signal) ExitStatus {
	return ExitStatus{Code: -int(sig), Signal: sig, Signaled: true}
}

// TimedOut is the status of an invocation that exceeded its deadline.
func TimedOut() ExitStatus {
	return ExitStatus{TimedOut: true}
}

// FromProcessState converts a finished process into an ExitStatus.
func FromProcessState(ps *os.ProcessState) ExitStatus {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Killed(ws.Signal())
	}
	return Exited(ps.ExitCode())
}

func (s ExitStatus) String() string {
	switch {
	case s.TimedOut:
		return "timed out"
	case s.Signaled:
		return fmt.Sprintf("killed by %s", s.Signal)
	default:
		return fmt.Sprintf("exit %d", s.Code)
	}
}

// Kind is the category of a trial outcome.
type Kind int

const (
	Normal Kind = iota
	Intentional
	Crash
	Hang
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Intentional:
		return "intentional"
	case Crash:
		return "crash"
	case Hang:
		return "hang"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is a classified trial result. Code is set for Intentional only.
type Outcome struct {
	Kind Kind
	Code int
}

// Finding reports whether o is anything other than Normal.
func (o Outcome) Finding() bool {
	return o.Kind != Normal
}

func (o Outcome) String() string {
	if o.Kind == Intentional {
		return fmt.Sprintf("intentional(%d)", o.Code)
	}
	return o.Kind.String()
}

// Classifier maps exit statuses to outcomes.
type Classifier struct {
	// Recognized holds the intentional exit codes. Negative values name
	// signals (-6 is SIGABRT).
	Recognized map[int]bool
	// SignalsIntentional lets a recognized -N code match a signal death.
	// Otherwise every signal death is a Crash.
	SignalsIntentional bool
}

// Classify is total: every status maps to exactly one outcome.
func (c Classifier) Classify(s ExitStatus) Outcome {
	switch {
	case s.TimedOut:
		return Outcome{Kind: Hang}
	case s.Signaled:
		if c.SignalsIntentional && c.Recognized[s.Code] {
			return Outcome{Kind: Intentional, Code: s.Code}
		}
		return Outcome{Kind: Crash}
	case s.Code == 0:
		return Outcome{Kind: Normal}
	case c.Recognized[s.Code]:
		return Outcome{Kind: Intentional, Code: s.Code}
	default:
		return Outcome{Kind: Crash}
	}
}
