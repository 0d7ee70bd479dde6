// Package procgroup delivers the session control messages to an OS process
// group. Suspend and Resume stop and continue every process in the group;
// Interrupt asks the driver to shut down gracefully.
package procgroup

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Message is a control message understood by a running driver.
type Message int

const (
	Suspend Message = iota
	Resume
	Interrupt
)

func (m Message) String() string {
	switch m {
	case Suspend:
		return "suspend"
	case Resume:
		return "resume"
	case Interrupt:
		return "interrupt"
	}
	return fmt.Sprintf("message(%d)", int(m))
}

// Signal returns the OS signal that carries m.
func (m Message) Signal() syscall.Signal {
	switch m {
	case Suspend:
		return unix.SIGSTOP
	case Resume:
		return unix.SIGCONT
	default:
		return unix.SIGINT
	}
}

// ErrNoGroup is returned when the target process group does not exist.
var ErrNoGroup = errors.New("process group not found")

// Signaller sends control messages to process groups and probes liveness.
type Signaller interface {
	Send(pgid int, m Message) error
	Alive(pgid int) bool
}

// OS is the Signaller backed by kill(2).
type OS struct{}

// Send delivers m to every process in group pgid.
func (OS) Send(pgid int, m Message) error {
	if pgid <= 1 {
		return fmt.Errorf("%w: pgid %d", ErrNoGroup, pgid)
	}
	if err := unix.Kill(-pgid, m.Signal()); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("%w: pgid %d", ErrNoGroup, pgid)
		}
		return fmt.Errorf("sending %s to process group %d: %w", m, pgid, err)
	}
	return nil
}

// Alive reports whether any process in group pgid exists. EPERM counts as
// alive: the group exists but belongs to someone else.
func (OS) Alive(pgid int) bool {
	if pgid <= 1 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
