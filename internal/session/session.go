package session

import (
	"fmt"
	"regexp"
	"time"
)

// State is the lifecycle state of a fuzzing session.
type State string

const (
	// Unknown means no durable record exists for the session.
	Unknown State = "unknown"
	Running State = "running"
	Paused  State = "paused"
	// Stopped is terminal.
	Stopped State = "stopped"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case Unknown, Running, Paused, Stopped:
		return true
	}
	return false
}

// Record is the durable description of a session.
type Record struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PGID      int       `json:"pgid,omitempty"`
	RunDir    string    `json:"run_dir,omitempty"`
	RunTag    string    `json:"run_tag,omitempty"`
	Backend   string    `json:"backend,omitempty"` // "tmux" | "detached"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NamePrefix starts every generated session name.
const NamePrefix = "fuzz-"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidName reports whether name is safe to use as a record key.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// NewName derives a session name from the creation timestamp. taken reports
// whether a candidate is already in use; a numeric suffix resolves collisions.
func NewName(now time.Time, taken func(string) bool) string {
	base := NamePrefix + now.Format("20060102-150405")
	name := base
	for i := 2; taken != nil && taken(name); i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name
}
