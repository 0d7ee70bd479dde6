package stats

import (
	"time"
)

// Snapshot is a point-in-time copy of a run's counters.
type Snapshot struct {
	RunTag   string        `json:"run_tag"`
	Session  string        `json:"session"`
	TakenAt  time.Time     `json:"taken_at"`
	Uptime   time.Duration `json:"uptime"`
	Counters Counters      `json:"counters"`
	// Final marks the snapshot flushed on shutdown.
	Final bool `json:"final,omitempty"`
}

// Take copies c. The live counters are never shared with the snapshot.
func Take(runTag, session string, c *Counters, now time.Time) Snapshot {
	return Snapshot{
		RunTag:   runTag,
		Session:  session,
		TakenAt:  now,
		Uptime:   now.Sub(c.Start),
		Counters: c.Clone(),
	}
}

// ExecPerSec is the average mutant throughput over the run so far.
func (s Snapshot) ExecPerSec() float64 {
	if s.Uptime <= 0 {
		return 0
	}
	return float64(s.Counters.TotalMutants) / s.Uptime.Seconds()
}

// SinceDiscovery is how long ago the last finding happened, or -1 if none.
func (s Snapshot) SinceDiscovery() time.Duration {
	if s.Counters.LastDiscovery.IsZero() {
		return -1
	}
	return s.TakenAt.Sub(s.Counters.LastDiscovery)
}
