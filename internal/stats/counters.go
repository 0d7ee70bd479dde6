// Package stats holds the per-run counters and turns them into immutable
// snapshots for durable storage and the live display feed.
package stats

import (
	"sort"
	"time"
)

// Counters is the aggregate state of one run. It is owned by the driver loop
// and mutated only there; everything else receives a Clone.
type Counters struct {
	TotalSamples  uint64         `json:"total_samples"`
	TotalMutants  uint64         `json:"total_mutants"`
	Crashes       uint64         `json:"crashes"`
	Hangs         uint64         `json:"hangs"`
	Intentional   map[int]uint64 `json:"intentional_counts"`
	LastDiscovery time.Time      `json:"last_discovery_time"`
	Start         time.Time      `json:"start_time"`
}

// NewCounters returns zeroed counters starting at start.
func NewCounters(start time.Time) *Counters {
	return &Counters{Intentional: make(map[int]uint64), Start: start}
}

// Clone returns a deep copy.
func (c *Counters) Clone() Counters {
	out := *c
	out.Intentional = make(map[int]uint64, len(c.Intentional))
	for code, n := range c.Intentional {
		out.Intentional[code] = n
	}
	return out
}

// IntentionalTotal sums the intentional-exit counters.
func (c *Counters) IntentionalTotal() uint64 {
	var sum uint64
	for _, n := range c.Intentional {
		sum += n
	}
	return sum
}

// Findings is the number of non-Normal outcomes.
func (c *Counters) Findings() uint64 {
	return c.IntentionalTotal() + c.Crashes + c.Hangs
}

// Consistent reports whether findings never exceed total mutants.
func (c *Counters) Consistent() bool {
	return c.Findings() <= c.TotalMutants
}

// Codes returns the intentional exit codes seen so far in ascending order.
func (c *Counters) Codes() []int {
	codes := make([]int, 0, len(c.Intentional))
	for code := range c.Intentional {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
