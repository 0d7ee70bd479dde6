package driver

import (
	"github.com/fakeyudi/fuzzherd/internal/config"
)

// Cycle walks a sample set in order and starts over at the end, forever.
type Cycle struct {
	samples []string
	next    int
	passes  int
}

// NewCycle returns a Cycle over samples, which must already be sorted.
func NewCycle(samples []string) (*Cycle, error) {
	if len(samples) == 0 {
		return nil, &config.Error{Reason: "no samples to cycle", Err: config.ErrNoSamples}
	}
	return &Cycle{samples: samples}, nil
}

// Next returns the next sample.
func (c *Cycle) Next() string {
	s := c.samples[c.next]
	c.next++
	if c.next == len(c.samples) {
		c.next = 0
		c.passes++
	}
	return s
}

// Passes is the number of complete passes over the sample set.
func (c *Cycle) Passes() int {
	return c.passes
}
