package trial

import (
	"context"
	"time"
)

type waitResult int

const (
	exited waitResult = iota
	expired
	cancelled
)

// watchdog measures a timeout in running time. A gap between ticks much
// longer than the tick period means the process was stopped; such gaps are
// charged as a single tick.
type watchdog struct {
	timeout time.Duration
	tick    time.Duration
	maxGap  time.Duration
}

func newWatchdog(timeout time.Duration) watchdog {
	tick := timeout / 20
	if tick > 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	return watchdog{timeout: timeout, tick: tick, maxGap: 10 * tick}
}

// charge returns the running time to account for a tick gap.
func (w watchdog) charge(gap time.Duration) time.Duration {
	if gap > w.maxGap {
		return w.tick
	}
	return gap
}

func waitFor(ctx context.Context, done <-chan error, w watchdog) waitResult {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	var used time.Duration
	last := time.Now()
	for {
		select {
		case <-done:
			return exited
		case <-ctx.Done():
			return cancelled
		case now := <-ticker.C:
			used += w.charge(now.Sub(last))
			last = now
			if used >= w.timeout {
				return expired
			}
		}
	}
}
