package stats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SnapshotRenderer serializes a Snapshot to bytes.
type SnapshotRenderer interface {
	Render(s Snapshot) ([]byte, error)
}

// JSONRenderer renders a Snapshot as indented JSON. It feeds the live display.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// TextRenderer renders a Snapshot as a human-readable report.
type TextRenderer struct{}

func (r *TextRenderer) Render(s Snapshot) ([]byte, error) {
	c := s.Counters
	var sb strings.Builder

	fmt.Fprintf(&sb, "fuzzherd statistics for run %s\n", s.RunTag)
	if s.Session != "" {
		fmt.Fprintf(&sb, "session:              %s\n", s.Session)
	}
	fmt.Fprintf(&sb, "taken at:             %s\n", s.TakenAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "started at:           %s\n", c.Start.Format(time.RFC3339))
	fmt.Fprintf(&sb, "uptime:               %s\n", s.Uptime.Round(time.Second))
	if s.Final {
		sb.WriteString("final:                yes\n")
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "total samples:        %d\n", c.TotalSamples)
	fmt.Fprintf(&sb, "total mutants:        %d\n", c.TotalMutants)
	fmt.Fprintf(&sb, "exec/s:               %.2f\n", s.ExecPerSec())
	fmt.Fprintf(&sb, "crashes:              %d\n", c.Crashes)
	fmt.Fprintf(&sb, "hangs:                %d\n", c.Hangs)

	codes := c.Codes()
	if len(codes) == 0 {
		sb.WriteString("intentional exits:    0\n")
	} else {
		fmt.Fprintf(&sb, "intentional exits:    %d\n", c.IntentionalTotal())
		for _, code := range codes {
			fmt.Fprintf(&sb, "  code %-6d          %d\n", code, c.Intentional[code])
		}
	}

	if c.LastDiscovery.IsZero() {
		sb.WriteString("last discovery:       never\n")
	} else {
		fmt.Fprintf(&sb, "last discovery:       %s (%s ago)\n",
			c.LastDiscovery.Format(time.RFC3339), s.SinceDiscovery().Round(time.Second))
	}
	return []byte(sb.String()), nil
}

// ParseJSON decodes a snapshot rendered by JSONRenderer.
func ParseJSON(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if s.Counters.Intentional == nil {
		s.Counters.Intentional = map[int]uint64{}
	}
	return &s, nil
}
