package resolver

import (
	"fmt"
	"io"
	"sync/atomic"
)

type Stats struct {
	resolved       atomic.Int64
	failed         atomic.Int64
	skipped        atomic.Int64
	lastDurationMs atomic.Int64
}

func (s *Stats) Resolved() int64 { return s.resolved.Load() }
func (s *Stats) Failed() int64   { return s.failed.Load() }
func (s *Stats) Skipped() int64  { return s.skipped.Load() }

// WritePrometheus renders the counters in the Prometheus text format.
func (s *Stats) WritePrometheus(w io.Writer) {
	fmt.Fprintf(w, "# HELP starlanes_turns_resolved_total Turns resolved and committed.\n")
	fmt.Fprintf(w, "# TYPE starlanes_turns_resolved_total counter\n")
	fmt.Fprintf(w, "starlanes_turns_resolved_total %d\n", s.resolved.Load())
	fmt.Fprintf(w, "# HELP starlanes_turns_failed_total Resolutions rolled back.\n")
	fmt.Fprintf(w, "# TYPE starlanes_turns_failed_total counter\n")
	fmt.Fprintf(w, "starlanes_turns_failed_total %d\n", s.failed.Load())
	fmt.Fprintf(w, "# HELP starlanes_turns_skipped_total Duplicate or late resolution triggers.\n")
	fmt.Fprintf(w, "# TYPE starlanes_turns_skipped_total counter\n")
	fmt.Fprintf(w, "starlanes_turns_skipped_total %d\n", s.skipped.Load())
	fmt.Fprintf(w, "# HELP starlanes_turn_last_duration_ms Duration of the last committed resolution.\n")
	fmt.Fprintf(w, "# TYPE starlanes_turn_last_duration_ms gauge\n")
	fmt.Fprintf(w, "starlanes_turn_last_duration_ms %d\n", s.lastDurationMs.Load())
}
