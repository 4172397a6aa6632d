package worker

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of a consumer group's counters.
type Stats struct {
	// Processed is the number of events the handler was run for.
	Processed uint64 `json:"processed"`

	// Succeeded is the number of handler calls that returned nil.
	Succeeded uint64 `json:"succeeded"`

	// Failed is the number of handler calls that returned an error.
	Failed uint64 `json:"failed"`

	// Panicked is the number of handler calls that panicked.
	Panicked uint64 `json:"panicked"`

	// TimedOut is the number of handler calls that exceeded their deadline.
	TimedOut uint64 `json:"timed_out"`

	// AvgDuration is the mean handler duration.
	AvgDuration time.Duration `json:"avg_duration"`
}

type counters struct {
	processed   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	timedOut    atomic.Uint64
	totalTimeNs atomic.Int64
}

func (c *counters) record(res Result) {
	if res.Skipped {
		c.failed.Add(1)
		return
	}
	c.processed.Add(1)
	c.totalTimeNs.Add(int64(res.Duration))

	switch {
	case res.Panicked:
		c.panicked.Add(1)
	case res.TimedOut:
		c.timedOut.Add(1)
		c.failed.Add(1)
	case res.Err != nil:
		c.failed.Add(1)
	default:
		c.succeeded.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Processed: c.processed.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Panicked:  c.panicked.Load(),
		TimedOut:  c.timedOut.Load(),
	}
	if s.Processed > 0 {
		s.AvgDuration = time.Duration(c.totalTimeNs.Load() / int64(s.Processed))
	}
	return s
}
