package bus

import "time"

// Stats is a point-in-time snapshot of bus activity.
type Stats struct {
	State             string        `json:"state"`
	Mode              string        `json:"mode"`
	Producer          string        `json:"producer"`
	Workers           int           `json:"workers"`
	BufferSize        int64         `json:"buffer_size"`
	Cursor            int64         `json:"cursor"`
	RemainingCapacity int64         `json:"remaining_capacity"`
	Published         uint64        `json:"published"`
	Rejected          uint64        `json:"rejected"`
	Processed         uint64        `json:"processed"`
	Failed            uint64        `json:"failed"`
	Panicked          uint64        `json:"panicked"`
	TimedOut          uint64        `json:"timed_out"`
	Unrouted          uint64        `json:"unrouted"`
	InvalidRoute      uint64        `json:"invalid_route"`
	AvgHandlerTime    time.Duration `json:"avg_handler_time"`
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	cs := b.consumer.Stats()
	return Stats{
		State:             b.State().String(),
		Mode:              b.cfg.mode.String(),
		Producer:          b.rb.ProducerType().String(),
		Workers:           b.workerCount(),
		BufferSize:        b.rb.BufferSize(),
		Cursor:            b.rb.Cursor(),
		RemainingCapacity: b.rb.RemainingCapacity(),
		Published:         b.published.Load(),
		Rejected:          b.rejected.Load(),
		Processed:         cs.Processed,
		Failed:            cs.Failed,
		Panicked:          cs.Panicked,
		TimedOut:          cs.TimedOut,
		Unrouted:          b.dispatcher.unrouted.Load(),
		InvalidRoute:      b.dispatcher.invalidRoute.Load(),
		AvgHandlerTime:    cs.AvgDuration,
	}
}
