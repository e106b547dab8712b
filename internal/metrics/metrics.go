package metrics

import "time"

// Metrics is the sink for worker, driver and monitor counters.
type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

// Noop discards everything. It is used when no statsd address is set.
type Noop struct{}

func (Noop) Increment(string)               {}
func (Noop) Duration(string, time.Duration) {}
func (Noop) Gauge(string, int)              {}
