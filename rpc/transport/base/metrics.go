package base

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// relayMetrics holds the metrics of one connection manager. Every manager has its own set,
// so several managers in one process do not share counters.
type relayMetrics struct {
	set *metrics.Set

	submitted       *metrics.Counter
	completed       *metrics.Counter
	failed          *metrics.Counter
	connects        *metrics.Counter
	connectFailures *metrics.Counter
	roundTrip       *metrics.Histogram
}

func newRelayMetrics(transportName string, queueLength func() float64) *relayMetrics {
	set := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf(`%s{transport=%q}`, metric, transportName)
	}

	m := &relayMetrics{
		set:             set,
		submitted:       set.NewCounter(name("relay_requests_submitted_total")),
		completed:       set.NewCounter(name("relay_requests_completed_total")),
		failed:          set.NewCounter(name("relay_requests_failed_total")),
		connects:        set.NewCounter(name("relay_connects_total")),
		connectFailures: set.NewCounter(name("relay_connect_failures_total")),
		roundTrip:       set.NewHistogram(name("relay_round_trip_seconds")),
	}
	set.NewGauge(name("relay_queue_length"), queueLength)

	return m
}
