package hashtrie

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// mapMetrics holds the per-map metrics set. Hot path counters (allocations,
// reuses, retirements) live on the handles and are summed by gauges at
// scrape time; the shared counters below only move on rare events.
type mapMetrics struct {
	set *metrics.Set

	expansions        *metrics.Counter
	contention        *metrics.Counter
	capacityExhausted *metrics.Counter
}

func newMapMetrics[K comparable, V any](m *Map[K, V]) *mapMetrics {
	set := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf(`htrie_%s{table=%q}`, metric, m.opts.Name)
	}

	mm := &mapMetrics{
		set:               set,
		expansions:        set.NewCounter(name("array_expansions_total")),
		contention:        set.NewCounter(name("contention_aborts_total")),
		capacityExhausted: set.NewCounter(name("capacity_exhausted_total")),
	}

	set.NewGauge(name("entries"), func() float64 {
		return float64(m.Len())
	})
	set.NewGauge(name("epoch_current"), func() float64 {
		return float64(m.reclaimer.CurrentEpoch())
	})
	set.NewGauge(name("epoch_safe"), func() float64 {
		return float64(m.reclaimer.SafeEpoch())
	})
	set.NewGauge(name("handles_attached"), func() float64 {
		return float64(m.reclaimer.Registered())
	})
	set.NewGauge(name("node_allocations_total"), func() float64 {
		return float64(m.handleStats().allocs)
	})
	set.NewGauge(name("node_reuses_total"), func() float64 {
		return float64(m.handleStats().reuses)
	})
	set.NewGauge(name("node_retirements_total"), func() float64 {
		return float64(m.handleStats().retired)
	})

	return mm
}

// WriteMetrics writes the metrics of the map in Prometheus text format to w
func (m *Map[K, V]) WriteMetrics(w io.Writer) {
	m.metrics.set.WritePrometheus(w)
}
