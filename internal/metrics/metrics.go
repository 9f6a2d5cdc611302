// Package metrics exports allocation counters to Prometheus.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "fastalloc"
	subsystem = "regalloc"
)

// Metrics are the allocation counters, labeled by target name.
type Metrics struct {
	Stores    *prometheus.CounterVec
	Loads     *prometheus.CounterVec
	Functions *prometheus.CounterVec
	Blocks    *prometheus.CounterVec
}

// New creates the counters and registers them to reg. Counters already registered to reg by a previous call
// are reused, so that several allocators can share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Stores:    newCounterVec("spill_stores", "The number of spill stores inserted"),
		Loads:     newCounterVec("spill_loads", "The number of reloads inserted"),
		Functions: newCounterVec("functions", "The number of allocated functions"),
		Blocks:    newCounterVec("blocks", "The number of allocated blocks"),
	}
	for _, c := range []**prometheus.CounterVec{&m.Stores, &m.Loads, &m.Functions, &m.Blocks} {
		if err := reg.Register(*c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, errors.Wrap(err, "registering allocation metrics")
			}
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, errors.Errorf("metric already registered as %T", are.ExistingCollector)
			}
			*c = existing
		}
	}
	return m, nil
}

func newCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name + "_total",
		Help:      help,
	}, []string{"target"})
}

// Observe records the counters of one allocated function.
func (m *Metrics) Observe(target string, stores, loads, blocks int) {
	if m == nil {
		return
	}
	m.Stores.WithLabelValues(target).Add(float64(stores))
	m.Loads.WithLabelValues(target).Add(float64(loads))
	m.Blocks.WithLabelValues(target).Add(float64(blocks))
	m.Functions.WithLabelValues(target).Inc()
}
