// Package metrics exports librehsm machine activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/librescoot/librehsm"
)

// Observer is a librehsm.Observer that counts dispatches, deferrals, drops
// and transitions of one machine.
type Observer struct {
	eventName func(librehsm.EventID) string

	dispatched  *prometheus.CounterVec
	deferred    prometheus.Counter
	dropped     prometheus.Counter
	transitions *prometheus.CounterVec
	queueLength prometheus.Gauge
}

// Option configures an Observer
type Option func(*Observer)

// WithEventNames sets how event IDs are turned into label values.
// The default is EventID.String.
func WithEventNames(fn func(librehsm.EventID) string) Option {
	return func(o *Observer) {
		o.eventName = fn
	}
}

// NewObserver registers the metrics for the machine called machine with reg.
// Several observers may share a registry as long as their machine names
// differ.
func NewObserver(reg prometheus.Registerer, machine string, opts ...Option) *Observer {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"machine": machine}

	o := &Observer{
		eventName: librehsm.EventID.String,

		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "librehsm",
			Name:        "events_dispatched_total",
			Help:        "Events offered to the active states, by event",
			ConstLabels: labels,
		}, []string{"event"}),

		deferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "librehsm",
			Name:        "events_deferred_total",
			Help:        "Events placed on the deferred queue",
			ConstLabels: labels,
		}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "librehsm",
			Name:        "events_dropped_total",
			Help:        "Deferred events dropped because the queue was full",
			ConstLabels: labels,
		}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "librehsm",
			Name:        "transitions_total",
			Help:        "Changes of the active leaf state",
			ConstLabels: labels,
		}, []string{"from", "to"}),

		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "librehsm",
			Name:        "deferred_queue_length",
			Help:        "Events currently waiting on the deferred queue",
			ConstLabels: labels,
		}),
	}

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatched implements librehsm.Observer
func (o *Observer) Dispatched(m *librehsm.Machine, ev librehsm.Event, _ librehsm.StateID) {
	o.dispatched.WithLabelValues(o.eventName(ev.ID)).Inc()
	o.queueLength.Set(float64(m.Deferred()))
}

// Deferred implements librehsm.Observer
func (o *Observer) Deferred(_ *librehsm.Machine, _ librehsm.Event, queued int) {
	o.deferred.Inc()
	o.queueLength.Set(float64(queued))
}

// Dropped implements librehsm.Observer
func (o *Observer) Dropped(*librehsm.Machine, librehsm.Event) {
	o.dropped.Inc()
}

// Transitioned implements librehsm.Observer
func (o *Observer) Transitioned(m *librehsm.Machine, from, to librehsm.StateID) {
	tree := m.Tree()
	o.transitions.WithLabelValues(tree.Name(from), tree.Name(to)).Inc()
	o.queueLength.Set(float64(m.Deferred()))
}
