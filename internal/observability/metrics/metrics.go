// Package metrics exposes push and tick counters as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"

	"dittoload/internal/eventbus"
	"dittoload/internal/sender"
	"dittoload/internal/task/repeater"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dittoload"

// Metrics owns a private registry so several runs (and tests) never collide
// on the global one.
type Metrics struct {
	reg *prometheus.Registry

	pushes       *prometheus.CounterVec
	pushDuration *prometheus.HistogramVec
	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec

	pushTotal  atomic.Uint64
	pushFailed atomic.Uint64
	tickTotal  atomic.Uint64
	tickFailed atomic.Uint64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		pushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Thing pushes by outcome (dry_run, ok, http_error, transport_error).",
		}, []string{"outcome"}),
		pushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Wall time of a single push.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Repeater ticks by task and result.",
		}, []string{"task", "result"}),
		tickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one tick (whole batch).",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"task"}),
	}
}

// ObservePush implements sender.Observer.
func (m *Metrics) ObservePush(r sender.Result) {
	o := string(r.Outcome)
	m.pushes.WithLabelValues(o).Inc()
	m.pushDuration.WithLabelValues(o).Observe(r.Duration.Seconds())
	m.pushTotal.Add(1)
	if r.Outcome == sender.OutcomeHTTPError || r.Outcome == sender.OutcomeTransportError {
		m.pushFailed.Add(1)
	}
}

// ObserveTick records one tick event; other event types are ignored.
func (m *Metrics) ObserveTick(e eventbus.Event) {
	te, ok := e.Data.(repeater.TickEvent)
	if !ok {
		return
	}
	result := "ok"
	switch e.Type {
	case eventbus.TypeTickFinished:
	case eventbus.TypeTickFailed:
		result = "failed"
		m.tickFailed.Add(1)
	default:
		return
	}
	m.tickTotal.Add(1)
	m.ticks.WithLabelValues(te.Task, result).Inc()
	m.tickDuration.WithLabelValues(te.Task).Observe(te.Duration.Seconds())
}

// Consume subscribes to bus right away and returns the loop that feeds tick
// events into m until ctx is done. Events published between the two calls are
// buffered, not lost.
func (m *Metrics) Consume(bus eventbus.Bus) func(ctx context.Context) {
	ch, unsub := bus.Subscribe(256)
	return func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				m.ObserveTick(e)
			}
		}
	}
}

// Totals is a cheap summary for logs and the run journal.
type Totals struct {
	Pushes       uint64 `json:"pushes"`
	PushFailures uint64 `json:"push_failures"`
	Ticks        uint64 `json:"ticks"`
	TickFailures uint64 `json:"tick_failures"`
}

func (m *Metrics) Totals() Totals {
	return Totals{
		Pushes:       m.pushTotal.Load(),
		PushFailures: m.pushFailed.Load(),
		Ticks:        m.tickTotal.Load(),
		TickFailures: m.tickFailed.Load(),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
