package amd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver counts loader events and exposes them as Prometheus
// counters:
//
//	<namespace>_module_events_total{context="default",type="module.exported"}
//	<namespace>_unhandled_errors_total
//
// Register it on one or more loaders and with a prometheus.Registerer.
// Counters are built on scrape from the observed totals.
type MetricsObserver struct {
	eventsDesc    *prometheus.Desc
	unhandledDesc *prometheus.Desc

	mu        sync.Mutex
	events    map[eventKey]uint64
	unhandled uint64
}

type eventKey struct {
	context string
	kind    string
}

// NewMetricsObserver creates a metrics observer. namespace prefixes the
// metric names and defaults to "amd".
func NewMetricsObserver(namespace string) *MetricsObserver {
	if namespace == "" {
		namespace = "amd"
	}
	return &MetricsObserver{
		eventsDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_module_events_total", namespace),
			"Module loader events by context and type (cumulative)",
			[]string{"context", "type"}, nil,
		),
		unhandledDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_unhandled_errors_total", namespace),
			"Module errors no waiter handled (cumulative)",
			nil, nil,
		),
		events: make(map[eventKey]uint64),
	}
}

// ObserverID implements Observer.
func (m *MetricsObserver) ObserverID() string {
	return "amd.metrics"
}

// OnEvent implements Observer.
func (m *MetricsObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	var data ModuleEvent
	if err := event.DataAs(&data); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	key := eventKey{
		context: data.Context,
		kind:    strings.TrimPrefix(event.Type(), "com.amd."),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[key]++
	if event.Type() == EventTypeErrorUnhandled {
		m.unhandled++
	}
	return nil
}

// Count returns how many events of eventType were seen in the named
// context.
func (m *MetricsObserver) Count(contextName, eventType string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[eventKey{context: contextName, kind: strings.TrimPrefix(eventType, "com.amd.")}]
}

// Describe implements prometheus.Collector.
func (m *MetricsObserver) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.eventsDesc
	ch <- m.unhandledDesc
}

// Collect implements prometheus.Collector.
func (m *MetricsObserver) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, n := range m.events {
		ch <- prometheus.MustNewConstMetric(m.eventsDesc, prometheus.CounterValue, float64(n), key.context, key.kind)
	}
	ch <- prometheus.MustNewConstMetric(m.unhandledDesc, prometheus.CounterValue, float64(m.unhandled))
}
