// Package telemetry captures counters emitted by the bridge runtime.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives telemetry events emitted by the bridge.
//
// Implementations must be inexpensive to call: hooks run inline with the
// worker poll loop and the dispatch tick.
type Collector interface {
	IncConnectionOpened()
	IncConnectFailure()
	IncEventDispatched(kind string)
	IncCallbackFailure(kind string)
	IncDroppedWrite()
	SetActiveConnections(count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all telemetry.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncConnectionOpened()      {}
func (noopCollector) IncConnectFailure()        {}
func (noopCollector) IncEventDispatched(string) {}
func (noopCollector) IncCallbackFailure(string) {}
func (noopCollector) IncDroppedWrite()          {}
func (noopCollector) SetActiveConnections(int)  {}

// PrometheusCollector exposes bridge telemetry via Prometheus.
type PrometheusCollector struct {
	connectionsOpened prometheus.Counter
	connectFailures   prometheus.Counter
	eventsDispatched  *prometheus.CounterVec
	callbackFailures  *prometheus.CounterVec
	droppedWrites     prometheus.Counter
	activeConnections prometheus.Gauge
}

var registerMu sync.Mutex

// NewPrometheusCollector registers the bridge metrics with the provided
// registerer. Registering twice against the same registerer reuses the
// existing collectors instead of failing.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerMu.Lock()
	defer registerMu.Unlock()

	collector := &PrometheusCollector{}

	opened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsbridge_connections_opened_total",
		Help: "Number of successfully established WebSocket connections.",
	})
	if err := registerCollector(reg, opened, &collector.connectionsOpened); err != nil {
		return nil, err
	}

	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsbridge_connect_failures_total",
		Help: "Number of connection attempts that failed during the handshake.",
	})
	if err := registerCollector(reg, failed, &collector.connectFailures); err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsbridge_events_dispatched_total",
		Help: "Number of worker events delivered to host callbacks, by kind.",
	}, []string{"kind"})
	if err := registerCollector(reg, events, &collector.eventsDispatched); err != nil {
		return nil, err
	}

	callbackFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsbridge_callback_failures_total",
		Help: "Number of host callbacks that returned an error or panicked, by kind.",
	}, []string{"kind"})
	if err := registerCollector(reg, callbackFailures, &collector.callbackFailures); err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsbridge_dropped_writes_total",
		Help: "Number of outbound frames dropped by the best-effort write path.",
	})
	if err := registerCollector(reg, dropped, &collector.droppedWrites); err != nil {
		return nil, err
	}

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsbridge_active_connections",
		Help: "Number of connection handles currently registered for dispatch.",
	})
	if err := registerCollector(reg, active, &collector.activeConnections); err != nil {
		return nil, err
	}

	return collector, nil
}

// registerCollector registers candidate and stores the effective collector in
// target, tolerating prometheus.AlreadyRegisteredError.
func registerCollector[T prometheus.Collector](reg prometheus.Registerer, candidate T, target *T) error {
	if err := reg.Register(candidate); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return err
		}
		*target = existing
		return nil
	}
	*target = candidate
	return nil
}

func (c *PrometheusCollector) IncConnectionOpened() {
	c.connectionsOpened.Inc()
}

func (c *PrometheusCollector) IncConnectFailure() {
	c.connectFailures.Inc()
}

func (c *PrometheusCollector) IncEventDispatched(kind string) {
	c.eventsDispatched.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) IncCallbackFailure(kind string) {
	c.callbackFailures.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) IncDroppedWrite() {
	c.droppedWrites.Inc()
}

func (c *PrometheusCollector) SetActiveConnections(count int) {
	c.activeConnections.Set(float64(count))
}
