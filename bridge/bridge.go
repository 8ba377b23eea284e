// Package bridge connects a single-threaded, cooperatively scheduled host
// environment to blocking WebSocket connections running on background
// goroutines. Each connection gets a dedicated worker goroutine and an
// unbounded duplex queue pair; a dispatch loop driven by the host's periodic
// scheduler drains worker events and invokes host callbacks without ever
// blocking the host.
package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/wsbridge/host"
	"github.com/timzifer/wsbridge/telemetry"
	"github.com/timzifer/wsbridge/transport"
)

// DispatchTimerName is the fixed name under which the dispatch loop registers
// itself with the host scheduler.
const DispatchTimerName = "wsbridge.dispatch"

const defaultDispatchInterval = 10 * time.Millisecond

// Bridge owns the registry of live connection handles and the once-only
// dispatch registration with the host scheduler.
type Bridge struct {
	scheduler host.Scheduler
	dialer    transport.Dialer
	registry  *Registry
	reporter  host.ErrorReporter
	telemetry telemetry.Collector
	logger    zerolog.Logger

	pollInterval     time.Duration
	dispatchInterval time.Duration

	scheduleOnce sync.Once
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithDialer replaces the transport dialer. Tests use this to substitute a
// fake transport.
func WithDialer(dialer transport.Dialer) Option {
	return func(b *Bridge) {
		if dialer != nil {
			b.dialer = dialer
		}
	}
}

// WithLogger attaches a logger; the zero default is silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger.With().Str("component", "bridge").Logger()
	}
}

// WithTelemetry attaches a telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(b *Bridge) {
		if collector != nil {
			b.telemetry = collector
		}
	}
}

// WithReporter replaces the non-fatal error reporter.
func WithReporter(reporter host.ErrorReporter) Option {
	return func(b *Bridge) {
		if reporter != nil {
			b.reporter = reporter
		}
	}
}

// WithPollInterval sets the worker poll period. It bounds command latency and
// idle CPU per connection.
func WithPollInterval(interval time.Duration) Option {
	return func(b *Bridge) {
		if interval > 0 {
			b.pollInterval = interval
		}
	}
}

// WithDispatchInterval sets the period of the dispatch timer registered with
// the host scheduler.
func WithDispatchInterval(interval time.Duration) Option {
	return func(b *Bridge) {
		if interval > 0 {
			b.dispatchInterval = interval
		}
	}
}

// New builds a Bridge bound to the given host scheduler.
func New(scheduler host.Scheduler, opts ...Option) *Bridge {
	b := &Bridge{
		scheduler:        scheduler,
		dialer:           &transport.WebsocketDialer{},
		registry:         NewRegistry(),
		telemetry:        telemetry.Noop(),
		logger:           zerolog.Nop(),
		pollInterval:     defaultPollInterval,
		dispatchInterval: defaultDispatchInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.reporter == nil {
		b.reporter = host.NewLogReporter(b.logger)
	}
	return b
}

// Connect creates generation zero of a new connection, registers the handle
// and schedules the dispatch loop on first use. The handle is returned
// immediately; the outcome of the connection attempt arrives later through
// the on_connect or on_error callback.
func (b *Bridge) Connect(url string, callbacks host.Callbacks) *Conn {
	conn := &Conn{
		id:        uuid.New(),
		url:       url,
		bridge:    b,
		callbacks: callbacks,
	}
	tx, commands := newQueue[command]()
	events, rx := newQueue[event]()
	conn.tx = tx
	conn.rx = rx

	b.spawn(url, commands, events)
	b.register(conn)
	b.ensureScheduled()
	b.logger.Debug().Stringer("conn", conn).Str("url", url).Msg("connection created")
	return conn
}

// Registry exposes the live handle collection, mainly for shutdown sweeps
// and tests.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Shutdown force-closes every registered handle. Workers notice their dead
// command queues and abort on their next poll.
func (b *Bridge) Shutdown() {
	for _, conn := range b.registry.Snapshot() {
		conn.CloseNow()
	}
}

func (b *Bridge) spawn(url string, commands *receiver[command], events *sender[event]) {
	w := &worker{
		url:       url,
		dialer:    b.dialer,
		commands:  commands,
		events:    events,
		interval:  b.pollInterval,
		logger:    b.logger.With().Str("component", "worker").Str("url", url).Logger(),
		telemetry: b.telemetry,
	}
	go w.run()
}

func (b *Bridge) register(conn *Conn) {
	b.registry.Add(conn)
	b.telemetry.SetActiveConnections(b.registry.Len())
	b.ensureScheduled()
}

func (b *Bridge) retire(conn *Conn) {
	b.registry.Remove(conn)
	b.telemetry.SetActiveConnections(b.registry.Len())
}

// ensureScheduled registers the dispatch tick with the host scheduler exactly
// once per Bridge, under the fixed timer name.
func (b *Bridge) ensureScheduled() {
	b.scheduleOnce.Do(func() {
		if b.scheduler == nil {
			return
		}
		if err := b.scheduler.CreatePeriodicTimer(DispatchTimerName, b.dispatchInterval, b.Tick); err != nil {
			b.logger.Error().Err(err).Msg("failed to register dispatch timer")
			b.reporter.ReportNonFatal(DispatchTimerName, err)
		}
	})
}
