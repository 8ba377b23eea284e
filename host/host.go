// Package host declares the contracts the bridge expects from its embedding
// environment: a cooperative periodic scheduler, per-connection callback
// tables looked up by fixed string keys, and a non-halting error sink.
package host

import (
	"time"

	"github.com/rs/zerolog"
)

// CallbackKey names one of the four callbacks a connection object may carry.
type CallbackKey string

const (
	OnConnect    CallbackKey = "on_connect"
	OnMessage    CallbackKey = "on_message"
	OnError      CallbackKey = "on_error"
	OnDisconnect CallbackKey = "on_disconnect"
)

// Connection is the operations surface the bridge exposes to host callbacks.
type Connection interface {
	// Send enqueues a text frame for the worker.
	Send(text string) error
	// Close requests a graceful protocol close.
	Close() error
	// CloseNow severs the connection immediately without waiting for the worker.
	CloseNow()
	// Open re-establishes a closed connection against its original URL.
	Open() bool
	// String renders the connection identity for diagnostics.
	String() string
}

// Callback is one host handler. The payload is the message text, the error
// text or the disconnect reason depending on the key; empty for OnConnect.
// A returned error is reported through the ErrorReporter and never stops
// dispatch.
type Callback func(conn Connection, payload string) error

// Callbacks resolves callbacks by key. A missing key means no-op.
type Callbacks interface {
	Lookup(key CallbackKey) (Callback, bool)
}

// CallbackMap is the trivial Callbacks implementation.
type CallbackMap map[CallbackKey]Callback

func (m CallbackMap) Lookup(key CallbackKey) (Callback, bool) {
	cb, ok := m[key]
	return cb, ok && cb != nil
}

// Scheduler is the host's periodic timer primitive. Implementations must run
// all callbacks registered through them on a single goroutine so bridge
// dispatch is never re-entered concurrently. Registering a name twice
// replaces the earlier timer.
type Scheduler interface {
	CreatePeriodicTimer(name string, interval time.Duration, fn func()) error
}

// ErrorReporter receives failures that must not halt dispatch, such as a
// callback raising during a tick.
type ErrorReporter interface {
	ReportNonFatal(context string, err error)
}

// LogReporter reports non-fatal errors through a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "reporter").Logger()}
}

func (r *LogReporter) ReportNonFatal(context string, err error) {
	r.logger.Error().Err(err).Str("context", context).Msg("non-fatal host error")
}
