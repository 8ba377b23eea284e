package bridge

import (
	"fmt"

	"github.com/timzifer/wsbridge/host"
)

// Tick is one invocation of the dispatch loop. It drains at most one event
// per registered handle, invokes the matching host callback and retires
// handles whose worker generation has terminated. The host scheduler calls it
// periodically; tests may drive it directly.
func (b *Bridge) Tick() {
	for _, conn := range b.registry.Snapshot() {
		if !b.dispatchOne(conn) {
			b.retire(conn)
		}
	}
}

// dispatchOne services a single handle and reports whether it stays
// registered.
func (b *Bridge) dispatchOne(conn *Conn) bool {
	// Contention on the receiver slot means the handle is mid-replacement or
	// its generation is being torn down; treat it like worker-gone.
	if !conn.rxMu.TryLock() {
		return false
	}
	ev, state := conn.rx.TryRecv()
	conn.rxMu.Unlock()

	switch state {
	case recvEmpty:
		return true
	case recvGone:
		// Worker exited without a terminal event (e.g. aborted generation):
		// retire silently.
		b.logger.Debug().Stringer("conn", conn).Msg("worker gone, retiring handle")
		return false
	}

	b.telemetry.IncEventDispatched(ev.kind.String())
	callbacks := conn.callbackTable()
	switch ev.kind {
	case eventConnected:
		b.invoke(conn, callbacks, host.OnConnect, "")
	case eventMessage:
		b.invoke(conn, callbacks, host.OnMessage, ev.data)
	case eventError:
		b.invoke(conn, callbacks, host.OnError, ev.data)
	case eventDisconnected:
		if conn.markDisconnected() {
			b.invoke(conn, callbacks, host.OnDisconnect, ev.data)
		}
		return false
	}
	return true
}

// invoke runs one host callback, shielding the dispatch loop from callback
// errors and panics. Failures go to the non-fatal reporter; they never stop
// the tick or retire the handle.
func (b *Bridge) invoke(conn *Conn, callbacks host.Callbacks, key host.CallbackKey, payload string) {
	if callbacks == nil {
		return
	}
	callback, ok := callbacks.Lookup(key)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.telemetry.IncCallbackFailure(string(key))
			b.reporter.ReportNonFatal(fmt.Sprintf("%s %s", conn, key), fmt.Errorf("callback panic: %v", r))
		}
	}()
	if err := callback(conn, payload); err != nil {
		b.telemetry.IncCallbackFailure(string(key))
		b.reporter.ReportNonFatal(fmt.Sprintf("%s %s", conn, key), err)
	}
}
