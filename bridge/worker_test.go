package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/wsbridge/telemetry"
	"github.com/timzifer/wsbridge/transport"
)

func newTestWorker(dialer transport.Dialer) (*worker, *sender[command], *receiver[event]) {
	tx, commands := newQueue[command]()
	events, rx := newQueue[event]()
	w := &worker{
		url:       "ws://worker.test",
		dialer:    dialer,
		commands:  commands,
		events:    events,
		interval:  time.Millisecond,
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	return w, tx, rx
}

func waitEvent(t *testing.T, rx *receiver[event]) event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, state := rx.TryRecv()
		switch state {
		case recvOK:
			return ev
		case recvGone:
			t.Fatalf("event queue gone while waiting for event")
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for event")
	return event{}
}

func waitGone(t *testing.T, rx *receiver[event]) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev, state := rx.TryRecv(); state == recvGone {
			return
		} else if state == recvOK {
			t.Fatalf("unexpected event %v while waiting for gone", ev)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for producer gone")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerConnectFailureEmitsErrorAndExits(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	w, _, rx := newTestWorker(dialer)
	go w.run()

	ev := waitEvent(t, rx)
	if ev.kind != eventError {
		t.Fatalf("expected error event, got %s", ev.kind)
	}
	if ev.data != "connection refused" {
		t.Fatalf("unexpected error text %q", ev.data)
	}
	waitGone(t, rx)
}

func TestWorkerForwardsCommandsInOrder(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)

	for _, text := range []string{"one", "two", "three"} {
		if err := tx.Send(command{kind: commandMessage, text: text}); err != nil {
			t.Fatalf("send %s: %v", text, err)
		}
	}
	go w.run()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	conn := dialer.conn(0)
	waitFor(t, "all commands written", func() bool {
		return len(conn.sentTexts()) == 3
	})
	sent := conn.sentTexts()
	for i, want := range []string{"one", "two", "three"} {
		if sent[i] != want {
			t.Fatalf("frame %d: got %q want %q", i, sent[i], want)
		}
	}

	if err := tx.Send(command{kind: commandClose}); err != nil {
		t.Fatalf("send close: %v", err)
	}
	waitFor(t, "close handshake", conn.closeRequested)
	tx.Close()
}

func TestWorkerAbortsWhenCommandProducerGone(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	tx.Close()
	waitFor(t, "socket abort", func() bool {
		return dialer.conn(0).wasAborted()
	})
	// No terminal event: the consumer side detects the exit as producer-gone.
	waitGone(t, rx)
}

func TestWorkerPeerClose(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()
	defer tx.Close()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	dialer.conn(0).pushClose("going away")

	ev := waitEvent(t, rx)
	if ev.kind != eventDisconnected {
		t.Fatalf("expected disconnected, got %s", ev.kind)
	}
	if ev.data != "going away" {
		t.Fatalf("unexpected reason %q", ev.data)
	}
	waitGone(t, rx)
	if !dialer.conn(0).wasAborted() {
		t.Fatalf("expected socket abort after peer close")
	}
}

func TestWorkerPeerCloseWithoutReason(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()
	defer tx.Close()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	dialer.conn(0).pushClose("")

	ev := waitEvent(t, rx)
	if ev.kind != eventDisconnected || ev.data != "unknown" {
		t.Fatalf("expected disconnected with unknown reason, got %s %q", ev.kind, ev.data)
	}
}

func TestWorkerTransportErrorTerminates(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()
	defer tx.Close()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	dialer.conn(0).pushErr(errors.New("connection reset"))

	ev := waitEvent(t, rx)
	if ev.kind != eventError || ev.data != "connection reset" {
		t.Fatalf("expected error event, got %s %q", ev.kind, ev.data)
	}
	waitGone(t, rx)
}

func TestWorkerLossyUTF8Decode(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()
	defer tx.Close()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	dialer.conn(0).push([]byte{0xff, 'h', 'i'})

	ev := waitEvent(t, rx)
	if ev.kind != eventMessage {
		t.Fatalf("expected message, got %s", ev.kind)
	}
	if ev.data != "�hi" {
		t.Fatalf("expected replacement decoding, got %q", ev.data)
	}
}

func TestWorkerDroppedWriteIsBestEffort(t *testing.T) {
	dialer := &fakeDialer{}
	w, tx, rx := newTestWorker(dialer)
	go w.run()
	defer tx.Close()

	if ev := waitEvent(t, rx); ev.kind != eventConnected {
		t.Fatalf("expected connected, got %s", ev.kind)
	}
	conn := dialer.conn(0)
	conn.mu.Lock()
	conn.sendErr = errors.New("broken pipe")
	conn.mu.Unlock()

	if err := tx.Send(command{kind: commandMessage, text: "lost"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	// The failed write must not produce an event or end the loop; the worker
	// keeps polling and still delivers subsequent inbound frames.
	conn.push([]byte("still alive"))
	ev := waitEvent(t, rx)
	if ev.kind != eventMessage || ev.data != "still alive" {
		t.Fatalf("expected message after dropped write, got %s %q", ev.kind, ev.data)
	}
}
