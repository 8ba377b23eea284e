package bridge

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/timzifer/wsbridge/host"
)

// closedByUser is the disconnect reason reported for forceful local closes.
const closedByUser = "closed by user"

// Conn is the host-visible connection handle. Its identity is stable across
// reopens; the queue pair and worker goroutine behind it are per generation.
//
// Release contract: a Conn holds no finalizer. Whoever owns the last
// reference must call CloseNow (or Bridge.Shutdown) before discarding it,
// otherwise the worker keeps running until its socket fails.
type Conn struct {
	id     uuid.UUID
	url    string
	bridge *Bridge

	// mu guards the command sender, lifecycle flag, notified latch and the
	// callback table reference.
	mu        sync.Mutex
	tx        *sender[command]
	closed    bool
	notified  bool
	callbacks host.Callbacks

	// rxMu guards the event receiver slot. The dispatch loop only ever
	// TryLocks it and treats contention as worker-gone; Open and CloseNow
	// take it unconditionally while swapping generations.
	rxMu sync.Mutex
	rx   *receiver[event]
}

// ID returns the connection identity. Diagnostics only, never used for lookup.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// URL returns the URL the connection was created with; reopens dial it again.
func (c *Conn) URL() string {
	return c.url
}

func (c *Conn) String() string {
	return fmt.Sprintf("wsbridge(%s)", c.id)
}

// SetCallbacks installs or replaces the callback table consulted by the
// dispatch loop. A nil table means all callbacks are no-ops.
func (c *Conn) SetCallbacks(callbacks host.Callbacks) {
	c.mu.Lock()
	c.callbacks = callbacks
	c.mu.Unlock()
}

// Send enqueues a text frame for the worker. Returns ErrChannelClosed when
// the current generation's worker is gone.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	return tx.Send(command{kind: commandMessage, text: text})
}

// Close requests a graceful protocol close. The handle stays registered
// until the worker confirms termination. Returns ErrChannelClosed when the
// worker is already gone.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	tx := c.tx
	c.mu.Unlock()
	return tx.Send(command{kind: commandClose})
}

// CloseNow severs the connection immediately: both queue halves are replaced
// with inert pairs, the handle leaves the registry and on_disconnect fires
// synchronously with a fixed reason. The abandoned worker notices the dead
// command queue on its next poll and aborts its socket. Always succeeds.
func (c *Conn) CloseNow() {
	c.mu.Lock()
	c.closed = true
	alreadyNotified := c.notified
	c.notified = true
	oldTx := c.tx
	c.tx = deadSender()
	callbacks := c.callbacks
	c.mu.Unlock()

	oldTx.Close()

	c.rxMu.Lock()
	oldRx := c.rx
	c.rx = deadReceiver()
	c.rxMu.Unlock()
	if oldRx != nil {
		oldRx.Close()
	}

	c.bridge.retire(c)
	if !alreadyNotified {
		c.bridge.invoke(c, callbacks, host.OnDisconnect, closedByUser)
	}
}

// Open re-establishes a closed connection with a fresh generation. It is a
// no-op returning true while the connection is still open. Success of the
// new connection attempt arrives later as a connected or error event.
func (c *Conn) Open() bool {
	c.mu.Lock()
	if !c.closed {
		c.mu.Unlock()
		return true
	}
	tx, commands := newQueue[command]()
	events, rx := newQueue[event]()
	oldTx := c.tx
	c.tx = tx
	c.closed = false
	c.notified = false
	c.mu.Unlock()

	// A still-running previous worker observes the closed command queue and
	// exits on its own.
	oldTx.Close()

	c.rxMu.Lock()
	oldRx := c.rx
	c.rx = rx
	c.rxMu.Unlock()
	if oldRx != nil {
		oldRx.Close()
	}

	c.bridge.spawn(c.url, commands, events)
	c.bridge.register(c)
	return true
}

// Closed reports the lifecycle flag: true after a close was issued or the
// worker reported terminal disconnect, until the next Open.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// markDisconnected flips the lifecycle flag when a disconnect event is
// dispatched and reports whether on_disconnect still has to fire.
func (c *Conn) markDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.notified {
		return false
	}
	c.notified = true
	return true
}

func (c *Conn) callbackTable() host.Callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks
}

// deadSender builds a sender whose consumer half is already gone, so every
// Send fails with ErrChannelClosed.
func deadSender() *sender[command] {
	tx, rx := newQueue[command]()
	rx.Close()
	return tx
}

// deadReceiver builds a receiver whose producer half is already gone, so
// TryRecv reports recvGone immediately.
func deadReceiver() *receiver[event] {
	tx, rx := newQueue[event]()
	tx.Close()
	return rx
}
