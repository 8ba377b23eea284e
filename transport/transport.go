// Package transport abstracts the WebSocket wire protocol behind a small
// dial/read/write surface so the bridge core never touches framing or
// handshake mechanics directly.
package transport

import (
	"errors"
	"fmt"
)

// ErrWouldBlock is returned by Conn.Read when no frame is pending. It is a
// normal condition of the non-blocking read contract, not a failure.
var ErrWouldBlock = errors.New("transport: read would block")

// CloseError reports that the peer completed a graceful close handshake.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport: peer closed (code %d)", e.Code)
	}
	return fmt.Sprintf("transport: peer closed (code %d): %s", e.Code, e.Reason)
}

// Conn is one established WebSocket connection.
//
// Read never blocks: it returns the next inbound text payload, ErrWouldBlock
// when idle, a *CloseError after the peer closed, or any other error on a
// terminal transport failure. Errors other than ErrWouldBlock are sticky;
// callers are expected to Abort and stop reading after the first one.
// Control frames are handled below this surface (pings are answered with
// pongs and never surfaced).
type Conn interface {
	// SendText writes one text frame.
	SendText(text string) error
	// Close starts the protocol close handshake. Best effort.
	Close(reason string) error
	// Read returns the next inbound text payload, see the interface comment.
	Read() ([]byte, error)
	// Abort tears the underlying socket down without a close handshake.
	Abort()
}

// Dialer establishes connections. Dial blocks until the handshake finished
// or failed and must only be called from a goroutine that may block.
type Dialer interface {
	Dial(url string) (Conn, error)
}
