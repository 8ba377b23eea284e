package bridge

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/wsbridge/telemetry"
	"github.com/timzifer/wsbridge/transport"
)

// defaultPollInterval bounds both command latency and idle CPU use of the
// worker loop.
const defaultPollInterval = 10 * time.Millisecond

// worker owns one live WebSocket connection for one handle generation. It is
// the only reader of the command queue and the only writer of the event queue
// of that generation.
type worker struct {
	url       string
	dialer    transport.Dialer
	commands  *receiver[command]
	events    *sender[event]
	interval  time.Duration
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// run is the worker goroutine. It closes both queue halves it owns on exit
// so the host side can detect termination even when no terminal event was
// emitted.
func (w *worker) run() {
	defer w.events.Close()
	defer w.commands.Close()

	conn, err := w.dialer.Dial(w.url)
	if err != nil {
		w.telemetry.IncConnectFailure()
		w.logger.Debug().Err(err).Msg("connect failed")
		_ = w.events.Send(event{kind: eventError, data: err.Error()})
		return
	}
	w.telemetry.IncConnectionOpened()
	_ = w.events.Send(event{kind: eventConnected})

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		// At most one command per iteration so a burst of sends cannot starve
		// the read side.
		cmd, state := w.commands.TryRecv()
		switch state {
		case recvOK:
			switch cmd.kind {
			case commandMessage:
				// Best effort: a failed write surfaces through the next failed
				// read, not as its own event.
				if err := conn.SendText(cmd.text); err != nil {
					w.telemetry.IncDroppedWrite()
					w.logger.Debug().Err(err).Msg("dropped outbound frame")
				}
			case commandClose:
				if err := conn.Close(""); err != nil {
					w.logger.Debug().Err(err).Msg("close handshake write failed")
				}
			}
		case recvGone:
			// Handle destroyed or replaced, nobody is listening anymore.
			conn.Abort()
			return
		case recvEmpty:
		}

		data, err := conn.Read()
		switch {
		case err == nil:
			_ = w.events.Send(event{kind: eventMessage, data: decodeText(data)})
		case errors.Is(err, transport.ErrWouldBlock):
		default:
			var closed *transport.CloseError
			if errors.As(err, &closed) {
				reason := closed.Reason
				if reason == "" {
					reason = "unknown"
				}
				_ = w.events.Send(event{kind: eventDisconnected, data: reason})
			} else {
				_ = w.events.Send(event{kind: eventError, data: err.Error()})
			}
			conn.Abort()
			return
		}

		<-ticker.C
	}
}

// decodeText never fails: invalid UTF-8 byte sequences are replaced instead
// of dropping the frame.
func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
