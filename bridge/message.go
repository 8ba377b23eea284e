package bridge

// command travels from the host-facing handle to the transport worker.
type command struct {
	kind commandKind
	text string
}

type commandKind int

const (
	// commandMessage asks the worker to write a text frame.
	commandMessage commandKind = iota
	// commandClose asks the worker to start the protocol close handshake.
	commandClose
)

// event travels from the transport worker to the dispatch loop.
type event struct {
	kind eventKind
	data string
}

type eventKind int

const (
	// eventConnected reports a completed handshake. No payload.
	eventConnected eventKind = iota
	// eventMessage carries an inbound text frame.
	eventMessage
	// eventError carries a terminal transport failure description.
	eventError
	// eventDisconnected carries the peer close reason.
	eventDisconnected
)

func (k eventKind) String() string {
	switch k {
	case eventConnected:
		return "connected"
	case eventMessage:
		return "message"
	case eventError:
		return "error"
	case eventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
