package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultFrameQueueSize   = 256
	closeWriteTimeout       = time.Second
)

// WebsocketDialer implements Dialer on top of gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero selects a default.
	HandshakeTimeout time.Duration
	// TLSConfig is used for wss URLs. Nil selects library defaults.
	TLSConfig *tls.Config
	// Header is sent with the handshake request, e.g. for authentication.
	Header http.Header
	// FrameQueueSize caps how many inbound frames buffer between the blocking
	// reader and the non-blocking Read side. Zero selects a default. A full
	// buffer stalls the reader, it never drops frames.
	FrameQueueSize int
	// Logger receives debug-level transport events. Zero value is silent.
	Logger zerolog.Logger
}

// Dial connects, disables Nagle buffering on the underlying socket and
// starts the reader pump that feeds the non-blocking Read contract.
func (d *WebsocketDialer) Dial(url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  d.TLSConfig,
	}
	ws, resp, err := dialer.Dial(url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	setNoDelay(ws.NetConn())

	size := d.FrameQueueSize
	if size <= 0 {
		size = defaultFrameQueueSize
	}
	conn := &wsConn{
		ws:     ws,
		frames: make(chan frame, size),
		logger: d.Logger.With().Str("component", "transport").Str("url", url).Logger(),
	}
	go conn.readPump()
	return conn, nil
}

func setNoDelay(conn net.Conn) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
}

type frame struct {
	data []byte
	err  error
}

type wsConn struct {
	ws      *websocket.Conn
	frames  chan frame
	logger  zerolog.Logger
	writeMu sync.Mutex
	aborted sync.Once
}

// readPump blocks on the websocket and feeds the frame buffer. gorilla's
// default ping handler answers pings with pongs while ReadMessage blocks, so
// keepalive works without surfacing control frames. The pump exits after the
// first error, which is delivered as the terminal frame.
func (c *wsConn) readPump() {
	defer close(c.frames)
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			var closed *websocket.CloseError
			if errors.As(err, &closed) {
				c.frames <- frame{err: &CloseError{Code: closed.Code, Reason: closed.Text}}
			} else {
				c.frames <- frame{err: err}
			}
			return
		}
		// Binary frames carry no text payload for the host and are dropped,
		// mirroring the text-only host surface.
		if messageType != websocket.TextMessage {
			c.logger.Debug().Int("type", messageType).Msg("dropping non-text frame")
			continue
		}
		c.frames <- frame{data: data}
	}
}

func (c *wsConn) SendText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) Close(reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return c.ws.WriteControl(websocket.CloseMessage, payload, time.Now().Add(closeWriteTimeout))
}

func (c *wsConn) Read() ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			// Terminal error already consumed on an earlier Read.
			return nil, net.ErrClosed
		}
		if f.err != nil {
			return nil, f.err
		}
		return f.data, nil
	default:
		return nil, ErrWouldBlock
	}
}

func (c *wsConn) Abort() {
	c.aborted.Do(func() {
		_ = c.ws.Close()
	})
}
