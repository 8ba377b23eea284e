package bridge

import (
	"sync"

	"github.com/timzifer/wsbridge/transport"
)

// fakeDialer hands out scripted fake connections and records dial attempts.
type fakeDialer struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
}

func (d *fakeDialer) Dial(string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := &fakeConn{}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type readResult struct {
	data []byte
	err  error
}

// fakeConn implements transport.Conn with a scripted inbound frame queue.
type fakeConn struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	inbound []readResult
	closed  bool
	aborted bool
}

func (c *fakeConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Close(string) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return nil, transport.ErrWouldBlock
	}
	next := c.inbound[0]
	c.inbound = c.inbound[1:]
	return next.data, next.err
}

func (c *fakeConn) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.mu.Unlock()
}

func (c *fakeConn) push(data []byte) {
	c.mu.Lock()
	c.inbound = append(c.inbound, readResult{data: data})
	c.mu.Unlock()
}

func (c *fakeConn) pushErr(err error) {
	c.mu.Lock()
	c.inbound = append(c.inbound, readResult{err: err})
	c.mu.Unlock()
}

func (c *fakeConn) pushClose(reason string) {
	c.pushErr(&transport.CloseError{Code: 1000, Reason: reason})
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) closeRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) wasAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}
