package exprhost

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/wsbridge/config"
	"github.com/timzifer/wsbridge/host"
)

type fakeConnection struct {
	sent    []string
	closed  bool
	sendErr error
}

func (c *fakeConnection) Send(text string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConnection) CloseNow()      {}
func (c *fakeConnection) Open() bool     { return true }
func (c *fakeConnection) String() string { return "wsbridge(test)" }

func TestCompileRejectsInvalidScript(t *testing.T) {
	_, err := Compile(config.ConnectionConfig{
		URL:       "ws://bad.test",
		OnMessage: "((",
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_message")
}

func TestLookupAbsentCallback(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{URL: "ws://sparse.test"}, zerolog.Nop())
	require.NoError(t, err)
	_, ok := table.Lookup(host.OnMessage)
	require.False(t, ok)
}

func TestOnMessageEchoScript(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{
		URL:       "ws://echo.test",
		OnMessage: `send("echo: " + payload)`,
	}, zerolog.Nop())
	require.NoError(t, err)

	cb, ok := table.Lookup(host.OnMessage)
	require.True(t, ok)

	conn := &fakeConnection{}
	require.NoError(t, cb(conn, "hello"))
	require.Equal(t, []string{"echo: hello"}, conn.sent)
}

func TestOnDisconnectSeesReason(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{
		URL:          "ws://reason.test",
		OnDisconnect: `log("gone: " + reason)`,
	}, zerolog.Nop())
	require.NoError(t, err)

	cb, ok := table.Lookup(host.OnDisconnect)
	require.True(t, ok)
	require.NoError(t, cb(&fakeConnection{}, "normal"))
}

func TestCloseBinding(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{
		URL:       "ws://closer.test",
		OnMessage: `payload == "quit" ? close() : true`,
	}, zerolog.Nop())
	require.NoError(t, err)

	cb, ok := table.Lookup(host.OnMessage)
	require.True(t, ok)

	conn := &fakeConnection{}
	require.NoError(t, cb(conn, "stay"))
	require.False(t, conn.closed)
	require.NoError(t, cb(conn, "quit"))
	require.True(t, conn.closed)
}

func TestRuntimeErrorSurfaces(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{
		URL:       "ws://broken.test",
		OnMessage: `missing_function(payload)`,
	}, zerolog.Nop())
	require.NoError(t, err)

	cb, ok := table.Lookup(host.OnMessage)
	require.True(t, ok)
	require.Error(t, cb(&fakeConnection{}, "x"))
}

func TestSendFailureReportedAsFalse(t *testing.T) {
	table, err := Compile(config.ConnectionConfig{
		URL:       "ws://dead.test",
		OnMessage: `send(payload)`,
	}, zerolog.Nop())
	require.NoError(t, err)

	cb, ok := table.Lookup(host.OnMessage)
	require.True(t, ok)

	conn := &fakeConnection{sendErr: errors.New("channel closed")}
	// The script itself succeeds; the failed send is reported via the
	// binding's boolean result and the log.
	require.NoError(t, cb(conn, "x"))
	require.Empty(t, conn.sent)
}
