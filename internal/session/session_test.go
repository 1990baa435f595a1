package session

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/respkv/respkv/internal/command"
	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/store"
)

type fakeConn struct {
	io.Reader
	bytes.Buffer
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.Reader.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.Buffer.Write(p) }

func newDispatcher(t *testing.T) *command.Dispatcher {
	d, err := command.New(store.New(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func serve(t *testing.T, r io.Reader, m *metrics.Metrics) (string, error) {
	conn := &fakeConn{Reader: r}
	s := New(conn, newDispatcher(t), Options{ID: 1, Logger: zaptest.NewLogger(t), Metrics: m})
	err := s.Serve()
	return conn.Buffer.String(), err
}

func encodeCommand(args ...string) string {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	_ = w.WriteCommand(args...)
	return buf.String()
}

func TestSession_RepliesInOrder(t *testing.T) {
	input := encodeCommand("set", "k", "v") + encodeCommand("get", "k") + encodeCommand("del", "k") + encodeCommand("get", "k")

	out, err := serve(t, strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, "+OK\r\n$1\r\nv\r\n:1\r\n$-1\r\n", out)
}

func TestSession_CommandsSplitAcrossReads(t *testing.T) {
	input := encodeCommand("rpush", "k", "a", "b") + encodeCommand("lrange", "k", "0", "-1")

	out, err := serve(t, iotest.OneByteReader(strings.NewReader(input)), nil)
	require.NoError(t, err)
	assert.Equal(t, ":2\r\n*2\r\n$1\r\na\r\n$1\r\nb\r\n", out)
}

func TestSession_CommandErrorKeepsConnectionOpen(t *testing.T) {
	input := encodeCommand("nope") + encodeCommand("get") + encodeCommand("ping")

	out, err := serve(t, strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t,
		"-ERR unknown command 'nope'\r\n-ERR wrong number of arguments for 'get' command\r\n+PONG\r\n",
		out)
}

func TestSession_CRLFInCommandNameKeepsRepliesAligned(t *testing.T) {
	input := "*1\r\n$6\r\nx\r\n:42\r\n" + encodeCommand("ping")

	out, err := serve(t, strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, "-ERR unknown command 'x  :42'\r\n+PONG\r\n", out)

	r := protocol.NewReader(strings.NewReader(out))
	first, err := r.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.TypeError), first.Type)
	second, err := r.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, protocol.Status("PONG"), second)
}

type failingDeadlineConn struct {
	fakeConn
}

func (c *failingDeadlineConn) SetReadDeadline(time.Time) error {
	return errors.New("deadline unsupported")
}

func TestSession_LogsFailedReadDeadline(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	conn := &failingDeadlineConn{fakeConn{Reader: strings.NewReader(encodeCommand("ping"))}}
	s := New(conn, newDispatcher(t), Options{IdleTimeout: time.Second, Logger: zap.New(core)})

	require.NoError(t, s.Serve())
	assert.Equal(t, "+PONG\r\n", conn.Buffer.String())
	assert.NotZero(t, logs.FilterMessage("failed to set read deadline").Len())
}

func TestSession_ProtocolErrorClosesAfterPendingReplies(t *testing.T) {
	m := metrics.New()
	input := encodeCommand("set", "k", "v") + "GARBAGE\r\n" + encodeCommand("get", "k")

	out, err := serve(t, strings.NewReader(input), m)
	assert.ErrorIs(t, err, protocol.ErrInvalidProtocol)
	assert.Equal(t, "+OK\r\n", out)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProtocolErrors))
}

func TestSession_DiscardsPartialTrailingCommand(t *testing.T) {
	input := encodeCommand("ping") + "*2\r\n$3\r\nget"

	out, err := serve(t, strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", out)
}

func TestSession_ReadErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	_, err := serve(t, iotest.ErrReader(boom), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSession_OverNetConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, newDispatcher(t), Options{IdleTimeout: time.Minute})
	done := make(chan error, 1)
	go func() {
		done <- s.Serve()
		server.Close()
	}()

	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	w := protocol.NewWriter(client)
	r := protocol.NewReader(client)

	require.NoError(t, w.WriteCommand("sadd", "k", "a", "a", "b"))
	v, err := r.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, protocol.Integer(2), v)

	require.NoError(t, w.WriteCommand("smembers", "k"))
	v, err = r.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, protocol.StringArray([]string{"a", "b"}), v)

	require.NoError(t, client.Close())
	assert.NoError(t, <-done)
}
