// Package session serves one client connection: it decodes the incoming
// byte stream, executes each command in arrival order and writes the replies
// back in the same order.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/protocol"
)

const readBufSize = 16 * 1024

// Executor runs a single decoded command and returns its reply.
type Executor interface {
	Execute(cmd protocol.Command) protocol.Value
}

// Options tune a Session. The zero value is usable.
type Options struct {
	ID          int64
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Session owns the decode buffer of one connection.
type Session struct {
	conn        io.ReadWriter
	exec        Executor
	idleTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// New creates a Session over conn. If conn implements SetReadDeadline and
// opts.IdleTimeout is set, reads time out after that much inactivity.
func New(conn io.ReadWriter, exec Executor, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conn:        conn,
		exec:        exec,
		idleTimeout: opts.IdleTimeout,
		logger:      logger.With(zap.Int64("conn_id", opts.ID)),
		metrics:     opts.Metrics,
	}
}

// Serve runs the request/reply loop until the peer closes the connection
// (nil error), a read or write fails, or the input cannot be framed
// (protocol.ErrInvalidProtocol). Replies for every command decoded before a
// framing error are still written. Partial trailing input is discarded.
func (s *Session) Serve() error {
	dec := protocol.NewDecoder()
	w := protocol.NewWriter(s.conn)
	w.SetAutoFlush(false)
	buf := make([]byte, readBufSize)

	for {
		if s.idleTimeout > 0 {
			if d, ok := s.conn.(readDeadliner); ok {
				if err := d.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
					s.logger.Debug("failed to set read deadline", zap.Error(err))
				}
			}
		}

		n, readErr := s.conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			if err := s.drain(dec, w); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, net.ErrClosed) {
				if pending := dec.Buffered(); pending > 0 {
					s.logger.Debug("discarding partial command", zap.Int("bytes", pending))
				}
				return nil
			}
			return fmt.Errorf("session: read: %w", readErr)
		}
	}
}

// drain executes every complete buffered command and flushes the replies as
// one batch.
func (s *Session) drain(dec *protocol.Decoder, w *protocol.Writer) error {
	for cmd, err := range dec.Commands() {
		if err != nil {
			if s.metrics != nil {
				s.metrics.ProtocolErrors.Inc()
			}
			s.logger.Warn("closing connection on protocol error", zap.Error(err))
			if flushErr := w.Flush(); flushErr != nil {
				return fmt.Errorf("session: write: %w", flushErr)
			}
			return err
		}
		if err := w.WriteValue(s.exec.Execute(cmd)); err != nil {
			return fmt.Errorf("session: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}
