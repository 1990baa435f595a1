// Package server implements the TCP listener for respkv. Each accepted
// connection is handed to its own session goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/session"
)

const rejectWriteTimeout = time.Second

var (
	errServerClosed = errors.New("server closed")
	errMaxClients   = errors.New("ERR max number of clients reached")
)

// Config holds server configuration.
type Config struct {
	MaxClients  int
	IdleTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		MaxClients:  10000,
		IdleTimeout: 0,
	}
}

// clientConn tracks one accepted connection.
type clientConn struct {
	id        int64
	conn      net.Conn
	addr      string
	createdAt time.Time
}

// Server accepts RESP connections and serves them through an Executor.
type Server struct {
	addr     string
	exec     session.Executor
	config   Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	listener net.Listener
	wg       sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	nextConnID int64
	clients    map[int64]*clientConn
	startTime  time.Time
}

// New creates a Server that will listen on addr. m may be nil.
func New(addr string, exec session.Executor, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:      addr,
		exec:      exec,
		config:    cfg,
		logger:    logger.Named("server"),
		metrics:   m,
		clients:   make(map[int64]*clientConn),
		startTime: time.Now(),
	}
}

// Listen binds the listening socket without accepting connections yet.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// NumClients returns the number of open connections.
func (s *Server) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Uptime returns the time since the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Serve accepts connections until Close is called. Listen must be called
// first.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed to accept connection", zap.Error(err))
			continue
		}

		client, err := s.register(conn)
		if err != nil {
			s.reject(conn, err)
			continue
		}

		go func(c *clientConn) {
			defer s.wg.Done()
			defer s.unregister(c)
			s.handleConnection(c)
		}(client)
	}
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.Serve()
}

// register records a new connection, enforcing MaxClients. It adds to the
// wait group under the same lock Close takes, so Close never misses a
// session.
func (s *Server) register(conn net.Conn) (*clientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errServerClosed
	}
	if s.config.MaxClients > 0 && len(s.clients) >= s.config.MaxClients {
		return nil, errMaxClients
	}

	s.nextConnID++
	client := &clientConn{
		id:        s.nextConnID,
		conn:      conn,
		addr:      conn.RemoteAddr().String(),
		createdAt: time.Now(),
	}
	s.clients[client.id] = client
	s.wg.Add(1)

	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
	}
	return client, nil
}

// reject closes a connection register refused. A client over the limit is
// told why, bounded by rejectWriteTimeout. Must not hold s.mu.
func (s *Server) reject(conn net.Conn, reason error) {
	defer conn.Close()
	if !errors.Is(reason, errMaxClients) {
		return
	}

	remote := conn.RemoteAddr().String()
	s.logger.Warn("max clients reached, rejecting connection", zap.String("remote", remote))
	if err := conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout)); err != nil {
		s.logger.Debug("failed to set write deadline", zap.String("remote", remote), zap.Error(err))
	}
	if _, err := conn.Write(protocol.Encode(protocol.Error(reason.Error()))); err != nil {
		s.logger.Debug("failed to notify rejected client", zap.String("remote", remote), zap.Error(err))
	}
}

func (s *Server) unregister(c *clientConn) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
}

// handleConnection serves a single client connection.
func (s *Server) handleConnection(client *clientConn) {
	defer client.conn.Close()

	logger := s.logger.With(zap.Int64("conn_id", client.id), zap.String("remote", client.addr))
	logger.Debug("client connected")

	sess := session.New(client.conn, s.exec, session.Options{
		ID:          client.id,
		IdleTimeout: s.config.IdleTimeout,
		Logger:      s.logger.Named("session"),
		Metrics:     s.metrics,
	})

	err := sess.Serve()
	var netErr net.Error
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrInvalidProtocol):
		// already logged by the session
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("client idle timeout")
	case errors.Is(err, net.ErrClosed):
	default:
		logger.Warn("connection error", zap.Error(err))
	}

	logger.Debug("client disconnected", zap.Duration("lifetime", time.Since(client.createdAt)))
}

// Close stops accepting, closes every open connection and waits for their
// sessions to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.wg.Wait()
	s.logger.Info("server stopped")
	return err
}
