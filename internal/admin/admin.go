// Package admin serves the HTTP admin interface for respkv: health probes,
// server stats, key inspection, command execution and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/respkv/respkv/internal/client"
	"github.com/respkv/respkv/internal/hotkeys"
	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/store"
	"github.com/respkv/respkv/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	apiVersionPath  = "/api/v1"
	defaultKeyLimit = 100
	defaultHotKeys  = 10
	maxKeyLimit     = 10000
	shutdownTimeout = 5 * time.Second
)

// Executor runs a command the same way a RESP client would.
type Executor interface {
	Execute(cmd protocol.Command) protocol.Value
	Processed() int64
	Commands() []string
}

// ClientCounter reports live RESP connections and how long the RESP server
// has been up.
type ClientCounter interface {
	NumClients() int
	Uptime() time.Duration
}

// Server is the admin HTTP server.
type Server struct {
	addr      string
	store     *store.Store
	exec      Executor
	clients   ClientCounter
	hotkeys   *hotkeys.Tracker
	metrics   http.Handler
	logger    *zap.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Options carries the optional collaborators of the admin server.
type Options struct {
	// Clients reports connection counts and uptime for /api/v1/stats.
	Clients ClientCounter
	// HotKeys backs GET and DELETE /api/v1/hotkeys when set.
	HotKeys *hotkeys.Tracker
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

// New creates an admin server bound to addr once started.
func New(addr string, st *store.Store, exec Executor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		store:   st,
		exec:    exec,
		clients: opts.Clients,
		hotkeys: opts.HotKeys,
		metrics: opts.Metrics,
		logger:  logger.Named("admin"),
	}
}

// CommandRequest represents a command execution request.
type CommandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// CommandResponse represents a command execution response.
type CommandResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatsResponse represents server statistics.
type StatsResponse struct {
	Version       string  `json:"version"`
	Uptime        int64   `json:"uptime"`
	UptimeHuman   string  `json:"uptime_human"`
	Keys          int     `json:"keys"`
	Clients       int     `json:"clients"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	GoRoutines    int     `json:"goroutines"`
	CPUs          int     `json:"cpus"`
	TotalCommands int64   `json:"total_commands"`
}

// KeyInfo represents information about a key.
type KeyInfo struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	TTL  int64  `json:"ttl"`
}

// KeysResponse is the body of /api/v1/keys.
type KeysResponse struct {
	Keys  []KeyInfo `json:"keys"`
	Total int       `json:"total"`
}

// Handler returns the admin routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.routes())
}

// Listen binds the admin address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin: failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.logger.Info("admin listening", zap.String("addr", ln.Addr().String()))
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

// Serve handles requests until Shutdown. Listen must be called first.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("admin: Serve called before Listen")
	}
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Shutdown(shutdownCtx)
	}()

	return s.Serve()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET "+apiVersionPath+"/healthz", s.handleHealth)
	mux.HandleFunc("GET "+apiVersionPath+"/readyz", s.handleReady)

	mux.HandleFunc("GET "+apiVersionPath+"/stats", s.handleStats)
	mux.HandleFunc("GET "+apiVersionPath+"/keys", s.handleKeys)
	mux.HandleFunc("GET "+apiVersionPath+"/commands", s.handleCommands)
	mux.HandleFunc("POST "+apiVersionPath+"/execute", s.handleExecute)
	if s.hotkeys != nil {
		mux.HandleFunc("GET "+apiVersionPath+"/hotkeys", s.handleHotKeys)
		mux.HandleFunc("DELETE "+apiVersionPath+"/hotkeys", s.handleResetHotKeys)
	}

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.store != nil && s.exec != nil
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"ready":  ready,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := StatsResponse{
		Version:      version.Version,
		UptimeHuman:  formatDuration(0),
		Keys:         s.store.Size(),
		MemoryUsed:   mem.Alloc,
		MemoryUsedMB: float64(mem.Alloc) / 1024 / 1024,
		GoRoutines:   runtime.NumGoroutine(),
		CPUs:         runtime.NumCPU(),
	}
	if s.clients != nil {
		uptime := s.clients.Uptime()
		stats.Clients = s.clients.NumClients()
		stats.Uptime = int64(uptime.Seconds())
		stats.UptimeHuman = formatDuration(uptime)
	}
	if s.exec != nil {
		stats.TotalCommands = s.exec.Processed()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	limit := defaultKeyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxKeyLimit)
	}

	keys := s.store.Keys(pattern)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	infos := make([]KeyInfo, 0, len(keys))
	for _, key := range keys {
		kind := s.store.Type(key)
		if kind == store.KindNone {
			// expired between Keys and Type
			continue
		}
		infos = append(infos, KeyInfo{
			Key:  key,
			Type: kind.String(),
			TTL:  s.store.TTL(key),
		})
	}

	writeJSON(w, http.StatusOK, KeysResponse{Keys: infos, Total: s.store.Size()})
}

func (s *Server) handleHotKeys(w http.ResponseWriter, r *http.Request) {
	n := defaultHotKeys
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "Invalid n", http.StatusBadRequest)
			return
		}
		n = min(v, maxKeyLimit)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":    s.hotkeys.Top(n),
		"tracked": s.hotkeys.Size(),
	})
}

func (s *Server) handleResetHotKeys(w http.ResponseWriter, r *http.Request) {
	s.hotkeys.Reset()
	s.logger.Info("hot key counters reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracked": 0})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands": s.exec.Commands(),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "Invalid request"})
		return
	}

	parts := req.Args
	if strings.TrimSpace(req.Command) != "" {
		if len(parts) == 0 {
			parts = client.SplitArgs(req.Command)
		} else {
			parts = append([]string{req.Command}, parts...)
		}
	}
	if len(parts) == 0 {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "Empty command"})
		return
	}

	cmd := make(protocol.Command, len(parts))
	for i, p := range parts {
		cmd[i] = []byte(p)
	}

	reply := s.exec.Execute(cmd)
	if reply.Type == protocol.TypeError {
		writeJSON(w, http.StatusOK, CommandResponse{Error: reply.Str})
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true, Result: toJSON(reply)})
}

// toJSON converts a reply into plain JSON values. Null replies become nil.
func toJSON(v protocol.Value) interface{} {
	switch v.Type {
	case protocol.TypeInteger:
		return v.Num
	case protocol.TypeArray:
		if v.Null {
			return nil
		}
		items := make([]interface{}, len(v.Array))
		for i, item := range v.Array {
			items[i] = toJSON(item)
		}
		return items
	default:
		if v.Null {
			return nil
		}
		return v.Str
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// formatDuration formats a duration as human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
