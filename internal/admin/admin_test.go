package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/respkv/respkv/internal/command"
	"github.com/respkv/respkv/internal/hotkeys"
	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/store"
)

type fixedClients struct {
	n      int
	uptime time.Duration
}

func (c fixedClients) NumClients() int        { return c.n }
func (c fixedClients) Uptime() time.Duration { return c.uptime }

func newTestAdmin(t *testing.T) (*Server, *store.Store, http.Handler) {
	t.Helper()
	st := store.New()
	m := metrics.New()
	tracker := hotkeys.New(0, 0)
	d, err := command.New(st, m, zaptest.NewLogger(t), command.WithHotKeys(tracker))
	require.NoError(t, err)

	s := New("127.0.0.1:0", st, d, Options{
		Clients: fixedClients{n: 3, uptime: 90 * time.Minute},
		HotKeys: tracker,
		Metrics: m.Handler(),
		Logger:  zaptest.NewLogger(t),
	})
	return s, st, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReadinessEndpoints(t *testing.T) {
	_, _, h := newTestAdmin(t)

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/healthz", "/api/v1/readyz"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	rr := do(t, h, http.MethodPost, "/healthz", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestReadyz_NotReadyWithoutStore(t *testing.T) {
	s := New(":0", nil, nil, Options{})
	rr := do(t, s.Handler(), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestOptionsPreflight(t *testing.T) {
	_, _, h := newTestAdmin(t)
	rr := do(t, h, http.MethodOptions, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestStats(t *testing.T) {
	s, st, h := newTestAdmin(t)
	st.Set("a", []byte("1"))
	_, err := st.RPush("b", []byte("x"))
	require.NoError(t, err)
	s.exec.Execute([][]byte{[]byte("ping")})

	rr := do(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, 3, stats.Clients)
	assert.Equal(t, int64(5400), stats.Uptime)
	assert.Equal(t, "1h 30m 0s", stats.UptimeHuman)
	assert.Equal(t, int64(1), stats.TotalCommands)
	assert.NotEmpty(t, stats.Version)
	assert.Positive(t, stats.CPUs)
}

func TestKeys(t *testing.T) {
	_, st, h := newTestAdmin(t)
	st.SetEX("user:1", []byte("a"), time.Minute)
	st.Set("user:2", []byte("b"))
	_, err := st.SAdd("tags", "x")
	require.NoError(t, err)

	rr := do(t, h, http.MethodGet, "/api/v1/keys?pattern=user:*", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp KeysResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Keys, 2)
	assert.Equal(t, KeyInfo{Key: "user:1", Type: "string", TTL: 60}, resp.Keys[0])
	assert.Equal(t, KeyInfo{Key: "user:2", Type: "string", TTL: -1}, resp.Keys[1])

	rr = do(t, h, http.MethodGet, "/api/v1/keys", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Keys, 3)
	assert.Equal(t, KeyInfo{Key: "tags", Type: "set", TTL: -1}, resp.Keys[0])
}

func TestKeys_Limit(t *testing.T) {
	_, st, h := newTestAdmin(t)
	for i := 0; i < 5; i++ {
		st.Set(fmt.Sprintf("k%d", i), []byte("v"))
	}

	rr := do(t, h, http.MethodGet, "/api/v1/keys?limit=2", nil)
	var resp KeysResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Keys, 2)
	assert.Equal(t, 5, resp.Total)

	rr = do(t, h, http.MethodGet, "/api/v1/keys?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExecute(t *testing.T) {
	_, _, h := newTestAdmin(t)

	tests := []struct {
		name    string
		body    string
		success bool
		result  interface{}
		errMsg  string
	}{
		{"ping", `{"command":"PING"}`, true, "PONG", ""},
		{"inline args", `{"command":"set greeting \"hello world\""}`, true, "OK", ""},
		{"explicit args", `{"command":"get","args":["greeting"]}`, true, "hello world", ""},
		{"null", `{"command":"get missing"}`, true, nil, ""},
		{"integer", `{"command":"rpush l a b"}`, true, float64(2), ""},
		{"array", `{"command":"lrange l 0 -1"}`, true, []interface{}{"a", "b"}, ""},
		{"error", `{"command":"nosuch"}`, false, nil, "ERR unknown command 'nosuch'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/execute", strings.NewReader(tt.body))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp CommandResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.success, resp.Success)
			assert.Equal(t, tt.result, resp.Result)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

func TestExecute_BadRequests(t *testing.T) {
	_, _, h := newTestAdmin(t)

	rr := do(t, h, http.MethodPost, "/api/v1/execute", bytes.NewReader([]byte("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/execute", strings.NewReader(`{"command":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/execute", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHotKeys(t *testing.T) {
	s, _, h := newTestAdmin(t)
	for i := 0; i < 3; i++ {
		s.exec.Execute([][]byte{[]byte("get"), []byte("hot")})
	}
	s.exec.Execute([][]byte{[]byte("get"), []byte("cold")})

	rr := do(t, h, http.MethodGet, "/api/v1/hotkeys?n=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Keys    []hotkeys.Entry `json:"keys"`
		Tracked int             `json:"tracked"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []hotkeys.Entry{{Key: "hot", Count: 3}}, resp.Keys)
	assert.Equal(t, 2, resp.Tracked)

	rr = do(t, h, http.MethodGet, "/api/v1/hotkeys?n=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHotKeys_Reset(t *testing.T) {
	s, _, h := newTestAdmin(t)
	s.exec.Execute([][]byte{[]byte("get"), []byte("hot")})
	require.Equal(t, 1, s.hotkeys.Size())

	rr := do(t, h, http.MethodDelete, "/api/v1/hotkeys", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, s.hotkeys.Size())
	assert.Empty(t, s.hotkeys.Top(10))
}

func TestCommands(t *testing.T) {
	_, _, h := newTestAdmin(t)

	rr := do(t, h, http.MethodGet, "/api/v1/commands", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Commands []string `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Commands, "sismember")
	assert.IsNonDecreasing(t, resp.Commands)
}

func TestHotKeys_NotMountedWithoutTracker(t *testing.T) {
	s := New(":0", store.New(), nil, Options{})
	rr := do(t, s.Handler(), http.MethodGet, "/api/v1/hotkeys", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, h := newTestAdmin(t)
	s.exec.Execute([][]byte{[]byte("ping")})

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `respkv_commands_total{command="ping"} 1`)
}

func TestStartAndShutdown(t *testing.T) {
	s, _, _ := newTestAdmin(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m 3s", formatDuration(2*time.Minute+3*time.Second))
	assert.Equal(t, "1h 0m 0s", formatDuration(time.Hour))
	assert.Equal(t, "1d 1h 0m 0s", formatDuration(25*time.Hour))
}
