package app

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/respkv/respkv/internal/admin"
	"github.com/respkv/respkv/internal/client"
	"github.com/respkv/respkv/internal/config"
	"github.com/respkv/respkv/internal/hotkeys"
	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/server"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Admin.Addr = "127.0.0.1:0"
	cfg.LogLevel = "error"
	return cfg
}

func TestModule_Validates(t *testing.T) {
	require.NoError(t, fx.ValidateApp(Module(testConfig())))
}

func TestModule_ServesRESPAndAdmin(t *testing.T) {
	var (
		srv *server.Server
		adm *admin.Server
	)
	app := fxtest.New(t, Module(testConfig()), fx.Populate(&srv, &adm))
	app.RequireStart()
	defer app.RequireStop()

	c, err := client.Dial(srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()

	v, err := c.Do("set", "k", "v")
	require.NoError(t, err)
	assert.Equal(t, protocol.OK(), v)

	require.NotNil(t, adm.Addr())
	resp, err := http.Get("http://" + adm.Addr().String() + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"keys":1`)
	assert.Contains(t, string(body), `"clients":1`)
}

func TestModule_TracksHotKeys(t *testing.T) {
	var (
		srv     *server.Server
		tracker *hotkeys.Tracker
	)
	app := fxtest.New(t, Module(testConfig()), fx.Populate(&srv, &tracker))
	app.RequireStart()
	defer app.RequireStop()

	c, err := client.Dial(srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Do("get", "popular")
		require.NoError(t, err)
	}
	assert.Equal(t, []hotkeys.Entry{{Key: "popular", Count: 3}}, tracker.Top(1))
}

func TestModule_AdminDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = false

	var (
		srv *server.Server
		adm *admin.Server
	)
	app := fxtest.New(t, Module(cfg), fx.Populate(&srv, &adm))
	app.RequireStart()
	defer app.RequireStop()

	assert.NotNil(t, srv.Addr())
	assert.Nil(t, adm.Addr())
}

func TestModule_StartFailsOnBusyPort(t *testing.T) {
	var srv *server.Server
	first := fxtest.New(t, Module(testConfig()), fx.Populate(&srv))
	first.RequireStart()
	defer first.RequireStop()

	cfg := testConfig()
	cfg.Addr = srv.Addr().String()
	second := fx.New(Module(cfg), fx.NopLogger)
	err := second.Start(t.Context())
	assert.Error(t, err)
}
