// Package app wires respkv's components together with fx.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/respkv/respkv/internal/admin"
	"github.com/respkv/respkv/internal/command"
	"github.com/respkv/respkv/internal/config"
	"github.com/respkv/respkv/internal/hotkeys"
	"github.com/respkv/respkv/internal/logging"
	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/server"
	"github.com/respkv/respkv/internal/store"
)

const serviceName = "respkv"

// Module provides every respkv component for cfg and registers the
// listeners on the fx lifecycle.
func Module(cfg *config.Config) fx.Option {
	return fx.Options(
		logging.Module(serviceName, cfg.LogLevel),
		fx.Supply(cfg),
		fx.Provide(
			func() *store.Store { return store.New() },
			metrics.New,
			NewHotKeys,
			NewDispatcher,
			NewServer,
			NewAdmin,
		),
		fx.Invoke(RegisterHooks),
	)
}

// NewHotKeys builds the key access tracker from cfg.
func NewHotKeys(cfg *config.Config) *hotkeys.Tracker {
	return hotkeys.New(cfg.HotKeys.MaxKeys, cfg.HotKeys.DecayWindow)
}

// NewDispatcher builds the command dispatcher with metrics and hot key
// tracking enabled.
func NewDispatcher(st *store.Store, m *metrics.Metrics, tracker *hotkeys.Tracker, logger *zap.Logger) (*command.Dispatcher, error) {
	return command.New(st, m, logger, command.WithHotKeys(tracker))
}

// NewServer builds the RESP server from cfg.
func NewServer(cfg *config.Config, d *command.Dispatcher, m *metrics.Metrics, logger *zap.Logger) *server.Server {
	return server.New(cfg.Addr, d, server.Config{
		MaxClients:  cfg.MaxClients,
		IdleTimeout: cfg.IdleTimeout,
	}, logger, m)
}

// NewAdmin builds the admin HTTP server from cfg.
func NewAdmin(cfg *config.Config, st *store.Store, d *command.Dispatcher, srv *server.Server, tracker *hotkeys.Tracker, m *metrics.Metrics, logger *zap.Logger) *admin.Server {
	return admin.New(cfg.Admin.Addr, st, d, admin.Options{
		Clients: srv,
		HotKeys: tracker,
		Metrics: m.Handler(),
		Logger:  logger,
	})
}

// RegisterHooks binds the listeners on start and closes them on stop.
// Binding happens synchronously so a busy port fails startup.
func RegisterHooks(lc fx.Lifecycle, cfg *config.Config, srv *server.Server, adm *admin.Server, tracker *hotkeys.Tracker, logger *zap.Logger) {
	decayCtx, stopDecay := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go tracker.Run(decayCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopDecay()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := srv.Listen(); err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(); err != nil {
					logger.Error("resp server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping respkv server")
			return srv.Close()
		},
	})

	if !cfg.Admin.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := adm.Listen(); err != nil {
				return err
			}
			go func() {
				if err := adm.Serve(); err != nil {
					logger.Error("admin server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return adm.Shutdown(ctx)
		},
	})
}
