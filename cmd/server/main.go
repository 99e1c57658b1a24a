// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/wso2/api-platform/listening-party/internal/hub"
	"github.com/wso2/api-platform/listening-party/internal/logging"
	"github.com/wso2/api-platform/listening-party/internal/reaper"
	"github.com/wso2/api-platform/listening-party/internal/routing"
	"github.com/wso2/api-platform/listening-party/internal/session"
	"github.com/wso2/api-platform/listening-party/pkg/auth"
	"github.com/wso2/api-platform/listening-party/pkg/config"
	"github.com/wso2/api-platform/listening-party/pkg/plugins"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/rest"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/sse"
	"github.com/wso2/api-platform/listening-party/pkg/plugins/ws"
	"github.com/wso2/api-platform/listening-party/pkg/songs"
	"github.com/wso2/api-platform/listening-party/pkg/store"
	"gorm.io/gorm"
)

func main() {
	level := new(slog.LevelVar)
	logger := logging.New(os.Stdout, "json", level)

	if err := config.LoadEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	level.Set(logging.ParseLevel(cfg.Log.Level))
	logger = logging.New(os.Stdout, cfg.Log.Format, level)
	slog.SetDefault(logger)

	backend, err := store.New(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "type", cfg.Store.Type, "error", err)
		os.Exit(1)
	}

	var db *gorm.DB
	if s, ok := backend.(*store.SQLiteStore); ok {
		db = s.DB()
	}
	catalog, err := songs.New(cfg.Songs, db)
	if err != nil {
		logger.Error("failed to build song catalog", "type", cfg.Songs.Type, "error", err)
		os.Exit(1)
	}

	ident := auth.NewIdentifier(cfg.Auth)
	if !ident.Enabled() {
		logger.Warn("jwt secret not set, trusting the " + auth.HeaderUserID + " header")
	}

	eventLog := logging.NewEventLogger(logger.With("component", "events"))
	registry := plugins.NewRegistry(logger.With("component", "plugins"))
	if err := registry.RegisterSinks(cfg.Sinks); err != nil {
		logger.Error("failed to register sinks", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n := registry.ConnectEndpoints(ctx); n < len(cfg.Sinks) {
		logger.Warn("some sinks failed to connect", "connected", n, "configured", len(cfg.Sinks))
	}

	routeTable := routing.NewTable()
	routeTable.ReplaceAll(cfg.RouteList())
	mirror, err := hub.NewMirror(routeTable, registry.Endpoints(), registry, 0, logger.With("component", "mirror"))
	if err != nil {
		logger.Error("failed to build event mirror", "error", err)
		os.Exit(1)
	}
	go mirror.Run(ctx)

	events := hub.New(logger.With("component", "hub"), mirror)

	sessions, err := session.NewRegistry(session.Options{
		Store:        backend,
		Chat:         backend,
		Songs:        catalog,
		Hub:          events,
		Logger:       logger.With("component", "session"),
		Defaults:     cfg.Session.Defaults(),
		TTL:          cfg.Session.TTL,
		CodeAttempts: cfg.Session.CodeAttempts,
		WriteTimeout: cfg.Session.WriteTimeout,
	})
	if err != nil {
		logger.Error("failed to build session registry", "error", err)
		os.Exit(1)
	}

	sweeper := reaper.New(sessions, backend, cfg.Reaper.Interval, cfg.Reaper.Grace, logger.With("component", "reaper"))
	go sweeper.Start(ctx)

	watcher := config.NewWatcher(configPath, logger.With("component", "config"))
	watcher.OnReload(func(next *config.Config) {
		level.Set(logging.ParseLevel(next.Log.Level))
		routeTable.ReplaceAll(next.RouteList())
		sweeper.SetGrace(next.Reaper.Grace)
	})
	go func() {
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	registerEntrypoints(cfg, registry, events, ident, logger, eventLog)
	registry.StartEntrypoints(ctx, sessions)

	logger.Info("listening party started", "config", configPath, "store", cfg.Store.Type, "sinks", len(cfg.Sinks))

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wait := gfshutdown.GracefulShutdown(context.Background(), timeout, map[string]gfshutdown.Operation{
		// Entrypoints stop before actors so no command races the final flush.
		"sessions": func(ctx context.Context) error {
			err := registry.StopEntrypoints(ctx)
			sweeper.Stop()
			sessions.StopAll()
			return errors.Join(err, backend.Close())
		},
		"sinks": func(ctx context.Context) error {
			cancel()
			return registry.DisconnectEndpoints(ctx)
		},
	})
	if code := <-wait; code != 0 {
		logger.Error("shutdown completed with errors", "exit_code", code)
		os.Exit(code)
	}
	logger.Info("listening party stopped")
}

func registerEntrypoints(
	cfg *config.Config,
	reg *plugins.Registry,
	events *hub.Hub,
	ident *auth.Identifier,
	logger *slog.Logger,
	eventLog *logging.EventLogger,
) {
	for _, e := range cfg.Server.Entrypoints {
		l := logger.With("component", e.Type, "entrypoint", e.Name)
		switch e.Type {
		case "rest":
			reg.RegisterEntrypoint(rest.New(e.Name, e.Port, ident, reg, l))
		case "websocket":
			reg.RegisterEntrypoint(ws.New(e.Name, e.Port, events, ident, l, eventLog))
		case "sse":
			reg.RegisterEntrypoint(sse.New(e.Name, e.Port, events, l, eventLog))
		default:
			logger.Warn("unknown entrypoint type", "name", e.Name, "type", e.Type)
		}
	}
}
