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

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const sampleConfig = `
server:
  entrypoints:
    - name: api
      type: rest
      port: 8080
    - name: control
      type: websocket
      port: 8081
session:
  ttl: 2h
  max_participants: 8
  allow_queue_add: true
store:
  type: sqlite
  sqlite:
    path: /tmp/party.db
songs:
  type: static
  ids: ["s1", "s2"]
reaper:
  interval: 10s
  grace: 1m
sinks:
  - name: kafka-main
    type: kafka
    config:
      brokers: "localhost:9092"
      topic: "party-events"
routes:
  - source: "playback:sync"
    target: kafka-main
  - source: "*"
    target: kafka-main
log:
  level: debug
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "JWT_SECRET", "REDIS_ADDR", "STORE_TYPE"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Server.Entrypoints) != 2 {
		t.Fatalf("expected 2 entrypoints, got %d", len(cfg.Server.Entrypoints))
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %v", cfg.Session.TTL)
	}
	defaults := cfg.Session.Defaults()
	if defaults.MaxParticipants != 8 || !defaults.AllowQueueAdd || defaults.AllowGuestControl {
		t.Fatalf("unexpected session defaults %+v", defaults)
	}
	if cfg.Store.Type != store.StoreTypeSQLite || cfg.Store.SQLite.Path != "/tmp/party.db" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if len(cfg.Songs.IDs) != 2 {
		t.Fatalf("expected 2 song ids, got %d", len(cfg.Songs.IDs))
	}
	if cfg.Reaper.Grace != time.Minute {
		t.Fatalf("expected 1m grace, got %v", cfg.Reaper.Grace)
	}
	if cfg.Sinks[0].Config["topic"] != "party-events" {
		t.Fatalf("expected sink topic, got %v", cfg.Sinks[0].Config)
	}
	routes := cfg.RouteList()
	if len(routes) != 2 || routes[1].Source != "*" {
		t.Fatalf("unexpected routes %+v", routes)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected default shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Type != store.StoreTypeMemory {
		t.Fatalf("expected memory store, got %s", cfg.Store.Type)
	}
	if cfg.Session.TTL != 24*time.Hour || cfg.Session.MaxParticipants != 50 {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if len(cfg.Server.Entrypoints) != 2 {
		t.Fatalf("expected default entrypoints, got %+v", cfg.Server.Entrypoints)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := Parse([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected env log level, got %s", cfg.Log.Level)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("expected env jwt secret")
	}
	if cfg.Store.Type != store.StoreTypeRedis || cfg.Store.Redis.Addr != "cache:6380" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PARTY_TEST_VALUE=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PARTY_TEST_VALUE") })

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("PARTY_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("expected from-dotenv, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"unknown entrypoint", "server:\n  entrypoints:\n    - {name: x, type: grpc, port: 1}\n"},
		{"bad port", "server:\n  entrypoints:\n    - {name: x, type: rest, port: 0}\n"},
		{"duplicate entrypoint", "server:\n  entrypoints:\n    - {name: x, type: rest, port: 1}\n    - {name: x, type: sse, port: 2}\n"},
		{"unknown sink type", "sinks:\n  - {name: s, type: pulsar}\n"},
		{"route to unknown sink", "routes:\n  - {source: \"*\", target: nowhere}\n"},
		{"unknown store", "store:\n  type: cassandra\n"},
		{"sqlite catalog without sqlite store", "songs:\n  type: sqlite\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherReloads(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "log:\n  level: info\n")
	w := NewWatcher(path, testLogger())
	w.debounce = 10 * time.Millisecond

	reloaded := make(chan *Config, 4)
	w.OnReload(func(cfg *Config) { reloaded <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "debug" {
			t.Fatalf("expected debug, got %s", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}
}
