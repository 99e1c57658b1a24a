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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/wso2/api-platform/listening-party/pkg/auth"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"github.com/wso2/api-platform/listening-party/pkg/songs"
	"github.com/wso2/api-platform/listening-party/pkg/store"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/listening-party/config.yaml"

type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Session SessionConfig    `yaml:"session"`
	Store   store.Config     `yaml:"store"`
	Songs   songs.Config     `yaml:"songs"`
	Auth    auth.Config      `yaml:"auth"`
	Reaper  ReaperConfig     `yaml:"reaper"`
	Sinks   []EndpointConfig `yaml:"sinks"`
	Routes  []RouteConfig    `yaml:"routes"`
	Log     LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Entrypoints     []EntrypointConfig `yaml:"entrypoints"`
	ShutdownTimeout time.Duration      `yaml:"shutdown_timeout"`
}

type EntrypointConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Port int    `yaml:"port"`
}

type SessionConfig struct {
	TTL               time.Duration `yaml:"ttl"`
	MaxParticipants   int           `yaml:"max_participants"`
	AllowGuestControl bool          `yaml:"allow_guest_control"`
	AllowQueueAdd     bool          `yaml:"allow_queue_add"`
	CodeAttempts      int           `yaml:"code_attempts"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// Defaults returns the settings applied to sessions created without explicit ones.
func (s SessionConfig) Defaults() core.Settings {
	return core.Settings{
		AllowGuestControl: s.AllowGuestControl,
		AllowQueueAdd:     s.AllowQueueAdd,
		MaxParticipants:   s.MaxParticipants,
	}
}

type ReaperConfig struct {
	Interval time.Duration `yaml:"interval"`
	Grace    time.Duration `yaml:"grace"`
}

// EndpointConfig describes an outbound event sink.
type EndpointConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type RouteConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnv loads .env style files into the process environment. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// Path returns CONFIG_PATH or the default location.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = store.StoreType(v)
	}
}

func (c *Config) applyDefaults() {
	if len(c.Server.Entrypoints) == 0 {
		c.Server.Entrypoints = []EntrypointConfig{
			{Name: "rest", Type: "rest", Port: 8080},
			{Name: "ws", Type: "websocket", Port: 8081},
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.MaxParticipants <= 0 {
		c.Session.MaxParticipants = 50
	}
	if c.Session.CodeAttempts <= 0 {
		c.Session.CodeAttempts = 16
	}
	if c.Session.WriteTimeout <= 0 {
		c.Session.WriteTimeout = 5 * time.Second
	}
	if c.Store.Type == "" {
		c.Store.Type = store.StoreTypeMemory
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
	if c.Reaper.Interval <= 0 {
		c.Reaper.Interval = 30 * time.Second
	}
	if c.Reaper.Grace <= 0 {
		c.Reaper.Grace = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	names := make(map[string]bool)
	for _, e := range c.Server.Entrypoints {
		switch e.Type {
		case "rest", "websocket", "sse":
		default:
			return fmt.Errorf("entrypoint %s: unknown type %q", e.Name, e.Type)
		}
		if e.Port <= 0 || e.Port > 65535 {
			return fmt.Errorf("entrypoint %s: invalid port %d", e.Name, e.Port)
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate entrypoint name %q", e.Name)
		}
		names[e.Name] = true
	}

	sinks := make(map[string]bool)
	for _, s := range c.Sinks {
		if s.Name == "" {
			return fmt.Errorf("sink of type %s has no name", s.Type)
		}
		switch s.Type {
		case "kafka", "mqtt5", "rabbitmq", "jms", "solace":
		default:
			return fmt.Errorf("sink %s: unknown type %q", s.Name, s.Type)
		}
		if sinks[s.Name] {
			return fmt.Errorf("duplicate sink name %q", s.Name)
		}
		sinks[s.Name] = true
	}
	for _, r := range c.Routes {
		if r.Source == "" || r.Target == "" {
			return fmt.Errorf("route %q -> %q: source and target are required", r.Source, r.Target)
		}
		if !sinks[r.Target] {
			return fmt.Errorf("route %s -> %s: unknown sink", r.Source, r.Target)
		}
	}

	switch c.Store.Type {
	case store.StoreTypeMemory, store.StoreTypeRedis, store.StoreTypeSQLite:
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Songs.Type == "sqlite" && c.Store.Type != store.StoreTypeSQLite {
		return fmt.Errorf("sqlite song catalog requires the sqlite store")
	}
	return nil
}

func (rc RouteConfig) ToRoute() *core.Route {
	return &core.Route{Source: rc.Source, Target: rc.Target}
}

// RouteList converts the configured routes for the routing table.
func (c *Config) RouteList() []*core.Route {
	routes := make([]*core.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		routes = append(routes, rc.ToRoute())
	}
	return routes
}
