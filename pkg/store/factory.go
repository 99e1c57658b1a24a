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

package store

import (
	"fmt"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// DefaultChatLimit caps the chat log retained per session.
const DefaultChatLimit = 1000

// StoreType identifies the persistence backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

type Config struct {
	Type      StoreType    `yaml:"type"`
	ChatLimit int          `yaml:"chat_limit"`
	Redis     RedisConfig  `yaml:"redis"`
	SQLite    SQLiteConfig `yaml:"sqlite"`
}

// Backend is a store that persists both session records and chat.
type Backend interface {
	core.SessionStore
	core.ChatStore
}

// New opens the configured backend.
func New(cfg Config) (Backend, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(cfg.ChatLimit), nil
	case StoreTypeRedis:
		if cfg.Redis.ChatLimit == 0 {
			cfg.Redis.ChatLimit = cfg.ChatLimit
		}
		return NewRedisStore(cfg.Redis)
	case StoreTypeSQLite:
		if cfg.SQLite.ChatLimit == 0 {
			cfg.SQLite.ChatLimit = cfg.ChatLimit
		}
		return NewSQLiteStore(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
