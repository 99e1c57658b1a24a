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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Retention time.Duration `yaml:"retention"`
	ChatLimit int           `yaml:"chat_limit"`
}

// RedisStore keeps session records as JSON strings and chat logs as sorted sets
// scored by creation time.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
	chatLimit int
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisStore(client, cfg), nil
}

func newRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "party:"
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = time.Hour
	}
	chatLimit := cfg.ChatLimit
	if chatLimit <= 0 {
		chatLimit = DefaultChatLimit
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
		chatLimit: chatLimit,
	}
}

func (r *RedisStore) sessionKey(code string) string {
	return r.keyPrefix + "session:" + code
}

func (r *RedisStore) chatKey(code string) string {
	return r.keyPrefix + "chat:" + code
}

// ttl keeps a record until its expiry plus the retention window.
func (r *RedisStore) ttl(s *core.Session) time.Duration {
	ttl := time.Until(s.ExpiresAt) + r.retention
	if ttl <= 0 {
		ttl = r.retention
	}
	return ttl
}

func (r *RedisStore) Create(ctx context.Context, session *core.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.sessionKey(session.Code)
	ok, err := r.client.SetNX(ctx, key, data, r.ttl(session)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if ok {
		// Chat can outlive its session key, so a fresh code drops any leftover log.
		if err := r.client.Del(ctx, r.chatKey(session.Code)).Err(); err != nil {
			return fmt.Errorf("reset chat: %w", err)
		}
		return nil
	}

	existing, err := r.Get(ctx, session.Code)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if existing != nil && existing.IsActive && !existing.Expired(time.Now().UTC()) {
		return fmt.Errorf("%w: code=%s", core.ErrCodeCollision, session.Code)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, r.ttl(session))
		pipe.Del(ctx, r.chatKey(session.Code))
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, code string) (*core.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
		}
		return nil, err
	}
	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", code, err)
	}
	return &session, nil
}

func (r *RedisStore) Update(ctx context.Context, session *core.Session) error {
	cp := session.Clone()
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	err = r.client.SetArgs(ctx, r.sessionKey(session.Code), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: session %s", core.ErrNotFound, session.Code)
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.sessionKey(code), r.chatKey(code)).Err()
}

func (r *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]*core.Session, error) {
	var expired []*core.Session
	var cursor uint64
	pattern := r.keyPrefix + "session:*"

	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				continue // expired between SCAN and GET
			}
			var session core.Session
			if err := json.Unmarshal(data, &session); err != nil {
				continue
			}
			if session.IsActive && session.Expired(now) {
				expired = append(expired, &session)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return expired, nil
}

func (r *RedisStore) Append(ctx context.Context, entry core.ChatEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal chat entry: %w", err)
	}
	key := r.chatKey(entry.SessionCode)

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-r.chatLimit-1))
	pipe.Expire(ctx, key, 24*time.Hour+r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append chat entry: %w", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, code string, limit int) ([]core.ChatEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	results, err := r.client.ZRange(ctx, r.chatKey(code), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
	}
	entries := make([]core.ChatEntry, 0, len(results))
	for _, data := range results {
		var entry core.ChatEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
