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
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLite(t *testing.T, chatLimit int) *SQLiteStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would otherwise get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	s, err := NewSQLiteStoreWithDB(db, chatLimit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedis(t *testing.T, chatLimit int) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedisStore(RedisConfig{
		Addr:      addr,
		KeyPrefix: fmt.Sprintf("test-%d:", time.Now().UnixNano()),
		ChatLimit: chatLimit,
	})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T, chatLimit int) map[string]Backend {
	return map[string]Backend{
		"memory": NewMemoryStore(chatLimit),
		"sqlite": newSQLite(t, chatLimit),
	}
}

func sampleSession(code string) *core.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	song := "song-1"
	return &core.Session{
		Code:      code,
		Name:      "Friday mix",
		HostID:    "host",
		Privacy:   core.PrivacyPublic,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		UpdatedAt: now,
		Settings:  core.Settings{AllowQueueAdd: true, MaxParticipants: 10},
		Participants: []core.Participant{{
			UserID:      "host",
			JoinedAt:    now,
			IsOnline:    true,
			Permissions: core.Permissions{CanControl: true, CanAddToQueue: true},
		}},
		Playback: core.PlaybackState{CurrentSong: &song, CurrentTime: 12.5, LastUpdate: now},
		Queue:    []string{"song-2", "song-3"},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleSession("ABC123")
			require.NoError(t, s.Create(ctx, rec))

			got, err := s.Get(ctx, "ABC123")
			require.NoError(t, err)
			assert.Equal(t, rec.Name, got.Name)
			assert.Equal(t, rec.HostID, got.HostID)
			assert.Equal(t, rec.Queue, got.Queue)
			assert.Equal(t, rec.Settings, got.Settings)
			require.Len(t, got.Participants, 1)
			assert.Equal(t, "host", got.Participants[0].UserID)
			require.NotNil(t, got.Playback.CurrentSong)
			assert.Equal(t, "song-1", *got.Playback.CurrentSong)

			got.Queue = append(got.Queue, "song-4")
			got.HostID = "guest"
			require.NoError(t, s.Update(ctx, got))

			again, err := s.Get(ctx, "ABC123")
			require.NoError(t, err)
			assert.Equal(t, "guest", again.HostID)
			assert.Equal(t, []string{"song-2", "song-3", "song-4"}, again.Queue)

			require.NoError(t, s.Delete(ctx, "ABC123"))
			_, err = s.Get(ctx, "ABC123")
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestCreateCollidesOnlyWithLiveSession(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleSession("ZZZ999")
			require.NoError(t, s.Create(ctx, rec))
			assert.ErrorIs(t, s.Create(ctx, sampleSession("ZZZ999")), core.ErrCodeCollision)

			rec.IsActive = false
			require.NoError(t, s.Update(ctx, rec))

			fresh := sampleSession("ZZZ999")
			fresh.Name = "reused"
			require.NoError(t, s.Create(ctx, fresh))
			got, err := s.Get(ctx, "ZZZ999")
			require.NoError(t, err)
			assert.Equal(t, "reused", got.Name)
			assert.True(t, got.IsActive)
		})
	}
}

func TestReusedCodeStartsWithEmptyChat(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			assertReusedCodeDropsChat(t, s, "REU001")
		})
	}
}

func assertReusedCodeDropsChat(t *testing.T, s Backend, code string) {
	t.Helper()
	ctx := context.Background()
	rec := sampleSession(code)
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, s.Append(ctx, core.ChatEntry{
		ID:          "old-" + code,
		SessionCode: code,
		UserID:      "host",
		Message:     "from the previous party",
		Type:        core.ChatText,
		CreatedAt:   time.Now().UTC(),
	}))
	rec.IsActive = false
	require.NoError(t, s.Update(ctx, rec))

	require.NoError(t, s.Create(ctx, sampleSession(code)))
	entries, err := s.List(ctx, code, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateMissingSession(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(context.Background(), sampleSession("NOPE00"))
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestListExpired(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			live := sampleSession("LIVE01")
			old := sampleSession("OLD001")
			old.ExpiresAt = time.Now().UTC().Add(-time.Minute)
			ended := sampleSession("END001")
			ended.IsActive = false
			ended.ExpiresAt = time.Now().UTC().Add(-time.Minute)
			for _, rec := range []*core.Session{live, old, ended} {
				require.NoError(t, s.Create(ctx, rec))
			}

			expired, err := s.ListExpired(ctx, time.Now().UTC())
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "OLD001", expired[0].Code)
		})
	}
}

func TestChatIsCappedAndOrdered(t *testing.T) {
	for name, s := range backends(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, core.ChatEntry{
					ID:          fmt.Sprintf("m%d", i),
					SessionCode: "CHAT01",
					UserID:      "u1",
					Message:     fmt.Sprintf("hello %d", i),
					Type:        core.ChatText,
					CreatedAt:   base.Add(time.Duration(i) * time.Second),
				}))
			}

			all, err := s.List(ctx, "CHAT01", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"m2", "m3", "m4"}, []string{all[0].ID, all[1].ID, all[2].ID})

			last, err := s.List(ctx, "CHAT01", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "m3", last[0].ID)
			assert.Equal(t, "m4", last[1].ID)

			empty, err := s.List(ctx, "OTHER1", 10)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRedisStore(t *testing.T) {
	s := newRedis(t, 2)
	ctx := context.Background()

	rec := sampleSession("RDS001")
	require.NoError(t, s.Create(ctx, rec))
	assert.ErrorIs(t, s.Create(ctx, sampleSession("RDS001")), core.ErrCodeCollision)

	got, err := s.Get(ctx, "RDS001")
	require.NoError(t, err)
	assert.Equal(t, rec.Queue, got.Queue)

	assert.ErrorIs(t, s.Update(ctx, sampleSession("RDS404")), core.ErrNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, core.ChatEntry{
			ID:          fmt.Sprintf("r%d", i),
			SessionCode: "RDS001",
			Message:     "hi",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}
	entries, err := s.List(ctx, "RDS001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r2", entries[1].ID)

	require.NoError(t, s.Delete(ctx, "RDS001"))
	_, err = s.Get(ctx, "RDS001")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assertReusedCodeDropsChat(t, s, "RDS002")
}

func TestClosedMemoryStore(t *testing.T) {
	s := NewMemoryStore(0)
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "ABC123")
	assert.ErrorIs(t, err, core.ErrStoreClosed)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Config{Type: "cassandra"})
	assert.Error(t, err)

	b, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, b)
}
