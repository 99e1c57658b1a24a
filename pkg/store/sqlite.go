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
	"errors"
	"fmt"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SQLiteConfig struct {
	Path      string `yaml:"path"`
	ChatLimit int    `yaml:"chat_limit"`
}

// sessionRow is the table layout of a session record. Nested state is kept as JSON columns.
type sessionRow struct {
	Code         string             `gorm:"primarykey;size:6"`
	Name         string             `gorm:"size:100"`
	HostID       string             `gorm:"size:128"`
	Privacy      string             `gorm:"size:16"`
	IsActive     bool               `gorm:"index"`
	ExpiresAt    time.Time          `gorm:"index"`
	Settings     core.Settings      `gorm:"serializer:json"`
	Participants []core.Participant `gorm:"serializer:json"`
	Playback     core.PlaybackState `gorm:"serializer:json"`
	Queue        []string           `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func rowFromSession(s *core.Session) *sessionRow {
	return &sessionRow{
		Code:         s.Code,
		Name:         s.Name,
		HostID:       s.HostID,
		Privacy:      string(s.Privacy),
		IsActive:     s.IsActive,
		CreatedAt:    s.CreatedAt.UTC(),
		ExpiresAt:    s.ExpiresAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
		Settings:     s.Settings,
		Participants: s.Participants,
		Playback:     s.Playback,
		Queue:        s.Queue,
	}
}

func (r *sessionRow) session() *core.Session {
	return &core.Session{
		Code:         r.Code,
		Name:         r.Name,
		HostID:       r.HostID,
		Privacy:      core.Privacy(r.Privacy),
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		Settings:     r.Settings,
		Participants: r.Participants,
		Playback:     r.Playback,
		Queue:        r.Queue,
	}
}

// SQLiteStore persists sessions and chat through gorm.
type SQLiteStore struct {
	db        *gorm.DB
	chatLimit int
}

func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		path = "listening-party.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLiteStoreWithDB(db, cfg.ChatLimit)
}

// NewSQLiteStoreWithDB migrates the schema on an already opened database.
func NewSQLiteStoreWithDB(db *gorm.DB, chatLimit int) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&sessionRow{}, &core.ChatEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if chatLimit <= 0 {
		chatLimit = DefaultChatLimit
	}
	return &SQLiteStore{db: db, chatLimit: chatLimit}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, session *core.Session) error {
	row := rowFromSession(session)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sessionRow
		err := tx.First(&existing, "code = ?", row.Code).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to find session: %w", err)
		}
		if existing.IsActive && existing.session().ExpiresAt.After(time.Now().UTC()) {
			return fmt.Errorf("%w: code=%s", core.ErrCodeCollision, row.Code)
		}
		if err := tx.Where("session_code = ?", row.Code).Delete(&core.ChatEntry{}).Error; err != nil {
			return fmt.Errorf("failed to clear chat: %w", err)
		}
		if err := tx.Save(row).Error; err != nil {
			return fmt.Errorf("failed to replace session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (*core.Session, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).First(&row, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return row.session(), nil
}

func (s *SQLiteStore) Update(ctx context.Context, session *core.Session) error {
	row := rowFromSession(session)
	row.UpdatedAt = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&sessionRow{}).Where("code = ?", row.Code).Select("*").Updates(row)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: session %s", core.ErrNotFound, row.Code)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_code = ?", code).Delete(&core.ChatEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		if err := tx.Delete(&sessionRow{}, "code = ?", code).Error; err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time) ([]*core.Session, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []*core.Session
	for i := range rows {
		sess := rows[i].session()
		if sess.Expired(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry core.ChatEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append chat entry: %w", err)
		}
		keep := tx.Model(&core.ChatEntry{}).
			Select("id").
			Where("session_code = ?", entry.SessionCode).
			Order("created_at DESC").
			Limit(s.chatLimit)
		err := tx.Where("session_code = ? AND id NOT IN (?)", entry.SessionCode, keep).
			Delete(&core.ChatEntry{}).Error
		if err != nil {
			return fmt.Errorf("failed to trim chat: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) List(ctx context.Context, code string, limit int) ([]core.ChatEntry, error) {
	q := s.db.WithContext(ctx).Where("session_code = ?", code).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []core.ChatEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list chat: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// DB exposes the connection so a song catalog can share the file.
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
