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
	"sync"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// MemoryStore keeps session records and chat logs in process.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*core.Session
	chat      map[string][]core.ChatEntry
	chatLimit int
	closed    bool
}

func NewMemoryStore(chatLimit int) *MemoryStore {
	if chatLimit <= 0 {
		chatLimit = DefaultChatLimit
	}
	return &MemoryStore{
		sessions:  make(map[string]*core.Session),
		chat:      make(map[string][]core.ChatEntry),
		chatLimit: chatLimit,
	}
}

func (m *MemoryStore) Create(ctx context.Context, session *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	if existing, ok := m.sessions[session.Code]; ok && existing.IsActive && !existing.Expired(time.Now().UTC()) {
		return fmt.Errorf("%w: code=%s", core.ErrCodeCollision, session.Code)
	}
	// A reused code starts with an empty chat log.
	delete(m.chat, session.Code)
	m.sessions[session.Code] = session.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, code string) (*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	s, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	if _, ok := m.sessions[session.Code]; !ok {
		return fmt.Errorf("%w: session %s", core.ErrNotFound, session.Code)
	}
	cp := session.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.sessions[session.Code] = cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	delete(m.sessions, code)
	delete(m.chat, code)
	return nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time) ([]*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	var expired []*core.Session
	for _, s := range m.sessions {
		if s.IsActive && s.Expired(now) {
			expired = append(expired, s.Clone())
		}
	}
	return expired, nil
}

func (m *MemoryStore) Append(ctx context.Context, entry core.ChatEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreClosed
	}
	log := append(m.chat[entry.SessionCode], entry)
	if len(log) > m.chatLimit {
		log = append([]core.ChatEntry(nil), log[len(log)-m.chatLimit:]...)
	}
	m.chat[entry.SessionCode] = log
	return nil
}

func (m *MemoryStore) List(ctx context.Context, code string, limit int) ([]core.ChatEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreClosed
	}
	log := m.chat[code]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]core.ChatEntry{}, log...), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
