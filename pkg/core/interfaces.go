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

package core

import (
	"context"
	"time"
)

type Entrypoint interface {
	Name() string
	Type() string
	Start(ctx context.Context, manager SessionManager) error
	Stop(ctx context.Context) error
}

// Endpoint is an outbound broker that mirrors session events.
type Endpoint interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, evt Event) error
}

type SessionStore interface {
	// Create fails with ErrCodeCollision when an active record already owns the code.
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, code string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, code string) error
	// ListExpired returns active records whose expiresAt is not after now.
	ListExpired(ctx context.Context, now time.Time) ([]*Session, error)
	Close() error
}

type ChatStore interface {
	Append(ctx context.Context, entry ChatEntry) error
	// List returns up to limit most recent entries, oldest first.
	List(ctx context.Context, code string, limit int) ([]ChatEntry, error)
	Close() error
}

type SongLookup interface {
	Lookup(ctx context.Context, id string) (*Song, error)
}

// Publisher delivers one event to a session's broadcast group.
type Publisher interface {
	Publish(code, event string, payload any)
}

// Subscriber is one connection in a broadcast group.
type Subscriber interface {
	ID() string
	UserID() string
	// Deliver enqueues a frame without blocking. False means the frame was dropped.
	Deliver(frame []byte) bool
}

type Broadcaster interface {
	Subscribe(code string, sub Subscriber)
	// Unsubscribe returns how many connections the same user still holds in the session.
	Unsubscribe(code, subID string) int
}

type SessionManager interface {
	Create(ctx context.Context, params CreateParams) (*Snapshot, error)
	Session(ctx context.Context, code string) (SessionHandle, error)
	ListPublic(ctx context.Context, limit int) ([]Summary, error)
	End(ctx context.Context, code, userID string) error
	ChatHistory(ctx context.Context, code string, limit int) ([]ChatEntry, error)
}

type SessionHandle interface {
	Code() string
	Snapshot(ctx context.Context) (*Snapshot, error)
	Join(ctx context.Context, userID string) (*Snapshot, error)
	// JoinAndSync joins and hands sub its session:state frame before any later broadcast.
	JoinAndSync(ctx context.Context, userID string, sub Subscriber) (*Snapshot, error)
	Leave(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
	Play(ctx context.Context, userID string, songID *string, position float64) error
	Pause(ctx context.Context, userID string, position *float64) error
	Seek(ctx context.Context, userID string, position float64) error
	Next(ctx context.Context, userID string) error
	AddToQueue(ctx context.Context, userID, songID string) error
	SendChat(ctx context.Context, userID, message string) (*ChatEntry, error)
	Typing(ctx context.Context, userID string, isTyping bool) error
	React(ctx context.Context, userID, emoji string) error
	UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (*Snapshot, error)
	SetPermissions(ctx context.Context, actorID, userID string, perms Permissions) (*Snapshot, error)
}
