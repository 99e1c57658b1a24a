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

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/listening-party/internal/hub"
	"github.com/wso2/api-platform/listening-party/internal/session"
	"github.com/wso2/api-platform/listening-party/pkg/auth"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"github.com/wso2/api-platform/listening-party/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	srv      *httptest.Server
	registry *session.Registry
	hub      *hub.Hub
}

func newFixture(t *testing.T, wrap ...func(core.SessionManager) core.SessionManager) *fixture {
	t.Helper()
	logger := testLogger()
	h := hub.New(logger, nil)
	mem := store.NewMemoryStore(0)
	reg, err := session.NewRegistry(session.Options{
		Store:  mem,
		Chat:   mem,
		Hub:    h,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	e := New("ws-test", 0, h, auth.NewIdentifier(auth.Config{}), logger, nil)
	var manager core.SessionManager = reg
	for _, w := range wrap {
		manager = w(manager)
	}
	srv := httptest.NewServer(e.Handler(manager))
	t.Cleanup(func() {
		srv.Close()
		reg.StopAll()
	})
	return &fixture{srv: srv, registry: reg, hub: h}
}

func (f *fixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set(auth.HeaderUserID, user)
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.WriteJSON(core.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, c *websocket.Conn, event string) core.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.SetReadDeadline(deadline)
		var env core.Envelope
		if err := c.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func TestJoinPlayAndDisconnect(t *testing.T) {
	f := newFixture(t)
	snap, err := f.registry.Create(context.Background(), core.CreateParams{HostID: "host", Name: "Late night"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	host := f.dial(t, "host")
	send(t, host, core.EventSessionJoin, core.JoinRequest{Code: strings.ToLower(snap.Code)})
	var state core.SessionStatePayload
	if err := json.Unmarshal(readUntil(t, host, core.EventSessionState).Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Snapshot.Code != snap.Code || state.Snapshot.HostID != "host" {
		t.Fatalf("unexpected snapshot %+v", state.Snapshot)
	}

	guest := f.dial(t, "guest")
	send(t, guest, core.EventSessionJoin, core.JoinRequest{Code: snap.Code})
	readUntil(t, guest, core.EventSessionState)

	var joined core.UserJoinedPayload
	if err := json.Unmarshal(readUntil(t, host, core.EventUserJoined).Data, &joined); err != nil {
		t.Fatalf("decode user:joined: %v", err)
	}
	if joined.UserID != "guest" {
		t.Fatalf("expected guest to join, got %s", joined.UserID)
	}

	send(t, host, core.EventPlaybackPlay, core.PlayRequest{SessionCode: snap.Code, SongID: "song-1", Position: 3})
	for _, c := range []*websocket.Conn{host, guest} {
		var sync core.PlaybackSyncPayload
		if err := json.Unmarshal(readUntil(t, c, core.EventPlaybackSync).Data, &sync); err != nil {
			t.Fatalf("decode sync: %v", err)
		}
		if sync.CurrentSong == nil || *sync.CurrentSong != "song-1" || !sync.IsPlaying || sync.Position != 3 {
			t.Fatalf("unexpected sync %+v", sync)
		}
	}

	send(t, guest, core.EventPlaybackPause, core.PauseRequest{SessionCode: snap.Code})
	var perr core.ErrorPayload
	if err := json.Unmarshal(readUntil(t, guest, core.EventError).Data, &perr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(perr.Message, "permission denied") {
		t.Fatalf("expected permission error, got %q", perr.Message)
	}

	guest.Close()
	var left core.UserLeftPayload
	if err := json.Unmarshal(readUntil(t, host, core.EventUserLeft).Data, &left); err != nil {
		t.Fatalf("decode user:left: %v", err)
	}
	if left.UserID != "guest" {
		t.Fatalf("expected guest to leave, got %s", left.UserID)
	}
}

func TestControlBeforeJoinIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "someone")

	send(t, c, core.EventPlaybackNext, core.NextRequest{SessionCode: "ABC123"})
	readUntil(t, c, core.EventError)

	if err := c.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, c, core.EventError)

	send(t, c, core.EventSessionJoin, core.JoinRequest{Code: "ZZZZZZ"})
	var perr core.ErrorPayload
	if err := json.Unmarshal(readUntil(t, c, core.EventError).Data, &perr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(perr.Message, "not found") {
		t.Fatalf("expected not found, got %q", perr.Message)
	}
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without identity")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

// racingManager makes the host start a song right after a guest's join turn, before the
// join call returns to the connection.
type racingManager struct {
	core.SessionManager
}

func (m racingManager) Session(ctx context.Context, code string) (core.SessionHandle, error) {
	h, err := m.SessionManager.Session(ctx, code)
	if err != nil {
		return nil, err
	}
	return racingHandle{SessionHandle: h}, nil
}

type racingHandle struct {
	core.SessionHandle
}

func (h racingHandle) JoinAndSync(ctx context.Context, userID string, sub core.Subscriber) (*core.Snapshot, error) {
	snap, err := h.SessionHandle.JoinAndSync(ctx, userID, sub)
	if err != nil || userID != "guest" {
		return snap, err
	}
	song := "song-2"
	if err := h.SessionHandle.Play(ctx, snap.HostID, &song, 0); err != nil {
		return nil, err
	}
	return snap, nil
}

func TestJoinSnapshotPrecedesLaterBroadcasts(t *testing.T) {
	f := newFixture(t, func(m core.SessionManager) core.SessionManager { return racingManager{m} })
	snap, err := f.registry.Create(context.Background(), core.CreateParams{HostID: "host", Name: "Ordering"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	guest := f.dial(t, "guest")
	send(t, guest, core.EventSessionJoin, core.JoinRequest{Code: snap.Code})

	var events []string
	var state core.SessionStatePayload
	var sync core.PlaybackSyncPayload
	deadline := time.Now().Add(3 * time.Second)
	for sync.CurrentSong == nil {
		guest.SetReadDeadline(deadline)
		var env core.Envelope
		if err := guest.ReadJSON(&env); err != nil {
			t.Fatalf("read after %v: %v", events, err)
		}
		events = append(events, env.Event)
		switch env.Event {
		case core.EventSessionState:
			if err := json.Unmarshal(env.Data, &state); err != nil {
				t.Fatalf("decode state: %v", err)
			}
		case core.EventPlaybackSync:
			if state.Snapshot == nil {
				t.Fatalf("playback:sync arrived before session:state: %v", events)
			}
			if err := json.Unmarshal(env.Data, &sync); err != nil {
				t.Fatalf("decode sync: %v", err)
			}
		}
	}

	if state.Snapshot.Playback.IsPlaying {
		t.Fatalf("snapshot should predate the play, got %+v", state.Snapshot.Playback)
	}
	if *sync.CurrentSong != "song-2" || !sync.IsPlaying {
		t.Fatalf("unexpected sync %+v", sync)
	}
}

func TestLeaveKeepsUserOnlineWhileAnotherConnectionRemains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap, err := f.registry.Create(ctx, core.CreateParams{HostID: "host", Name: "Two tabs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	host := f.dial(t, "host")
	send(t, host, core.EventSessionJoin, core.JoinRequest{Code: snap.Code})
	readUntil(t, host, core.EventSessionState)

	tabA := f.dial(t, "guest")
	send(t, tabA, core.EventSessionJoin, core.JoinRequest{Code: snap.Code})
	readUntil(t, tabA, core.EventSessionState)
	tabB := f.dial(t, "guest")
	send(t, tabB, core.EventSessionJoin, core.JoinRequest{Code: snap.Code})
	readUntil(t, tabB, core.EventSessionState)

	send(t, tabA, core.EventSessionLeave, struct{}{})
	// Frames on one connection are handled in order, so this error means the leave is done.
	send(t, tabA, core.EventSessionLeave, struct{}{})
	readUntil(t, tabA, core.EventError)
	if n := f.hub.Subscribers(snap.Code); n != 2 {
		t.Fatalf("expected 2 subscribers, have %d", n)
	}

	if online := guestOnline(t, f, snap.Code); !online {
		t.Fatal("guest went offline while tabB is still connected")
	}

	send(t, tabB, core.EventSessionLeave, struct{}{})
	var left core.UserLeftPayload
	if err := json.Unmarshal(readUntil(t, host, core.EventUserLeft).Data, &left); err != nil {
		t.Fatalf("decode user:left: %v", err)
	}
	if left.UserID != "guest" {
		t.Fatalf("expected guest to leave, got %s", left.UserID)
	}
	if guestOnline(t, f, snap.Code) {
		t.Fatal("guest still online after the last connection left")
	}
}

func guestOnline(t *testing.T, f *fixture, code string) bool {
	t.Helper()
	a, err := f.registry.Get(context.Background(), code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, p := range snap.Participants {
		if p.UserID == "guest" {
			return p.IsOnline
		}
	}
	t.Fatal("guest not in roster")
	return false
}
