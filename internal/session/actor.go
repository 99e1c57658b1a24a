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

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// Actor owns the authoritative state of one session. Every mutation runs as a turn on
// its loop goroutine, so state fields are only ever touched from there.
type Actor struct {
	code  string
	inbox chan actorMsg
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	session      *core.Session
	queue        *Queue
	fsm          *PlaybackFSM
	lastActivity time.Time

	summary atomic.Pointer[core.Summary]

	deps    *Options
	effects *effects
	logger  *slog.Logger
}

type actorMsg struct {
	fn    func(a *Actor) error
	reply chan error
}

func newActor(rec *core.Session, deps *Options) *Actor {
	state := rec.Clone()
	state.Queue = nil
	a := &Actor{
		code:         rec.Code,
		inbox:        make(chan actorMsg, deps.InboxSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		session:      state,
		queue:        NewQueue(rec.Queue),
		fsm:          NewPlaybackFSM(statusOf(rec)),
		lastActivity: deps.Now(),
		deps:         deps,
		logger:       deps.Logger.With("session_code", rec.Code),
	}
	a.effects = newEffects(rec.Code, deps.EffectsSize, deps.WriteTimeout, deps.Logger)
	a.publishSummary()
	go a.run()
	return a
}

func (a *Actor) Code() string { return a.code }

func (a *Actor) run() {
	defer close(a.done)
	defer a.effects.close()
	for {
		select {
		case <-a.quit:
			return
		case m := <-a.inbox:
			m.reply <- a.turn(m.fn)
		}
	}
}

func (a *Actor) turn(fn func(a *Actor) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("actor turn panic recovered", "error", r)
			err = fmt.Errorf("session %s: internal error", a.code)
		}
		a.publishSummary()
	}()
	return fn(a)
}

func (a *Actor) do(ctx context.Context, fn func(a *Actor) error) error {
	msg := actorMsg{fn: fn, reply: make(chan error, 1)}
	select {
	case a.inbox <- msg:
	case <-a.done:
		return a.stoppedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-msg.reply:
		return err
	case <-a.done:
		select {
		case err := <-msg.reply:
			return err
		default:
			return a.stoppedErr()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) stoppedErr() error {
	return fmt.Errorf("%w: code=%s stopped", core.ErrInvalidState, a.code)
}

// Stop ends the loop and waits for it. Queued side effects keep draining.
func (a *Actor) Stop() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}

// Flush waits for queued side effects after Stop.
func (a *Actor) Flush() {
	a.effects.wait()
}

// Summary is a lock-free view refreshed after every turn.
func (a *Actor) Summary() core.Summary {
	return *a.summary.Load()
}

func (a *Actor) Active() bool {
	return a.Summary().IsActive
}

func (a *Actor) publishSummary() {
	s := a.session
	online := 0
	for _, p := range s.Participants {
		if p.IsOnline {
			online++
		}
	}
	var song *string
	if s.Playback.CurrentSong != nil {
		v := *s.Playback.CurrentSong
		song = &v
	}
	a.summary.Store(&core.Summary{
		Code:             s.Code,
		Name:             s.Name,
		HostID:           s.HostID,
		Privacy:          s.Privacy,
		IsActive:         s.IsActive,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		ParticipantCount: len(s.Participants),
		OnlineCount:      online,
		CurrentSong:      song,
	})
}

func (a *Actor) requireActive() error {
	if !a.session.IsActive {
		return fmt.Errorf("%w: code=%s inactive", core.ErrInvalidState, a.code)
	}
	return nil
}

func (a *Actor) snapshotLocked() *core.Snapshot {
	rec := a.session.Clone()
	return &core.Snapshot{
		Code:         rec.Code,
		Name:         rec.Name,
		HostID:       rec.HostID,
		Privacy:      rec.Privacy,
		IsActive:     rec.IsActive,
		Status:       a.fsm.Current().String(),
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		Settings:     rec.Settings,
		Participants: rec.Participants,
		Playback:     rec.Playback,
		Queue:        a.queue.Items(),
		ServerTime:   a.deps.Now(),
	}
}

func (a *Actor) recordLocked() *core.Session {
	rec := a.session.Clone()
	rec.Queue = a.queue.Items()
	rec.UpdatedAt = a.deps.Now()
	return rec
}

// publish is a no-op once the session is inactive.
func (a *Actor) publish(event string, payload any) {
	if !a.session.IsActive || a.deps.Hub == nil {
		return
	}
	a.deps.Hub.Publish(a.code, event, payload)
}

func (a *Actor) publishSync() {
	pb := a.session.Playback
	a.publish(core.EventPlaybackSync, core.PlaybackSyncPayload{
		CurrentSong: pb.CurrentSong,
		Position:    pb.CurrentTime,
		IsPlaying:   pb.IsPlaying,
		LastUpdate:  pb.LastUpdate,
	})
}

func (a *Actor) publishQueue() {
	a.publish(core.EventQueueUpdated, core.QueueUpdatedPayload{Queue: a.queue.Items()})
}

func (a *Actor) persist() {
	if a.deps.Store == nil {
		return
	}
	rec := a.recordLocked()
	store := a.deps.Store
	a.effects.enqueue("persist", func(ctx context.Context) error {
		return store.Update(ctx, rec)
	})
}

func (a *Actor) appendChat(userID, message string, kind core.ChatType) core.ChatEntry {
	entry := core.ChatEntry{
		ID:          uuid.New().String(),
		SessionCode: a.code,
		UserID:      userID,
		Message:     message,
		Type:        kind,
		CreatedAt:   a.deps.Now(),
	}
	if chat := a.deps.Chat; chat != nil {
		a.effects.enqueue("chat", func(ctx context.Context) error {
			return chat.Append(ctx, entry)
		})
	}
	a.publish(core.EventChatMessage, core.ChatMessagePayload{Entry: entry})
	return entry
}

func (a *Actor) deactivateLocked(reason string) {
	if !a.session.IsActive {
		return
	}
	_ = a.fsm.Trigger(eventEnd)
	a.session.IsActive = false
	a.session.Playback.IsPlaying = false
	a.persist()
	a.logger.Info("session deactivated", "reason", reason)
}

func (a *Actor) Snapshot(ctx context.Context) (*core.Snapshot, error) {
	var snap *core.Snapshot
	err := a.do(ctx, func(a *Actor) error {
		snap = a.snapshotLocked()
		return nil
	})
	return snap, err
}

// End deactivates the session on the host's request and tells the group.
func (a *Actor) End(ctx context.Context, userID string) error {
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if a.session.HostID != userID {
			return fmt.Errorf("%w: only the host can end session %s", core.ErrPermissionDenied, a.code)
		}
		a.appendChat(core.SystemUser, "session ended by host", core.ChatSystem)
		snap := a.snapshotLocked()
		snap.IsActive = false
		snap.Status = core.StatusEnded.String()
		a.publish(core.EventSessionState, core.SessionStatePayload{Snapshot: snap})
		a.deactivateLocked("ended by host")
		return nil
	})
}

// Expire reports whether the actor should be evicted, deactivating it first when it is past
// its TTL or nobody has been online or active within grace.
func (a *Actor) Expire(ctx context.Context, now time.Time, grace time.Duration) (bool, error) {
	evict := false
	err := a.do(ctx, func(a *Actor) error {
		if !a.session.IsActive {
			evict = true
			return nil
		}
		reason := ""
		switch {
		case a.session.Expired(now):
			reason = "expired"
		case a.onlineCount() == 0 && now.Sub(a.lastActivity) > grace:
			reason = "idle"
		default:
			return nil
		}
		snap := a.snapshotLocked()
		snap.IsActive = false
		snap.Status = core.StatusEnded.String()
		a.publish(core.EventSessionState, core.SessionStatePayload{Snapshot: snap})
		a.deactivateLocked(reason)
		evict = true
		return nil
	})
	return evict, err
}

func (a *Actor) onlineCount() int {
	n := 0
	for _, p := range a.session.Participants {
		if p.IsOnline {
			n++
		}
	}
	return n
}
