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
	"strings"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

func (a *Actor) Join(ctx context.Context, userID string) (*core.Snapshot, error) {
	return a.join(ctx, userID, nil)
}

// JoinAndSync delivers the joiner's snapshot to sub inside the join turn. sub must already be
// subscribed, so it sees the snapshot after its own user:joined and before any later event.
func (a *Actor) JoinAndSync(ctx context.Context, userID string, sub core.Subscriber) (*core.Snapshot, error) {
	return a.join(ctx, userID, sub)
}

func (a *Actor) join(ctx context.Context, userID string, sub core.Subscriber) (*core.Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	}
	var snap *core.Snapshot
	err := a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		now := a.deps.Now()
		a.lastActivity = now

		if p := findParticipant(a.session, userID); p != nil {
			wasOnline := p.IsOnline
			p.IsOnline = true
			snap = a.snapshotLocked()
			if !wasOnline {
				a.publish(core.EventUserJoined, core.UserJoinedPayload{UserID: userID, Session: snap})
				a.logger.Info("participant rejoined", "user_id", userID)
			}
			a.sync(sub, snap)
			return nil
		}

		max := a.session.Settings.MaxParticipants
		if max > 0 && len(a.session.Participants) >= max {
			return fmt.Errorf("%w: code=%s max=%d", core.ErrCapacityExceeded, a.code, max)
		}

		perms := core.DefaultPermissions(a.session.Settings)
		if userID == a.session.HostID {
			perms = core.Permissions{CanControl: true, CanAddToQueue: true}
		}
		a.session.Participants = append(a.session.Participants, core.Participant{
			UserID:      userID,
			JoinedAt:    now,
			IsOnline:    true,
			Permissions: perms,
		})
		a.appendChat(core.SystemUser, userID+" joined", core.ChatSystem)
		snap = a.snapshotLocked()
		a.publish(core.EventUserJoined, core.UserJoinedPayload{UserID: userID, Session: snap})
		a.persist()
		a.sync(sub, snap)
		a.logger.Info("participant joined", "user_id", userID, "participants", len(a.session.Participants))
		return nil
	})
	return snap, err
}

func (a *Actor) sync(sub core.Subscriber, snap *core.Snapshot) {
	if sub == nil {
		return
	}
	frame, err := core.Frame(core.EventSessionState, core.SessionStatePayload{Snapshot: snap})
	if err != nil {
		a.logger.Error("frame snapshot failed", "conn_id", sub.ID(), "error", err)
		return
	}
	if !sub.Deliver(frame) {
		a.logger.Warn("snapshot dropped, subscriber buffer full", "conn_id", sub.ID())
	}
}

func (a *Actor) Leave(ctx context.Context, userID string) error {
	return a.do(ctx, func(a *Actor) error {
		return a.leaveLocked(userID, "left")
	})
}

// Disconnect is the transport-level counterpart of Leave.
func (a *Actor) Disconnect(ctx context.Context, userID string) error {
	return a.do(ctx, func(a *Actor) error {
		return a.leaveLocked(userID, "disconnected")
	})
}

func (a *Actor) leaveLocked(userID, reason string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	p := findParticipant(a.session, userID)
	if p == nil {
		return fmt.Errorf("%w: participant %s in session %s", core.ErrNotFound, userID, a.code)
	}
	p.IsOnline = false
	a.lastActivity = a.deps.Now()
	a.appendChat(core.SystemUser, userID+" left", core.ChatSystem)

	if a.onlineCount() == 0 {
		a.deactivateLocked("last participant left")
		return nil
	}

	// The host may already be offline, e.g. after a rehydration.
	if host := findParticipant(a.session, a.session.HostID); host == nil || !host.IsOnline {
		next := a.firstOnline()
		a.logger.Info("host transferred", "from", a.session.HostID, "to", next.UserID)
		a.session.HostID = next.UserID
	}

	a.publish(core.EventUserLeft, core.UserLeftPayload{UserID: userID, HostID: a.session.HostID})
	a.persist()
	a.logger.Info("participant offline", "user_id", userID, "reason", reason)
	return nil
}

// firstOnline walks the roster in join order.
func (a *Actor) firstOnline() *core.Participant {
	for i := range a.session.Participants {
		p := &a.session.Participants[i]
		if p.IsOnline {
			return p
		}
	}
	return nil
}

// UpdateSettings applies a host-only patch and re-derives guest permissions from it.
func (a *Actor) UpdateSettings(ctx context.Context, userID string, patch core.SettingsPatch) (*core.Snapshot, error) {
	var snap *core.Snapshot
	err := a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if a.session.HostID != userID {
			return fmt.Errorf("%w: only the host can change settings", core.ErrPermissionDenied)
		}
		next := patch.Apply(a.session.Settings)
		if next.MaxParticipants < 1 {
			return fmt.Errorf("%w: maxParticipants must be positive", core.ErrInvalidInput)
		}
		a.session.Settings = next
		perms := core.DefaultPermissions(next)
		for i := range a.session.Participants {
			if a.session.Participants[i].UserID != a.session.HostID {
				a.session.Participants[i].Permissions = perms
			}
		}
		a.lastActivity = a.deps.Now()
		snap = a.snapshotLocked()
		a.publish(core.EventSessionState, core.SessionStatePayload{Snapshot: snap})
		a.persist()
		return nil
	})
	return snap, err
}

func (a *Actor) SetPermissions(ctx context.Context, actorID, userID string, perms core.Permissions) (*core.Snapshot, error) {
	var snap *core.Snapshot
	err := a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if a.session.HostID != actorID {
			return fmt.Errorf("%w: only the host can change permissions", core.ErrPermissionDenied)
		}
		p := findParticipant(a.session, userID)
		if p == nil {
			return fmt.Errorf("%w: participant %s in session %s", core.ErrNotFound, userID, a.code)
		}
		p.Permissions = perms
		snap = a.snapshotLocked()
		a.publish(core.EventSessionState, core.SessionStatePayload{Snapshot: snap})
		a.persist()
		return nil
	})
	return snap, err
}
