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
	"unicode/utf8"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const (
	maxChatLength  = 2000
	maxEmojiLength = 32
)

// Play starts or resumes playback. A new song is resolved outside the turn, between two
// permission checks, so the actor never waits on the catalog.
func (a *Actor) Play(ctx context.Context, userID string, songID *string, position float64) error {
	if !core.ValidPosition(position) {
		return fmt.Errorf("%w: position %v", core.ErrInvalidInput, position)
	}
	if songID != nil && *songID == "" {
		songID = nil
	}
	if songID != nil {
		if err := a.precheck(ctx, userID, core.CapabilityControl); err != nil {
			return err
		}
		if err := a.lookup(ctx, *songID); err != nil {
			return err
		}
	}
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := Require(a.session, userID, core.CapabilityControl); err != nil {
			return err
		}
		song := a.session.Playback.CurrentSong
		if songID != nil {
			id := *songID
			song = &id
		}
		if song == nil {
			return fmt.Errorf("%w: nothing to play in session %s", core.ErrInvalidState, a.code)
		}
		if err := a.fsm.Trigger(eventPlay); err != nil {
			return err
		}
		now := a.deps.Now()
		pb := &a.session.Playback
		pb.CurrentSong = song
		pb.CurrentTime = position
		pb.IsPlaying = true
		pb.LastUpdate = now
		a.lastActivity = now
		a.publishSync()
		a.persist()
		return nil
	})
}

// Pause freezes playback. A nil position pauses at the reconstructed live position.
func (a *Actor) Pause(ctx context.Context, userID string, position *float64) error {
	if position != nil && !core.ValidPosition(*position) {
		return fmt.Errorf("%w: position %v", core.ErrInvalidInput, *position)
	}
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := Require(a.session, userID, core.CapabilityControl); err != nil {
			return err
		}
		if err := a.fsm.Trigger(eventPause); err != nil {
			return err
		}
		now := a.deps.Now()
		pb := &a.session.Playback
		if position != nil {
			pb.CurrentTime = *position
		} else {
			pb.CurrentTime = pb.PositionAt(now)
		}
		pb.IsPlaying = false
		pb.LastUpdate = now
		a.lastActivity = now
		a.publishSync()
		a.persist()
		return nil
	})
}

// Seek moves the position and is broadcast to every subscriber, the sender included.
func (a *Actor) Seek(ctx context.Context, userID string, position float64) error {
	if !core.ValidPosition(position) {
		return fmt.Errorf("%w: position %v", core.ErrInvalidInput, position)
	}
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := Require(a.session, userID, core.CapabilityControl); err != nil {
			return err
		}
		if err := a.fsm.Trigger(eventSeek); err != nil {
			return err
		}
		now := a.deps.Now()
		a.session.Playback.CurrentTime = position
		a.session.Playback.LastUpdate = now
		a.lastActivity = now
		a.publishSync()
		a.persist()
		return nil
	})
}

// Next advances to the queue head. An empty queue leaves playback untouched.
func (a *Actor) Next(ctx context.Context, userID string) error {
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := Require(a.session, userID, core.CapabilityControl); err != nil {
			return err
		}
		if _, ok := a.queue.PeekNext(); !ok {
			return nil
		}
		if err := a.fsm.Trigger(eventNext); err != nil {
			return err
		}
		head, _ := a.queue.PopNext()
		now := a.deps.Now()
		pb := &a.session.Playback
		pb.CurrentSong = &head
		pb.CurrentTime = 0
		pb.IsPlaying = true
		pb.LastUpdate = now
		a.lastActivity = now
		a.publishSync()
		a.publishQueue()
		a.persist()
		return nil
	})
}

func (a *Actor) AddToQueue(ctx context.Context, userID, songID string) error {
	songID = strings.TrimSpace(songID)
	if songID == "" {
		return fmt.Errorf("%w: empty song id", core.ErrInvalidInput)
	}
	if err := a.precheck(ctx, userID, core.CapabilityQueueAdd); err != nil {
		return err
	}
	if err := a.lookup(ctx, songID); err != nil {
		return err
	}
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		if err := Require(a.session, userID, core.CapabilityQueueAdd); err != nil {
			return err
		}
		a.queue.Add(songID)
		a.lastActivity = a.deps.Now()
		a.publishQueue()
		a.persist()
		return nil
	})
}

func (a *Actor) SendChat(ctx context.Context, userID, message string) (*core.ChatEntry, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxChatLength {
		return nil, fmt.Errorf("%w: chat message must be 1-%d characters", core.ErrInvalidInput, maxChatLength)
	}
	var entry core.ChatEntry
	err := a.do(ctx, func(a *Actor) error {
		if err := a.requireMember(userID); err != nil {
			return err
		}
		entry = a.appendChat(userID, message, core.ChatText)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (a *Actor) Typing(ctx context.Context, userID string, isTyping bool) error {
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireMember(userID); err != nil {
			return err
		}
		a.publish(core.EventChatTyping, core.TypingPayload{UserID: userID, IsTyping: isTyping})
		return nil
	})
}

func (a *Actor) React(ctx context.Context, userID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLength {
		return fmt.Errorf("%w: emoji", core.ErrInvalidInput)
	}
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireMember(userID); err != nil {
			return err
		}
		a.publish(core.EventReactionAdd, core.ReactionPayload{UserID: userID, Emoji: emoji})
		return nil
	})
}

func (a *Actor) requireMember(userID string) error {
	if err := a.requireActive(); err != nil {
		return err
	}
	if findParticipant(a.session, userID) == nil {
		return fmt.Errorf("%w: %s is not in session %s", core.ErrPermissionDenied, userID, a.code)
	}
	return nil
}

func (a *Actor) precheck(ctx context.Context, userID string, capability core.Capability) error {
	return a.do(ctx, func(a *Actor) error {
		if err := a.requireActive(); err != nil {
			return err
		}
		return Require(a.session, userID, capability)
	})
}

func (a *Actor) lookup(ctx context.Context, songID string) error {
	if a.deps.Songs == nil {
		return nil
	}
	if _, err := a.deps.Songs.Lookup(ctx, songID); err != nil {
		return fmt.Errorf("song %s: %w", songID, err)
	}
	return nil
}
