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
	"fmt"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

type playbackEvent string

const (
	eventPlay  playbackEvent = "play"
	eventPause playbackEvent = "pause"
	eventSeek  playbackEvent = "seek"
	eventNext  playbackEvent = "next"
	eventEnd   playbackEvent = "end"
)

var playbackTransitions = map[core.PlaybackStatus]map[playbackEvent]core.PlaybackStatus{
	core.StatusIdle: {
		eventPlay:  core.StatusPlaying,
		eventPause: core.StatusIdle,
		eventSeek:  core.StatusIdle,
		eventNext:  core.StatusPlaying,
		eventEnd:   core.StatusEnded,
	},
	core.StatusPlaying: {
		eventPlay:  core.StatusPlaying,
		eventPause: core.StatusPaused,
		eventSeek:  core.StatusPlaying,
		eventNext:  core.StatusPlaying,
		eventEnd:   core.StatusEnded,
	},
	core.StatusPaused: {
		eventPlay:  core.StatusPlaying,
		eventPause: core.StatusPaused,
		eventSeek:  core.StatusPaused,
		eventNext:  core.StatusPlaying,
		eventEnd:   core.StatusEnded,
	},
	core.StatusEnded: {},
}

// PlaybackFSM tracks the transport state of one session.
type PlaybackFSM struct {
	current core.PlaybackStatus
}

func NewPlaybackFSM(initial core.PlaybackStatus) *PlaybackFSM {
	return &PlaybackFSM{current: initial}
}

// statusOf derives the machine state from a stored record.
func statusOf(s *core.Session) core.PlaybackStatus {
	switch {
	case !s.IsActive:
		return core.StatusEnded
	case s.Playback.IsPlaying:
		return core.StatusPlaying
	case s.Playback.CurrentSong == nil:
		return core.StatusIdle
	default:
		return core.StatusPaused
	}
}

func (f *PlaybackFSM) Current() core.PlaybackStatus {
	return f.current
}

func (f *PlaybackFSM) Can(event playbackEvent) bool {
	_, ok := playbackTransitions[f.current][event]
	return ok
}

func (f *PlaybackFSM) Trigger(event playbackEvent) error {
	next, ok := playbackTransitions[f.current][event]
	if !ok {
		return fmt.Errorf("%w: %s --(%s)--> ?", core.ErrInvalidState, f.current, event)
	}
	f.current = next
	return nil
}
