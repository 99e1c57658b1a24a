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
	"math"
	"time"
)

type Privacy string

const (
	PrivacyPublic      Privacy = "public"
	PrivacyPrivate     Privacy = "private"
	PrivacyFriendsOnly Privacy = "friends-only"
)

func (p Privacy) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyPrivate, PrivacyFriendsOnly:
		return true
	}
	return false
}

type Capability string

const (
	CapabilityControl  Capability = "control"
	CapabilityQueueAdd Capability = "queue-add"
)

type PlaybackStatus int

const (
	StatusIdle PlaybackStatus = iota
	StatusPlaying
	StatusPaused
	StatusEnded
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

type ChatType string

const (
	ChatText   ChatType = "text"
	ChatSystem ChatType = "system"
)

// SystemUser is the author recorded on system chat entries.
const SystemUser = "system"

type Settings struct {
	AllowGuestControl bool `json:"allowGuestControl" yaml:"allow_guest_control"`
	AllowQueueAdd     bool `json:"allowQueueAdd" yaml:"allow_queue_add"`
	MaxParticipants   int  `json:"maxParticipants" yaml:"max_participants"`
}

// SettingsPatch carries a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	AllowGuestControl *bool `json:"allowGuestControl,omitempty"`
	AllowQueueAdd     *bool `json:"allowQueueAdd,omitempty"`
	MaxParticipants   *int  `json:"maxParticipants,omitempty"`
}

func (p SettingsPatch) Apply(s Settings) Settings {
	if p.AllowGuestControl != nil {
		s.AllowGuestControl = *p.AllowGuestControl
	}
	if p.AllowQueueAdd != nil {
		s.AllowQueueAdd = *p.AllowQueueAdd
	}
	if p.MaxParticipants != nil {
		s.MaxParticipants = *p.MaxParticipants
	}
	return s
}

type Permissions struct {
	CanControl    bool `json:"canControl"`
	CanAddToQueue bool `json:"canAddToQueue"`
}

// DefaultPermissions derives a guest's flags from the session settings.
func DefaultPermissions(s Settings) Permissions {
	return Permissions{
		CanControl:    s.AllowGuestControl,
		CanAddToQueue: s.AllowQueueAdd,
	}
}

type Participant struct {
	UserID      string      `json:"userId"`
	JoinedAt    time.Time   `json:"joinedAt"`
	IsOnline    bool        `json:"isOnline"`
	Permissions Permissions `json:"permissions"`
}

type PlaybackState struct {
	CurrentSong *string   `json:"currentSong"`
	CurrentTime float64   `json:"currentTime"`
	IsPlaying   bool      `json:"isPlaying"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// PositionAt reconstructs the live position. currentTime is only exact at lastUpdate.
func (p PlaybackState) PositionAt(now time.Time) float64 {
	if !p.IsPlaying || p.LastUpdate.IsZero() {
		return p.CurrentTime
	}
	elapsed := now.Sub(p.LastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return p.CurrentTime + elapsed
}

// ValidPosition reports whether a playback position can be applied.
func ValidPosition(pos float64) bool {
	return pos >= 0 && !math.IsNaN(pos) && !math.IsInf(pos, 0)
}

// Session is the persisted record of a listening party.
type Session struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	HostID       string        `json:"hostId"`
	Privacy      Privacy       `json:"privacy"`
	IsActive     bool          `json:"isActive"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Settings     Settings      `json:"settings"`
	Participants []Participant `json:"participants"`
	Playback     PlaybackState `json:"playback"`
	Queue        []string      `json:"queue"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy safe to hand outside the owning actor.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = append([]Participant(nil), s.Participants...)
	cp.Queue = append([]string(nil), s.Queue...)
	if s.Playback.CurrentSong != nil {
		song := *s.Playback.CurrentSong
		cp.Playback.CurrentSong = &song
	}
	return &cp
}

// Snapshot is the full state a (re)joining client needs to resynchronize.
type Snapshot struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	HostID       string        `json:"hostId"`
	Privacy      Privacy       `json:"privacy"`
	IsActive     bool          `json:"isActive"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Settings     Settings      `json:"settings"`
	Participants []Participant `json:"participants"`
	Playback     PlaybackState `json:"playback"`
	Queue        []string      `json:"queue"`
	ServerTime   time.Time     `json:"serverTime"`
}

// Summary is the discovery view of a session.
type Summary struct {
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	HostID           string    `json:"hostId"`
	Privacy          Privacy   `json:"privacy"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ParticipantCount int       `json:"participantCount"`
	OnlineCount      int       `json:"onlineCount"`
	CurrentSong      *string   `json:"currentSong"`
}

type ChatEntry struct {
	ID          string    `json:"id" gorm:"primarykey;size:36"`
	SessionCode string    `json:"sessionCode" gorm:"size:6;index"`
	UserID      string    `json:"userId" gorm:"size:128"`
	Message     string    `json:"message" gorm:"size:2000"`
	Type        ChatType  `json:"type" gorm:"size:16"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
}

type Song struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// CreateParams are the inputs of a new session.
type CreateParams struct {
	HostID   string
	Name     string
	Privacy  Privacy
	Settings *Settings
}

// Route mirrors events named Source to the endpoint Target. Source "*" matches every event.
type Route struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}
