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
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventSessionJoin   = "session:join"
	EventSessionLeave  = "session:leave"
	EventPlaybackPlay  = "playback:play"
	EventPlaybackPause = "playback:pause"
	EventPlaybackSeek  = "playback:seek"
	EventPlaybackNext  = "playback:next"
	EventQueueAdd      = "queue:add"
	EventChatMessage   = "chat:message"
	EventChatTyping    = "chat:typing"
	EventReactionAdd   = "reaction:add"
)

// Server to client events. chat:message, chat:typing and reaction:add are relayed
// under the same names.
const (
	EventSessionState = "session:state"
	EventPlaybackSync = "playback:sync"
	EventQueueUpdated = "queue:updated"
	EventUserJoined   = "user:joined"
	EventUserLeft     = "user:left"
	EventError        = "error"
)

// Envelope is the control-channel frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is one broadcast produced by a session actor.
type Event struct {
	ID          string    `json:"id"`
	SessionCode string    `json:"sessionCode"`
	Name        string    `json:"event"`
	Payload     []byte    `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
}

// Frame renders the event as a control-channel envelope.
func (e Event) Frame() ([]byte, error) {
	return json.Marshal(Envelope{Event: e.Name, Data: e.Payload})
}

// Frame renders payload as an envelope for a single connection.
func Frame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type JoinRequest struct {
	Code string `json:"code"`
}

type PlayRequest struct {
	SessionCode string  `json:"sessionCode"`
	SongID      string  `json:"songId,omitempty"`
	Position    float64 `json:"position"`
}

type PauseRequest struct {
	SessionCode string   `json:"sessionCode"`
	Position    *float64 `json:"position,omitempty"`
}

type SeekRequest struct {
	SessionCode string  `json:"sessionCode"`
	Position    float64 `json:"position"`
}

type NextRequest struct {
	SessionCode string `json:"sessionCode"`
}

type QueueAddRequest struct {
	SessionCode string `json:"sessionCode"`
	SongID      string `json:"songId"`
}

type ChatRequest struct {
	SessionCode string `json:"sessionCode"`
	Message     string `json:"message"`
}

type TypingRequest struct {
	SessionCode string `json:"sessionCode"`
	IsTyping    bool   `json:"isTyping"`
}

type ReactionRequest struct {
	SessionCode string `json:"sessionCode"`
	Emoji       string `json:"emoji"`
}

type SessionStatePayload struct {
	Snapshot *Snapshot `json:"snapshot"`
}

type PlaybackSyncPayload struct {
	CurrentSong *string   `json:"currentSong"`
	Position    float64   `json:"position"`
	IsPlaying   bool      `json:"isPlaying"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

type QueueUpdatedPayload struct {
	Queue []string `json:"queue"`
}

type ChatMessagePayload struct {
	Entry ChatEntry `json:"entry"`
}

type UserJoinedPayload struct {
	UserID  string    `json:"userId"`
	Session *Snapshot `json:"session"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
	HostID string `json:"hostId,omitempty"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ReactionPayload struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Record renders the event for brokers: the payload stays raw JSON.
func (e Event) Record() ([]byte, error) {
	return json.Marshal(struct {
		ID          string          `json:"id"`
		SessionCode string          `json:"sessionCode"`
		Event       string          `json:"event"`
		Data        json.RawMessage `json:"data"`
		Timestamp   time.Time       `json:"timestamp"`
	}{e.ID, e.SessionCode, e.Name, e.Payload, e.Timestamp})
}
