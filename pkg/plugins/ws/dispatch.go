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
	"errors"
	"fmt"
	"strings"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

func frameEvent(frame []byte) string {
	var env struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(frame, &env)
	return env.Event
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", core.ErrInvalidInput, err)
	}
	return nil
}

func (e *Entrypoint) dispatch(c *conn, payload []byte) {
	var env core.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		c.sendError(fmt.Errorf("%w: malformed frame", core.ErrInvalidInput))
		return
	}
	code, _ := c.current()
	e.eventLog.Log(env.Event, code, c.id, c.userID, "upstream", len(payload))

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := e.handle(ctx, c, env); err != nil {
		e.logger.Debug("control event rejected", "conn_id", c.id, "user_id", c.userID, "event", env.Event, "error", err)
		c.sendError(err)
	}
}

func (e *Entrypoint) handle(ctx context.Context, c *conn, env core.Envelope) error {
	switch env.Event {
	case core.EventSessionJoin:
		var req core.JoinRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return e.join(ctx, c, req.Code)

	case core.EventSessionLeave:
		code, h := c.detach()
		if h == nil {
			return fmt.Errorf("%w: not in a session", core.ErrInvalidState)
		}
		// Another connection of the same user keeps them online.
		if e.hub.Unsubscribe(code, c.id) > 0 {
			return nil
		}
		return h.Leave(ctx, c.userID)

	case core.EventPlaybackPlay:
		var req core.PlayRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		var song *string
		if req.SongID != "" {
			song = &req.SongID
		}
		return h.Play(ctx, c.userID, song, req.Position)

	case core.EventPlaybackPause:
		var req core.PauseRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.Pause(ctx, c.userID, req.Position)

	case core.EventPlaybackSeek:
		var req core.SeekRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.Seek(ctx, c.userID, req.Position)

	case core.EventPlaybackNext:
		var req core.NextRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.Next(ctx, c.userID)

	case core.EventQueueAdd:
		var req core.QueueAddRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.AddToQueue(ctx, c.userID, req.SongID)

	case core.EventChatMessage:
		var req core.ChatRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		_, err = h.SendChat(ctx, c.userID, req.Message)
		return err

	case core.EventChatTyping:
		var req core.TypingRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.Typing(ctx, c.userID, req.IsTyping)

	case core.EventReactionAdd:
		var req core.ReactionRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		h, err := e.attached(c, req.SessionCode)
		if err != nil {
			return err
		}
		return h.React(ctx, c.userID, req.Emoji)

	default:
		return fmt.Errorf("%w: unknown event %q", core.ErrInvalidInput, env.Event)
	}
}

// join moves c into the session named by code. A connection already in another
// session leaves it first.
func (e *Entrypoint) join(ctx context.Context, c *conn, code string) error {
	if e.manager == nil {
		return fmt.Errorf("%w: entrypoint not started", core.ErrInvalidState)
	}
	h, err := e.manager.Session(ctx, code)
	if err != nil {
		return err
	}

	if prevCode, prev := c.current(); prev != nil {
		if prevCode == h.Code() {
			_, err := h.JoinAndSync(ctx, c.userID, c)
			return err
		}
		c.detach()
		if e.hub.Unsubscribe(prevCode, c.id) == 0 {
			if err := prev.Leave(ctx, c.userID); err != nil && !errors.Is(err, core.ErrInvalidState) {
				e.logger.Warn("leave previous session failed", "session_code", prevCode, "user_id", c.userID, "error", err)
			}
		}
	}

	e.hub.Subscribe(h.Code(), c)
	if _, err := h.JoinAndSync(ctx, c.userID, c); err != nil {
		e.hub.Unsubscribe(h.Code(), c.id)
		return err
	}
	c.attach(h.Code(), h)
	return nil
}

// attached returns the handle of the session c is in. A non-empty code must match it.
func (e *Entrypoint) attached(c *conn, code string) (core.SessionHandle, error) {
	current, h := c.current()
	if h == nil {
		return nil, fmt.Errorf("%w: join a session first", core.ErrInvalidState)
	}
	if code != "" && !strings.EqualFold(strings.TrimSpace(code), current) {
		return nil, fmt.Errorf("%w: connection is in session %s, not %s", core.ErrPermissionDenied, current, code)
	}
	return h, nil
}
