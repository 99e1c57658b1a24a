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

package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// Forwarder receives every published event after local delivery.
type Forwarder interface {
	Forward(evt core.Event)
}

type group struct {
	mu     sync.RWMutex
	subs   map[string]core.Subscriber
	closed bool
}

// Hub fans session events out to the connections subscribed to each session.
// Delivery is best-effort: a subscriber with a full buffer misses the frame.
type Hub struct {
	groups  sync.Map
	forward Forwarder
	logger  *slog.Logger
	now     func() time.Time
}

func New(logger *slog.Logger, forward Forwarder) *Hub {
	return &Hub{
		forward: forward,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Subscribe(code string, sub core.Subscriber) {
	for {
		v, _ := h.groups.LoadOrStore(code, &group{subs: make(map[string]core.Subscriber)})
		g := v.(*group)
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			continue
		}
		g.subs[sub.ID()] = sub
		n := len(g.subs)
		g.mu.Unlock()
		h.logger.Debug("subscribed", "session_code", code, "conn_id", sub.ID(), "user_id", sub.UserID(), "subscribers", n)
		return
	}
}

func (h *Hub) Unsubscribe(code, subID string) int {
	v, ok := h.groups.Load(code)
	if !ok {
		return 0
	}
	g := v.(*group)
	g.mu.Lock()
	defer g.mu.Unlock()

	sub, ok := g.subs[subID]
	if !ok {
		return 0
	}
	delete(g.subs, subID)

	remaining := 0
	for _, s := range g.subs {
		if s.UserID() != "" && s.UserID() == sub.UserID() {
			remaining++
		}
	}
	if len(g.subs) == 0 {
		g.closed = true
		h.groups.CompareAndDelete(code, g)
	}
	h.logger.Debug("unsubscribed", "session_code", code, "conn_id", subID, "user_remaining", remaining)
	return remaining
}

func (h *Hub) Publish(code, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event failed", "session_code", code, "event", event, "error", err)
		return
	}
	evt := core.Event{
		ID:          uuid.New().String(),
		SessionCode: code,
		Name:        event,
		Payload:     data,
		Timestamp:   h.now(),
	}
	frame, err := evt.Frame()
	if err != nil {
		h.logger.Error("frame event failed", "session_code", code, "event", event, "error", err)
		return
	}

	if v, ok := h.groups.Load(code); ok {
		g := v.(*group)
		g.mu.RLock()
		for id, sub := range g.subs {
			if !sub.Deliver(frame) {
				h.logger.Warn("subscriber buffer full, dropping event",
					"session_code", code, "conn_id", id, "event", event)
			}
		}
		g.mu.RUnlock()
	}

	if h.forward != nil {
		h.forward.Forward(evt)
	}
}

// Subscribers returns the connection count of a session's group.
func (h *Hub) Subscribers(code string) int {
	v, ok := h.groups.Load(code)
	if !ok {
		return 0
	}
	g := v.(*group)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subs)
}
