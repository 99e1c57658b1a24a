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
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	messagesPerSecond = 10
	burstSize         = 20
)

// conn is one websocket client. It is a hub subscriber for at most one session at a time.
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	limiter *rate.Limiter

	mu          sync.Mutex
	sessionCode string
	handle      core.SessionHandle
}

func newConn(id, userID string, ws *websocket.Conn) *conn {
	return &conn{
		id:      id,
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(messagesPerSecond), burstSize),
	}
}

func (c *conn) ID() string     { return c.id }
func (c *conn) UserID() string { return c.userID }

func (c *conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) current() (string, core.SessionHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionCode, c.handle
}

func (c *conn) attach(code string, h core.SessionHandle) {
	c.mu.Lock()
	c.sessionCode, c.handle = code, h
	c.mu.Unlock()
}

// detach clears the attached session and returns what it was.
func (c *conn) detach() (string, core.SessionHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, h := c.sessionCode, c.handle
	c.sessionCode, c.handle = "", nil
	return code, h
}

func (c *conn) sendEvent(event string, payload any) bool {
	frame, err := core.Frame(event, payload)
	if err != nil {
		return false
	}
	return c.Deliver(frame)
}

func (c *conn) sendError(err error) {
	c.sendEvent(core.EventError, core.ErrorPayload{Message: err.Error()})
}
