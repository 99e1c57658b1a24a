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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/listening-party/internal/logging"
	"github.com/wso2/api-platform/listening-party/pkg/auth"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const (
	opTimeout         = 5 * time.Second
	disconnectTimeout = 5 * time.Second
)

// Entrypoint serves the bidirectional control channel at /ws.
type Entrypoint struct {
	name     string
	port     int
	upgrader websocket.Upgrader
	manager  core.SessionManager
	hub      core.Broadcaster
	ident    *auth.Identifier
	server   *http.Server
	logger   *slog.Logger
	eventLog *logging.EventLogger
	conns    sync.Map
	cleanup  sync.WaitGroup
}

func New(name string, port int, hub core.Broadcaster, ident *auth.Identifier, logger *slog.Logger, eventLog *logging.EventLogger) *Entrypoint {
	return &Entrypoint{
		name: name,
		port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub:      hub,
		ident:    ident,
		logger:   logger.With("component", "ws", "entrypoint", name),
		eventLog: eventLog,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "websocket" }

// Handler exposes the upgrade handler so it can be mounted on another server.
func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", e.handleConnection)
	return mux
}

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", e.port),
		Handler: e.Handler(manager),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(shutdownCtx)
	}()

	e.logger.Info("websocket entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every client and waits for their disconnects to reach the sessions.
func (e *Entrypoint) Stop(ctx context.Context) error {
	var err error
	if e.server != nil {
		err = e.server.Shutdown(ctx)
	}
	e.conns.Range(func(_, v any) bool {
		c := v.(*conn)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		e.cleanup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (e *Entrypoint) handleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := e.ident.UserFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	wsConn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("ws upgrade failed", "error", err)
		return
	}

	c := newConn(uuid.New().String(), userID, wsConn)
	e.conns.Store(c.id, c)
	e.cleanup.Add(1)
	e.logger.Info("ws client connected", "conn_id", c.id, "user_id", userID)

	go e.writeLoop(c)
	e.readLoop(c)

	c.close()
	wsConn.Close()
	e.conns.Delete(c.id)
	e.dropSession(c)
	e.logger.Info("ws client disconnected", "conn_id", c.id, "user_id", userID)
}

// dropSession unsubscribes c and, when it was the user's last connection, marks the user
// offline without blocking the read loop.
func (e *Entrypoint) dropSession(c *conn) {
	code, h := c.detach()
	if h == nil {
		e.cleanup.Done()
		return
	}
	remaining := e.hub.Unsubscribe(code, c.id)
	if remaining > 0 {
		e.cleanup.Done()
		return
	}
	go func() {
		defer e.cleanup.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("disconnect panic recovered", "session_code", code, "error", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := h.Disconnect(ctx, c.userID); err != nil && !errors.Is(err, core.ErrInvalidState) && !errors.Is(err, core.ErrNotFound) {
			e.logger.Warn("disconnect failed", "session_code", code, "user_id", c.userID, "error", err)
		}
	}()
}

func (e *Entrypoint) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				e.logger.Debug("ws write failed", "conn_id", c.id, "error", err)
				return
			}
			code, _ := c.current()
			e.eventLog.Log(frameEvent(frame), code, c.id, c.userID, "downstream", len(frame))
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (e *Entrypoint) readLoop(c *conn) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("ws read error", "conn_id", c.id, "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			c.sendError(fmt.Errorf("%w: rate limit exceeded, slow down", core.ErrInvalidInput))
			continue
		}
		e.dispatch(c, payload)
	}
}
