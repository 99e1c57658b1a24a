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

package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/wso2/api-platform/listening-party/internal/logging"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const (
	streamBuffer      = 64
	keepAliveInterval = 15 * time.Second
)

// Entrypoint streams a session's broadcast group read-only. Subscribers are anonymous and
// never count as participants.
type Entrypoint struct {
	name     string
	port     int
	manager  core.SessionManager
	hub      core.Broadcaster
	server   *http.Server
	logger   *slog.Logger
	eventLog *logging.EventLogger
	streams  sync.Map
}

func New(name string, port int, hub core.Broadcaster, logger *slog.Logger, eventLog *logging.EventLogger) *Entrypoint {
	return &Entrypoint{
		name:     name,
		port:     port,
		hub:      hub,
		logger:   logger.With("component", "sse", "entrypoint", name),
		eventLog: eventLog,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "sse" }

func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	r := mux.NewRouter()
	r.HandleFunc("/events/{code}", e.handleSSE).Methods(http.MethodGet)
	return r
}

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	e.server = &http.Server{Addr: fmt.Sprintf(":%d", e.port), Handler: e.Handler(manager)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(shutdownCtx)
	}()

	e.logger.Info("sse entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	e.streams.Range(func(_, val any) bool {
		val.(*stream).close()
		return true
	})
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

type stream struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *stream) ID() string     { return s.id }
func (s *stream) UserID() string { return "" }

func (s *stream) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

func (s *stream) close() {
	s.once.Do(func() { close(s.done) })
}

func (e *Entrypoint) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	h, err := e.manager.Session(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		if core.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s := &stream{
		id:     uuid.New().String(),
		frames: make(chan []byte, streamBuffer),
		done:   make(chan struct{}),
	}
	code := h.Code()
	e.hub.Subscribe(code, s)
	e.streams.Store(s.id, s)
	defer func() {
		s.close()
		e.streams.Delete(s.id)
		e.hub.Unsubscribe(code, s.id)
		e.logger.Info("sse client disconnected", "conn_id", s.id, "session_code", code)
	}()

	snap, err := h.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	e.logger.Info("sse client connected", "conn_id", s.id, "session_code", code)

	data, _ := json.Marshal(core.SessionStatePayload{Snapshot: snap})
	writeEvent(w, core.EventSessionState, data)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case frame := <-s.frames:
			var env core.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				e.logger.Error("decode frame failed", "conn_id", s.id, "error", err)
				continue
			}
			writeEvent(w, env.Event, env.Data)
			flusher.Flush()
			e.eventLog.Log(env.Event, code, s.id, "", "downstream", len(env.Data))
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
