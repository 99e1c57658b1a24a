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

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/wso2/api-platform/listening-party/pkg/auth"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const maxBodyBytes = 64 * 1024

type ctxKey struct{}

// HealthReporter reports the connectivity of each event sink.
type HealthReporter interface {
	EndpointHealth() map[string]bool
}

// Entrypoint serves the session REST API under /api/v1 and a liveness check at /healthz.
type Entrypoint struct {
	name    string
	port    int
	manager core.SessionManager
	ident   *auth.Identifier
	health  HealthReporter
	server  *http.Server
	logger  *slog.Logger
}

func New(name string, port int, ident *auth.Identifier, health HealthReporter, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		name:   name,
		port:   port,
		ident:  ident,
		health: health,
		logger: logger.With("component", "rest", "entrypoint", name),
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "rest" }

func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	r := mux.NewRouter()
	r.HandleFunc("/healthz", e.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(e.authenticate)
	api.HandleFunc("/sessions", e.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/sessions", e.handleList).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{code}", e.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{code}", e.handleEnd).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{code}/join", e.handleJoin).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}/leave", e.handleLeave).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}/settings", e.handleSettings).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{code}/participants/{userId}/permissions", e.handlePermissions).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{code}/chat", e.handleChatHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{code}/chat", e.handleChatSend).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}/queue", e.handleQueueAdd).Methods(http.MethodPost)
	return r
}

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	e.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", e.port),
		Handler:           e.Handler(manager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("rest entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

func (e *Entrypoint) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := e.ident.UserFromRequest(r)
		if err != nil {
			e.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func userFrom(r *http.Request) string {
	user, _ := r.Context().Value(ctxKey{}).(string)
	return user
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrCapacityExceeded), errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func (e *Entrypoint) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		e.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", core.ErrInvalidInput, err)
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit %q", core.ErrInvalidInput, raw)
	}
	return n, nil
}

func (e *Entrypoint) session(w http.ResponseWriter, r *http.Request) (core.SessionHandle, bool) {
	h, err := e.manager.Session(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		e.writeError(w, r, err)
		return nil, false
	}
	return h, true
}

func (e *Entrypoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	sinks := map[string]bool{}
	status := "ok"
	if e.health != nil {
		sinks = e.health.EndpointHealth()
		for _, ok := range sinks {
			if !ok {
				status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "sinks": sinks})
}
