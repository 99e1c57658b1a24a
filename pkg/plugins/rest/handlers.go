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
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

type createRequest struct {
	Name     string         `json:"name"`
	Privacy  core.Privacy   `json:"privacy,omitempty"`
	Settings *core.Settings `json:"settings,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type queueRequest struct {
	SongID string `json:"songId"`
}

func (e *Entrypoint) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		e.writeError(w, r, err)
		return
	}
	snap, err := e.manager.Create(r.Context(), core.CreateParams{
		HostID:   userFrom(r),
		Name:     req.Name,
		Privacy:  req.Privacy,
		Settings: req.Settings,
	})
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (e *Entrypoint) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	sessions, err := e.manager.ListPublic(r.Context(), limit)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (e *Entrypoint) handleGet(w http.ResponseWriter, r *http.Request) {
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	snap, err := h.Snapshot(r.Context())
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Entrypoint) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := e.manager.End(r.Context(), mux.Vars(r)["code"], userFrom(r)); err != nil {
		e.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *Entrypoint) handleJoin(w http.ResponseWriter, r *http.Request) {
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	snap, err := h.Join(r.Context(), userFrom(r))
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Entrypoint) handleLeave(w http.ResponseWriter, r *http.Request) {
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	if err := h.Leave(r.Context(), userFrom(r)); err != nil {
		e.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *Entrypoint) handleSettings(w http.ResponseWriter, r *http.Request) {
	var patch core.SettingsPatch
	if err := decodeBody(w, r, &patch); err != nil {
		e.writeError(w, r, err)
		return
	}
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	snap, err := h.UpdateSettings(r.Context(), userFrom(r), patch)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Entrypoint) handlePermissions(w http.ResponseWriter, r *http.Request) {
	var perms core.Permissions
	if err := decodeBody(w, r, &perms); err != nil {
		e.writeError(w, r, err)
		return
	}
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	snap, err := h.SetPermissions(r.Context(), userFrom(r), mux.Vars(r)["userId"], perms)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *Entrypoint) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	entries, err := e.manager.ChatHistory(r.Context(), mux.Vars(r)["code"], limit)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func (e *Entrypoint) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		e.writeError(w, r, err)
		return
	}
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	entry, err := h.SendChat(r.Context(), userFrom(r), req.Message)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (e *Entrypoint) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeBody(w, r, &req); err != nil {
		e.writeError(w, r, err)
		return
	}
	h, ok := e.session(w, r)
	if !ok {
		return
	}
	if err := h.AddToQueue(r.Context(), userFrom(r), req.SongID); err != nil {
		e.writeError(w, r, err)
		return
	}
	snap, err := h.Snapshot(r.Context())
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": snap.Queue})
}
