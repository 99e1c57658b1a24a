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
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"github.com/wso2/api-platform/listening-party/pkg/store"
)

type published struct {
	code    string
	event   string
	payload any
}

type recordingHub struct {
	mu     sync.Mutex
	events []published
}

func (h *recordingHub) Publish(code, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, published{code: code, event: event, payload: payload})
}

func (h *recordingHub) named(event string) []published {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []published
	for _, e := range h.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequentialCodes hands out AAAA00, AAAA01, ... so tests can predict codes.
func sequentialCodes() CodeGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("AAAA%02d", n.Add(1)-1)
	}
}

type fixture struct {
	reg   *Registry
	hub   *recordingHub
	store *store.MemoryStore
	clock *clock
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		hub:   &recordingHub{},
		store: store.NewMemoryStore(0),
		clock: newClock(),
	}
	opts := Options{
		Store:    f.store,
		Chat:     f.store,
		Hub:      f.hub,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Defaults: core.Settings{MaxParticipants: 10},
		TTL:      time.Hour,
		Codes:    sequentialCodes(),
		Now:      f.clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	reg, err := NewRegistry(opts)
	require.NoError(t, err)
	f.reg = reg
	t.Cleanup(reg.StopAll)
	return f
}

func (f *fixture) create(t *testing.T, host string) *Actor {
	t.Helper()
	snap, err := f.reg.Create(context.Background(), core.CreateParams{HostID: host, Name: "friday mix"})
	require.NoError(t, err)
	a, err := f.reg.Get(context.Background(), snap.Code)
	require.NoError(t, err)
	return a
}

func songRef(id string) *string { return &id }
