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

package reaper

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/listening-party/internal/session"
	"github.com/wso2/api-platform/listening-party/pkg/core"
	"github.com/wso2/api-platform/listening-party/pkg/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setup(t *testing.T) (*session.Registry, *store.MemoryStore, *clock, *Reaper) {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore(0)
	reg, err := session.NewRegistry(session.Options{
		Store:  st,
		Chat:   st,
		Logger: testLogger(),
		TTL:    time.Hour,
		Now:    c.Now,
	})
	require.NoError(t, err)
	t.Cleanup(reg.StopAll)

	r := New(reg, st, time.Hour, time.Minute, testLogger())
	r.now = c.Now
	return reg, st, c, r
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	reg, st, c, r := setup(t)
	ctx := context.Background()

	snap, err := reg.Create(ctx, core.CreateParams{HostID: "alice", Name: "party"})
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep(ctx))
	assert.Equal(t, 1, reg.ActiveCount())

	c.Advance(2 * time.Hour)
	assert.Equal(t, 1, r.Sweep(ctx))
	assert.Empty(t, reg.Actors())

	rec, err := st.Get(ctx, snap.Code)
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	reg, _, c, r := setup(t)
	ctx := context.Background()

	snap, err := reg.Create(ctx, core.CreateParams{HostID: "alice", Name: "party"})
	require.NoError(t, err)
	a, err := reg.Get(ctx, snap.Code)
	require.NoError(t, err)
	_, err = a.Join(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, a.Disconnect(ctx, "bob"))

	// Host still online keeps the session alive past grace.
	c.Advance(10 * time.Minute)
	assert.Equal(t, 0, r.Sweep(ctx))

	reg.StopAll()
	_, err = reg.Get(ctx, snap.Code)
	require.NoError(t, err)

	c.Advance(30 * time.Second)
	assert.Equal(t, 0, r.Sweep(ctx))
	c.Advance(time.Minute)
	assert.Equal(t, 1, r.Sweep(ctx))
}

func TestSweepEvictsInactiveActors(t *testing.T) {
	reg, _, _, r := setup(t)
	ctx := context.Background()

	snap, err := reg.Create(ctx, core.CreateParams{HostID: "alice", Name: "party"})
	require.NoError(t, err)
	a, err := reg.Get(ctx, snap.Code)
	require.NoError(t, err)
	require.NoError(t, a.Leave(ctx, "alice"))

	assert.Equal(t, 1, r.Sweep(ctx))
	assert.Equal(t, 0, reg.ActiveCount())
}

func TestSweepDeactivatesOrphanedRecords(t *testing.T) {
	_, st, c, r := setup(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, &core.Session{
		Code:      "ORPH01",
		Name:      "left behind",
		HostID:    "alice",
		IsActive:  true,
		ExpiresAt: c.Now().Add(time.Minute),
		Participants: []core.Participant{
			{UserID: "alice", IsOnline: true},
		},
	}))

	r.Sweep(ctx)
	rec, err := st.Get(ctx, "ORPH01")
	require.NoError(t, err)
	assert.True(t, rec.IsActive)

	c.Advance(2 * time.Minute)
	r.Sweep(ctx)
	rec, err = st.Get(ctx, "ORPH01")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
	assert.False(t, rec.Participants[0].IsOnline)
}

func TestSetGrace(t *testing.T) {
	_, _, _, r := setup(t)
	assert.Equal(t, time.Minute, r.Grace())
	r.SetGrace(5 * time.Second)
	assert.Equal(t, 5*time.Second, r.Grace())
	r.SetGrace(0)
	assert.Equal(t, DefaultGrace, r.Grace())
}

func TestStartStops(t *testing.T) {
	_, _, _, r := setup(t)
	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()
	r.Stop()
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
