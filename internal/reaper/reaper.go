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
	"sync"
	"sync/atomic"
	"time"

	"github.com/wso2/api-platform/listening-party/internal/session"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultGrace    = 5 * time.Minute
)

type Sessions interface {
	Actors() []*session.Actor
	Evict(code string)
}

// Reaper periodically deactivates sessions past their TTL or left idle with nobody
// online, and evicts their actors. Sweeps are safe to overlap with leave-driven
// deactivation and with each other.
type Reaper struct {
	sessions Sessions
	store    core.SessionStore
	interval time.Duration
	grace    atomic.Int64
	logger   *slog.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func New(sessions Sessions, store core.SessionStore, interval, grace time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reaper{
		sessions: sessions,
		store:    store,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
	}
	r.SetGrace(grace)
	return r
}

// SetGrace changes the idle window used by later sweeps.
func (r *Reaper) SetGrace(grace time.Duration) {
	if grace <= 0 {
		grace = DefaultGrace
	}
	r.grace.Store(int64(grace))
}

func (r *Reaper) Grace() time.Duration {
	return time.Duration(r.grace.Load())
}

func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "grace", r.Grace())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping")
			return
		case <-r.stopChan:
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Sweep runs one pass and returns how many actors were evicted.
func (r *Reaper) Sweep(ctx context.Context) int {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reaper panic recovered", "error", rec)
		}
	}()

	now := r.now()
	grace := r.Grace()
	evicted := 0
	live := make(map[string]bool)

	for _, a := range r.sessions.Actors() {
		if ctx.Err() != nil {
			return evicted
		}
		live[a.Code()] = true
		evict, err := a.Expire(ctx, now, grace)
		if err != nil {
			// Already stopped by another path; eviction is still safe.
			r.logger.Debug("expire check failed", "session_code", a.Code(), "error", err)
			evict = true
		}
		if evict {
			r.sessions.Evict(a.Code())
			evicted++
		}
	}

	if r.store != nil {
		r.sweepStore(ctx, now, live)
	}
	if evicted > 0 {
		r.logger.Info("reaper sweep", "evicted", evicted)
	}
	return evicted
}

// sweepStore deactivates expired records that have no live actor, such as sessions
// orphaned by a restart.
func (r *Reaper) sweepStore(ctx context.Context, now time.Time, live map[string]bool) {
	expired, err := r.store.ListExpired(ctx, now)
	if err != nil {
		r.logger.Warn("list expired sessions failed", "error", err)
		return
	}
	for _, rec := range expired {
		if live[rec.Code] || !rec.IsActive {
			continue
		}
		rec.IsActive = false
		rec.Playback.IsPlaying = false
		for i := range rec.Participants {
			rec.Participants[i].IsOnline = false
		}
		if err := r.store.Update(ctx, rec); err != nil {
			r.logger.Warn("deactivate stored session failed", "session_code", rec.Code, "error", err)
			continue
		}
		r.logger.Info("stored session expired", "session_code", rec.Code, "expires_at", rec.ExpiresAt.Format(time.RFC3339))
	}
}
