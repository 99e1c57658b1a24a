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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL             = 24 * time.Hour
	defaultCodeAttempts    = 16
	defaultMaxParticipants = 50
	defaultListLimit       = 20
	maxListLimit           = 100
	maxNameLength          = 100
)

type Options struct {
	Store        core.SessionStore
	Chat         core.ChatStore
	Songs        core.SongLookup
	Hub          core.Publisher
	Logger       *slog.Logger
	Defaults     core.Settings
	TTL          time.Duration
	CodeAttempts int
	InboxSize    int
	EffectsSize  int
	WriteTimeout time.Duration
	Codes        CodeGenerator
	Now          func() time.Time
}

func (o *Options) applyDefaults() error {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = defaultCodeAttempts
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	if o.Defaults.MaxParticipants <= 0 {
		o.Defaults.MaxParticipants = defaultMaxParticipants
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Codes == nil {
		gen, err := NewCodeGenerator()
		if err != nil {
			return err
		}
		o.Codes = gen
	}
	return nil
}

// Registry maps session codes to their actors.
type Registry struct {
	actors sync.Map
	loads  singleflight.Group
	opts   Options
	logger *slog.Logger
}

func NewRegistry(opts Options) (*Registry, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	return &Registry{
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Registry) Create(ctx context.Context, params core.CreateParams) (*core.Snapshot, error) {
	rec, err := r.newRecord(params)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= r.opts.CodeAttempts; attempt++ {
		code := r.opts.Codes()
		if !IsValidCode(code) {
			continue
		}
		if existing, ok := r.load(code); ok {
			if existing.Active() {
				r.logger.Debug("session code collision", "session_code", code, "attempt", attempt)
				continue
			}
			r.evict(existing)
		}

		rec.Code = code
		actor := newActor(rec, &r.opts)
		if _, loaded := r.actors.LoadOrStore(code, actor); loaded {
			actor.Stop()
			continue
		}

		if r.opts.Store != nil {
			if err := r.opts.Store.Create(ctx, rec.Clone()); err != nil {
				r.actors.CompareAndDelete(code, actor)
				actor.Stop()
				if errors.Is(err, core.ErrCodeCollision) {
					r.logger.Debug("session code taken in store", "session_code", code, "attempt", attempt)
					continue
				}
				return nil, fmt.Errorf("persist session: %w", err)
			}
		}

		r.logger.Info("session created",
			"session_code", code,
			"host_id", rec.HostID,
			"privacy", rec.Privacy,
			"max_participants", rec.Settings.MaxParticipants,
		)
		return actor.Snapshot(ctx)
	}
	return nil, fmt.Errorf("no free session code after %d attempts: %w", r.opts.CodeAttempts, core.ErrCodeCollision)
}

func (r *Registry) newRecord(params core.CreateParams) (*core.Session, error) {
	hostID := strings.TrimSpace(params.HostID)
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id required", core.ErrInvalidInput)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", core.ErrInvalidInput, maxNameLength)
	}
	privacy := params.Privacy
	if privacy == "" {
		privacy = core.PrivacyPublic
	}
	if !privacy.Valid() {
		return nil, fmt.Errorf("%w: privacy %q", core.ErrInvalidInput, privacy)
	}
	settings := r.opts.Defaults
	if params.Settings != nil {
		settings = *params.Settings
		if settings.MaxParticipants <= 0 {
			settings.MaxParticipants = r.opts.Defaults.MaxParticipants
		}
	}

	now := r.opts.Now()
	return &core.Session{
		Name:     name,
		HostID:   hostID,
		Privacy:  privacy,
		IsActive: true,
		Settings: settings,
		Participants: []core.Participant{{
			UserID:      hostID,
			JoinedAt:    now,
			IsOnline:    true,
			Permissions: core.Permissions{CanControl: true, CanAddToQueue: true},
		}},
		CreatedAt: now,
		ExpiresAt: now.Add(r.opts.TTL),
		UpdatedAt: now,
	}, nil
}

func (r *Registry) load(code string) (*Actor, bool) {
	v, ok := r.actors.Load(code)
	if !ok {
		return nil, false
	}
	return v.(*Actor), true
}

// Get returns the live actor for code, rehydrating it from the store when needed.
// Inactive or expired actors are evicted on access.
func (r *Registry) Get(ctx context.Context, code string) (*Actor, error) {
	code = normalizeCode(code)
	if !IsValidCode(code) {
		return nil, fmt.Errorf("%w: session code %q", core.ErrNotFound, code)
	}
	now := r.opts.Now()

	if a, ok := r.load(code); ok {
		s := a.Summary()
		if s.IsActive && now.Before(s.ExpiresAt) {
			return a, nil
		}
		r.evict(a)
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
	}

	if r.opts.Store == nil {
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
	}

	v, err, _ := r.loads.Do(code, func() (any, error) {
		if a, ok := r.load(code); ok {
			return a, nil
		}
		rec, err := r.opts.Store.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if !rec.IsActive || rec.Expired(now) {
			return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
		}
		for i := range rec.Participants {
			rec.Participants[i].IsOnline = false
		}
		a := newActor(rec, &r.opts)
		if existing, loaded := r.actors.LoadOrStore(code, a); loaded {
			a.Stop()
			return existing, nil
		}
		r.logger.Info("session rehydrated", "session_code", code, "participants", len(rec.Participants))
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Actor), nil
}

func (r *Registry) Session(ctx context.Context, code string) (core.SessionHandle, error) {
	a, err := r.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListPublic returns active public sessions, newest first.
func (r *Registry) ListPublic(ctx context.Context, limit int) ([]core.Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	now := r.opts.Now()
	out := make([]core.Summary, 0)
	r.actors.Range(func(_, v any) bool {
		s := v.(*Actor).Summary()
		if s.IsActive && s.Privacy == core.PrivacyPublic && now.Before(s.ExpiresAt) {
			out = append(out, s)
		}
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Registry) End(ctx context.Context, code, userID string) error {
	a, err := r.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := a.End(ctx, userID); err != nil {
		return err
	}
	r.evict(a)
	return nil
}

func (r *Registry) ChatHistory(ctx context.Context, code string, limit int) ([]core.ChatEntry, error) {
	code = normalizeCode(code)
	if !IsValidCode(code) {
		return nil, fmt.Errorf("%w: session code %q", core.ErrNotFound, code)
	}
	if _, ok := r.load(code); !ok {
		if r.opts.Store == nil {
			return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, code)
		}
		if _, err := r.opts.Store.Get(ctx, code); err != nil {
			return nil, err
		}
	}
	if r.opts.Chat == nil {
		return []core.ChatEntry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return r.opts.Chat.List(ctx, code, limit)
}

// Actors returns the live actors for a sweep.
func (r *Registry) Actors() []*Actor {
	var out []*Actor
	r.actors.Range(func(_, v any) bool {
		out = append(out, v.(*Actor))
		return true
	})
	return out
}

func (r *Registry) Evict(code string) {
	if a, ok := r.load(normalizeCode(code)); ok {
		r.evict(a)
	}
}

// evict waits for the actor's queued writes so a later store read sees its final state.
func (r *Registry) evict(a *Actor) {
	if r.actors.CompareAndDelete(a.code, a) {
		a.Stop()
		a.Flush()
		r.logger.Info("session evicted", "session_code", a.code)
	}
}

func (r *Registry) ActiveCount() int {
	n := 0
	r.actors.Range(func(_, v any) bool {
		if v.(*Actor).Active() {
			n++
		}
		return true
	})
	return n
}

// StopAll stops every actor and waits for their queued writes.
func (r *Registry) StopAll() {
	for _, a := range r.Actors() {
		r.actors.CompareAndDelete(a.code, a)
		a.Stop()
		a.Flush()
	}
}
