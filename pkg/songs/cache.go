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

package songs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	song    *core.Song
	missing bool
	expires time.Time
}

// CachedCatalog memoizes lookups for ttl, misses included, and collapses concurrent
// lookups of the same id into one upstream call.
type CachedCatalog struct {
	next    core.SongLookup
	ttl     time.Duration
	sfGroup singleflight.Group
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCachedCatalog(next core.SongLookup, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedCatalog) Lookup(ctx context.Context, id string) (*core.Song, error) {
	if song, missing, ok := c.get(id); ok {
		if missing {
			return nil, fmt.Errorf("%w: id=%s", core.ErrSongNotFound, id)
		}
		return song, nil
	}

	val, err, _ := c.sfGroup.Do(id, func() (any, error) {
		return c.next.Lookup(ctx, id)
	})
	if err != nil {
		if errors.Is(err, core.ErrSongNotFound) {
			c.put(id, cacheEntry{missing: true})
		}
		return nil, err
	}
	song := val.(*core.Song)
	c.put(id, cacheEntry{song: song})
	cp := *song
	return &cp, nil
}

func (c *CachedCatalog) get(id string) (*core.Song, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || !c.now().Before(e.expires) {
		return nil, false, false
	}
	if e.missing {
		return nil, true, true
	}
	cp := *e.song
	return &cp, false, true
}

func (c *CachedCatalog) put(id string, e cacheEntry) {
	e.expires = c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
}

// Invalidate drops every cached entry.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
