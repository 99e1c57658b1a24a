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
	"fmt"
	"sync"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// StaticCatalog resolves songs from a fixed in-process set.
type StaticCatalog struct {
	mu    sync.RWMutex
	songs map[string]core.Song
}

func NewStaticCatalog(songs ...core.Song) *StaticCatalog {
	c := &StaticCatalog{songs: make(map[string]core.Song, len(songs))}
	for _, s := range songs {
		c.songs[s.ID] = s
	}
	return c
}

// NewStaticCatalogFromIDs builds a catalog of bare song ids.
func NewStaticCatalogFromIDs(ids []string) *StaticCatalog {
	songs := make([]core.Song, 0, len(ids))
	for _, id := range ids {
		songs = append(songs, core.Song{ID: id})
	}
	return NewStaticCatalog(songs...)
}

func (c *StaticCatalog) Add(song core.Song) {
	c.mu.Lock()
	c.songs[song.ID] = song
	c.mu.Unlock()
}

func (c *StaticCatalog) Lookup(ctx context.Context, id string) (*core.Song, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.songs[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", core.ErrSongNotFound, id)
	}
	return &s, nil
}
