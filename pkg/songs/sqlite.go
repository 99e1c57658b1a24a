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

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"gorm.io/gorm"
)

type songRow struct {
	ID       string `gorm:"primarykey;size:64"`
	Title    string `gorm:"size:255"`
	Artist   string `gorm:"size:255"`
	Duration int
}

func (songRow) TableName() string { return "songs" }

// DBCatalog resolves songs from a gorm-managed table.
type DBCatalog struct {
	db *gorm.DB
}

func NewDBCatalog(db *gorm.DB) (*DBCatalog, error) {
	if err := db.AutoMigrate(&songRow{}); err != nil {
		return nil, fmt.Errorf("migrate songs: %w", err)
	}
	return &DBCatalog{db: db}, nil
}

func (c *DBCatalog) Lookup(ctx context.Context, id string) (*core.Song, error) {
	var row songRow
	if err := c.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id=%s", core.ErrSongNotFound, id)
		}
		return nil, fmt.Errorf("failed to find song: %w", err)
	}
	return &core.Song{ID: row.ID, Title: row.Title, Artist: row.Artist, Duration: row.Duration}, nil
}

// Upsert adds or replaces catalog entries.
func (c *DBCatalog) Upsert(ctx context.Context, songs ...core.Song) error {
	for _, s := range songs {
		row := songRow{ID: s.ID, Title: s.Title, Artist: s.Artist, Duration: s.Duration}
		if err := c.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save song %s: %w", s.ID, err)
		}
	}
	return nil
}
