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
	"fmt"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
	"gorm.io/gorm"
)

type Config struct {
	Type     string        `yaml:"type"`
	IDs      []string      `yaml:"ids"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// New builds the configured catalog. db is only used by the sqlite catalog and may be nil otherwise.
// A nil lookup with a nil error means every song id is accepted.
func New(cfg Config, db *gorm.DB) (core.SongLookup, error) {
	var base core.SongLookup
	switch cfg.Type {
	case "", "any":
		return nil, nil
	case "static":
		base = NewStaticCatalogFromIDs(cfg.IDs)
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite song catalog requires the sqlite store")
		}
		c, err := NewDBCatalog(db)
		if err != nil {
			return nil, err
		}
		base = c
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http song catalog requires base_url")
		}
		base = NewHTTPCatalog(cfg.BaseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown song catalog type: %s", cfg.Type)
	}
	return NewCachedCatalog(base, cfg.CacheTTL), nil
}
