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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// HTTPCatalog resolves songs against a remote catalog service at GET {baseURL}/songs/{id}.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCatalog) Lookup(ctx context.Context, id string) (*core.Song, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/songs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build song request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("song catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: id=%s", core.ErrSongNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("song catalog returned %d for id=%s", resp.StatusCode, id)
	}

	var song core.Song
	if err := json.NewDecoder(resp.Body).Decode(&song); err != nil {
		return nil, fmt.Errorf("decode song %s: %w", id, err)
	}
	if song.ID == "" {
		song.ID = id
	}
	return &song, nil
}
