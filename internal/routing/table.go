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

package routing

import (
	"sync"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// Wildcard matches every event name.
const Wildcard = "*"

// Table maps event names to the endpoints that mirror them.
type Table struct {
	mu     sync.Mutex
	routes sync.Map
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Add(route *core.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var next []*core.Route
	if v, ok := t.routes.Load(route.Source); ok {
		for _, r := range v.([]*core.Route) {
			if r.Target != route.Target {
				next = append(next, r)
			}
		}
	}
	t.routes.Store(route.Source, append(next, route))
}

func (t *Table) Remove(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes.Delete(source)
}

// Lookup returns the routes registered for exactly this source.
func (t *Table) Lookup(source string) ([]*core.Route, bool) {
	v, ok := t.routes.Load(source)
	if !ok {
		return nil, false
	}
	return v.([]*core.Route), true
}

// Targets resolves an event name to distinct endpoint names, exact routes first.
func (t *Table) Targets(event string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, source := range []string{event, Wildcard} {
		routes, ok := t.Lookup(source)
		if !ok {
			continue
		}
		for _, r := range routes {
			if !seen[r.Target] {
				seen[r.Target] = true
				out = append(out, r.Target)
			}
		}
	}
	return out
}

func (t *Table) ReplaceAll(routes []*core.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes.Range(func(key, _ any) bool {
		t.routes.Delete(key)
		return true
	})
	grouped := make(map[string][]*core.Route)
	for _, r := range routes {
		grouped[r.Source] = append(grouped[r.Source], r)
	}
	for source, rs := range grouped {
		t.routes.Store(source, rs)
	}
}

func (t *Table) Len() int {
	n := 0
	t.routes.Range(func(_, v any) bool {
		n += len(v.([]*core.Route))
		return true
	})
	return n
}

func (t *Table) Each(fn func(r *core.Route)) {
	t.routes.Range(func(_, v any) bool {
		for _, r := range v.([]*core.Route) {
			fn(r)
		}
		return true
	})
}
