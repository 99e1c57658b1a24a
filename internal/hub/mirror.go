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

package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wso2/api-platform/listening-party/internal/routing"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

type HealthChecker interface {
	IsEndpointHealthy(name string) bool
}

// Mirror copies session events to broker endpoints chosen by the routing table.
// It runs on its own goroutine so a slow broker never stalls an actor.
type Mirror struct {
	routes    *routing.Table
	endpoints map[string]core.Endpoint
	health    HealthChecker
	events    chan core.Event
	timeout   time.Duration
	logger    *slog.Logger
}

func NewMirror(
	routes *routing.Table,
	endpoints map[string]core.Endpoint,
	health HealthChecker,
	bufferSize int,
	logger *slog.Logger,
) (*Mirror, error) {
	if routes == nil {
		return nil, fmt.Errorf("mirror: routing table required")
	}
	if missing := unknownTargets(routes, endpoints); len(missing) > 0 {
		return nil, fmt.Errorf("mirror: route %s targets unknown endpoint %s", missing[0].Source, missing[0].Target)
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Mirror{
		routes:    routes,
		endpoints: endpoints,
		health:    health,
		events:    make(chan core.Event, bufferSize),
		timeout:   5 * time.Second,
		logger:    logger,
	}, nil
}

func unknownTargets(routes *routing.Table, endpoints map[string]core.Endpoint) []*core.Route {
	var missing []*core.Route
	routes.Each(func(r *core.Route) {
		if _, ok := endpoints[r.Target]; !ok {
			missing = append(missing, r)
		}
	})
	return missing
}

func (m *Mirror) Forward(evt core.Event) {
	if len(m.endpoints) == 0 {
		return
	}
	select {
	case m.events <- evt:
	default:
		m.logger.Warn("mirror buffer full, dropping event", "session_code", evt.SessionCode, "event", evt.Name)
	}
}

func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-m.events:
			m.dispatch(ctx, evt)
		}
	}
}

// dispatch recovers on its own so one bad send never stops the loop.
func (m *Mirror) dispatch(ctx context.Context, evt core.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("mirror panic recovered", "session_code", evt.SessionCode, "event", evt.Name, "error", r)
		}
	}()
	for _, target := range m.routes.Targets(evt.Name) {
		ep, ok := m.endpoints[target]
		if !ok {
			m.logger.Warn("route targets unknown endpoint", "event", evt.Name, "target", target)
			continue
		}
		if m.health != nil && !m.health.IsEndpointHealthy(target) {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := ep.Send(sendCtx, evt)
		cancel()
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("endpoint send failed",
				"endpoint", target,
				"session_code", evt.SessionCode,
				"event", evt.Name,
				"error", err,
			)
		}
	}
}
