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

package logging

import (
	"context"
	"log/slog"
)

// EventLogger traces control-channel traffic at debug level.
type EventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (p *EventLogger) Log(event, sessionCode, connID, userID, direction string, size int) {
	if p == nil || !p.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	p.logger.Debug("event",
		"event", event,
		"session_code", sessionCode,
		"conn_id", connID,
		"user_id", userID,
		"direction", direction,
		"payload_size", size,
	)
}
