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
	"fmt"

	"github.com/wso2/api-platform/listening-party/pkg/core"
)

// CanPerform evaluates a capability against the session roster. The host is always allowed.
func CanPerform(s *core.Session, userID string, capability core.Capability) bool {
	if s == nil || userID == "" {
		return false
	}
	if s.HostID == userID {
		return true
	}
	p := findParticipant(s, userID)
	if p == nil {
		return false
	}
	switch capability {
	case core.CapabilityControl:
		return p.Permissions.CanControl
	case core.CapabilityQueueAdd:
		return p.Permissions.CanAddToQueue
	}
	return false
}

func Require(s *core.Session, userID string, capability core.Capability) error {
	if !CanPerform(s, userID, capability) {
		return fmt.Errorf("%w: user=%s capability=%s", core.ErrPermissionDenied, userID, capability)
	}
	return nil
}

func findParticipant(s *core.Session, userID string) *core.Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}
