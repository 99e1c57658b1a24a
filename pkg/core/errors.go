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

package core

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrSongNotFound     = errors.New("song not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCapacityExceeded = errors.New("session is full")
	ErrInvalidState     = errors.New("invalid session state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")

	// ErrCodeCollision is retried by session creation and never reaches clients.
	ErrCodeCollision = errors.New("session code collision")

	ErrStoreClosed = errors.New("store closed")
)

// IsNotFound matches both missing sessions and missing songs.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSongNotFound)
}
