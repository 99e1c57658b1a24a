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

// Queue is the shared FIFO of song references. It is only touched inside an actor turn.
type Queue struct {
	items []string
}

func NewQueue(items []string) *Queue {
	return &Queue{items: append([]string(nil), items...)}
}

func (q *Queue) Add(songID string) {
	q.items = append(q.items, songID)
}

func (q *Queue) PeekNext() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	return q.items[0], true
}

func (q *Queue) PopNext() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return head, true
}

func (q *Queue) Len() int { return len(q.items) }

// Items returns a copy in play order.
func (q *Queue) Items() []string {
	if len(q.items) == 0 {
		return []string{}
	}
	return append([]string(nil), q.items...)
}
