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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/listening-party/pkg/core"
)

func TestIsValidCode(t *testing.T) {
	for _, c := range []string{"ABC123", "000000", "ZZZZZZ"} {
		assert.True(t, IsValidCode(c), c)
	}
	for _, c := range []string{"", "abc123", "ABC12", "ABC1234", "ABC-12", "ÄBC123"} {
		assert.False(t, IsValidCode(c), c)
	}
}

func TestCodeGenerator(t *testing.T) {
	gen, err := NewCodeGenerator()
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		code := gen()
		require.True(t, IsValidCode(code), code)
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue(nil)
	_, ok := q.PopNext()
	assert.False(t, ok)
	assert.Equal(t, []string{}, q.Items())

	q.Add("a")
	q.Add("b")
	head, ok := q.PeekNext()
	assert.True(t, ok)
	assert.Equal(t, "a", head)
	assert.Equal(t, 2, q.Len())

	head, _ = q.PopNext()
	assert.Equal(t, "a", head)
	assert.Equal(t, []string{"b"}, q.Items())

	items := q.Items()
	items[0] = "mutated"
	assert.Equal(t, []string{"b"}, q.Items())
}

func TestCanPerform(t *testing.T) {
	s := &core.Session{
		HostID: "host",
		Participants: []core.Participant{
			{UserID: "host"},
			{UserID: "dj", Permissions: core.Permissions{CanControl: true}},
			{UserID: "guest"},
		},
	}
	assert.True(t, CanPerform(s, "host", core.CapabilityControl))
	assert.True(t, CanPerform(s, "dj", core.CapabilityControl))
	assert.False(t, CanPerform(s, "dj", core.CapabilityQueueAdd))
	assert.False(t, CanPerform(s, "guest", core.CapabilityControl))
	assert.False(t, CanPerform(s, "stranger", core.CapabilityQueueAdd))
	assert.False(t, CanPerform(s, "", core.CapabilityControl))
	assert.ErrorIs(t, Require(s, "guest", core.CapabilityQueueAdd), core.ErrPermissionDenied)
}

func TestPlaybackFSM(t *testing.T) {
	f := NewPlaybackFSM(core.StatusIdle)
	require.NoError(t, f.Trigger(eventPlay))
	assert.Equal(t, core.StatusPlaying, f.Current())
	require.NoError(t, f.Trigger(eventPause))
	assert.Equal(t, core.StatusPaused, f.Current())
	require.NoError(t, f.Trigger(eventSeek))
	assert.Equal(t, core.StatusPaused, f.Current())
	require.NoError(t, f.Trigger(eventEnd))
	assert.Equal(t, core.StatusEnded, f.Current())

	assert.False(t, f.Can(eventPlay))
	assert.ErrorIs(t, f.Trigger(eventPlay), core.ErrInvalidState)
}

func TestStatusOf(t *testing.T) {
	song := "s1"
	assert.Equal(t, core.StatusEnded, statusOf(&core.Session{}))
	assert.Equal(t, core.StatusIdle, statusOf(&core.Session{IsActive: true}))
	assert.Equal(t, core.StatusPaused, statusOf(&core.Session{IsActive: true, Playback: core.PlaybackState{CurrentSong: &song}}))
	assert.Equal(t, core.StatusPlaying, statusOf(&core.Session{IsActive: true, Playback: core.PlaybackState{CurrentSong: &song, IsPlaying: true}}))
}
