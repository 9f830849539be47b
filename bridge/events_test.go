// Copyright 2024-2025 The vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvent(t *testing.T) {
	assert := assert.New(t)

	encode := func(diaryID string) []byte {
		serialized, err := json.Marshal(diaryID)
		assert.Nil(err)
		return serialized
	}

	// Case 1: the three diary change-events decode into their variants
	{
		event, err := ParseEvent(EventDiaryCreated, encode("diary-01"))
		assert.Nil(err)
		created, ok := event.(DiaryCreated)
		assert.True(ok)
		assert.Equal("diary-01", created.ID)
		assert.Equal(EventDiaryCreated, event.Name())

		event, err = ParseEvent(EventDiaryUpdated, encode("diary-02"))
		assert.Nil(err)
		updated, ok := event.(DiaryUpdated)
		assert.True(ok)
		assert.Equal("diary-02", updated.ID)

		event, err = ParseEvent(EventDiaryDeleted, encode("diary-03"))
		assert.Nil(err)
		deleted, ok := event.(DiaryDeleted)
		assert.True(ok)
		assert.Equal("diary-03", deleted.ID)
	}

	// Case 2: unknown event names are reported, not guessed at
	{
		_, err := ParseEvent("diary_exploded", encode("diary-04"))
		assert.ErrorIs(err, ErrUnknownEvent)
	}

	// Case 3: a payload that is not a JSON string is rejected
	{
		_, err := ParseEvent(EventDiaryCreated, []byte("{not json"))
		assert.NotNil(err)
	}
}
