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
	"errors"
	"fmt"
)

// FanoutTopic the single topic all realtime notification events go through
const FanoutTopic = "emit_message"

// Fan-out event names as they appear on the wire
const (
	EventDiaryCreated = "new_diary_created"
	EventDiaryUpdated = "diary_id_updated"
	EventDiaryDeleted = "diary_id_deleted"
)

// ErrUnknownEvent the record key names no known event kind
var ErrUnknownEvent = errors.New("unknown fan-out event kind")

// Event one validated fan-out event
type Event interface {
	// Name the wire-level event name
	Name() string
}

// DiaryCreated a new diary was created
type DiaryCreated struct {
	// ID the new diary's ID
	ID string
}

// Name the wire-level event name
func (e DiaryCreated) Name() string { return EventDiaryCreated }

// DiaryUpdated an existing diary was updated
type DiaryUpdated struct {
	// ID the updated diary's ID
	ID string
}

// Name the wire-level event name
func (e DiaryUpdated) Name() string { return EventDiaryUpdated }

// DiaryDeleted an existing diary was deleted
type DiaryDeleted struct {
	// ID the deleted diary's ID
	ID string
}

// Name the wire-level event name
func (e DiaryDeleted) Name() string { return EventDiaryDeleted }

// ParseEvent validate one fan-out record against the known event kinds.
//
// The payload of every current event kind is the affected diary ID as a
// JSON string. Records with an unknown key fail with ErrUnknownEvent and
// are meant to be logged and dropped, never to crash the bridge.
func ParseEvent(key string, value []byte) (Event, error) {
	var diaryID string
	if err := json.Unmarshal(value, &diaryID); err != nil {
		return nil, fmt.Errorf("invalid payload for event %s: %w", key, err)
	}
	switch key {
	case EventDiaryCreated:
		return DiaryCreated{ID: diaryID}, nil
	case EventDiaryUpdated:
		return DiaryUpdated{ID: diaryID}, nil
	case EventDiaryDeleted:
		return DiaryDeleted{ID: diaryID}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, key)
}
