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

package broker

import (
	"context"
	"fmt"
)

// Record one record read back from a topic.
//
// Value carries the raw JSON document as published; consumers decode it
// against their own expected shapes.
type Record struct {
	// Topic the topic this record was read from
	Topic string `json:"topic" validate:"required"`
	// Key the free-text event name of the record
	Key string `json:"key" validate:"required"`
	// Value the record payload
	Value []byte `json:"value"`
}

// String toString function for Record
func (r Record) String() string {
	return fmt.Sprintf("%s@%s[%d bytes]", r.Key, r.Topic, len(r.Value))
}

// ForwardRecordCB callback used to forward records to the next pipeline stage
type ForwardRecordCB func(ctxt context.Context, record Record) error
