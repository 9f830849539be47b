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
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/vulcanapp/vulcan/common"
)

// scriptedWriter test double recording appended records
type scriptedWriter struct {
	records  []kafka.Message
	writeErr error
	closeErr error
	closed   bool
}

func (w *scriptedWriter) WriteMessages(ctxt context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.records = append(w.records, msgs...)
	return nil
}

func (w *scriptedWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func getTestPublisher(ack, fire *scriptedWriter) *publisherImpl {
	return &publisherImpl{
		Component: common.Component{LogTags: log.Fields{
			"module": "broker", "component": "publisher", "instance": "unit-test",
		}},
		ackWriter:  ack,
		fireWriter: fire,
		ackTimeout: time.Second,
	}
}

func TestPublisherRecordRouting(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	ack := &scriptedWriter{}
	fire := &scriptedWriter{}
	uut := getTestPublisher(ack, fire)

	// Case 0: ACKed publish goes through the sync writer
	assert.True(uut.Publish(utCtxt, "unit-test", "key-0", "value-0", true))
	assert.Len(ack.records, 1)
	assert.Empty(fire.records)
	assert.Equal("unit-test", ack.records[0].Topic)
	assert.Equal([]byte("key-0"), ack.records[0].Key)
	assert.Equal([]byte(`"value-0"`), ack.records[0].Value)

	// Case 1: fire-and-forget goes through the async writer
	assert.True(uut.Publish(utCtxt, "unit-test", "key-1", "value-1", false))
	assert.Len(ack.records, 1)
	assert.Len(fire.records, 1)

	// Case 2: write failures are reported
	ack.writeErr = fmt.Errorf("dummy error")
	assert.False(uut.Publish(utCtxt, "unit-test", "key-2", "value-2", true))
}

func TestPublisherCloseReleasesBothWriters(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	// Case 0: both writers close cleanly
	{
		ack := &scriptedWriter{}
		fire := &scriptedWriter{}
		uut := getTestPublisher(ack, fire)
		assert.Nil(uut.Close())
		assert.True(ack.closed)
		assert.True(fire.closed)
	}

	// Case 1: a failing async writer close must not leave the sync writer open
	{
		dummyErr := fmt.Errorf("dummy error")
		ack := &scriptedWriter{}
		fire := &scriptedWriter{closeErr: dummyErr}
		uut := getTestPublisher(ack, fire)
		assert.Equal(dummyErr, uut.Close())
		assert.True(ack.closed)
		assert.True(fire.closed)
	}
}
