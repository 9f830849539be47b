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
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

// scriptedFetcher test double feeding pre-scripted messages, then idling
type scriptedFetcher struct {
	script []kafka.Message
	index  int
	closed bool
	lock   sync.Mutex
}

func (f *scriptedFetcher) ReadMessage(ctxt context.Context) (kafka.Message, error) {
	f.lock.Lock()
	if f.index < len(f.script) {
		msg := f.script[f.index]
		f.index++
		f.lock.Unlock()
		return msg, nil
	}
	f.lock.Unlock()
	// Script drained. Behave like an idle reader and block on the context.
	<-ctxt.Done()
	return kafka.Message{}, ctxt.Err()
}

func (f *scriptedFetcher) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	return nil
}

func TestConsumerForwardsInOrder(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testTopic := "ut-consumer-order"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	wg := sync.WaitGroup{}
	defer wg.Wait()

	script := make([]kafka.Message, 0, 5)
	for itr := 0; itr < 5; itr++ {
		script = append(script, kafka.Message{
			Topic: testTopic,
			Key:   []byte("new_diary_created"),
			Value: []byte(fmt.Sprintf("\"diary-%02d\"", itr)),
		})
	}
	fetcher := &scriptedFetcher{script: script}

	uut, err := defineConsumerWithFetcher(
		utCtxt, "ut-consumer-order", time.Millisecond*50,
		func(topics []string) recordFetcher { return fetcher },
	)
	assert.Nil(err)

	received := make(chan Record, len(script))
	forward := func(ctxt context.Context, record Record) error {
		received <- record
		return nil
	}
	assert.Nil(uut.StartPolling([]string{testTopic}, forward, &wg))

	// Forwarding must preserve the scripted order
	for itr := 0; itr < len(script); itr++ {
		select {
		case record := <-received:
			assert.Equal(testTopic, record.Topic)
			assert.Equal(fmt.Sprintf("\"diary-%02d\"", itr), string(record.Value))
		case <-time.After(time.Second):
			assert.FailNow("timed out waiting for forwarded record")
		}
	}

	assert.Nil(uut.Terminate())
}

func TestConsumerStopWithinIdleInterval(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	wg := sync.WaitGroup{}

	fetcher := &scriptedFetcher{}
	idleTimeout := time.Millisecond * 20
	uut, err := defineConsumerWithFetcher(
		utCtxt, "ut-consumer-stop", idleTimeout,
		func(topics []string) recordFetcher { return fetcher },
	)
	assert.Nil(err)

	forward := func(ctxt context.Context, record Record) error { return nil }
	assert.Nil(uut.StartPolling([]string{"ut-consumer-stop"}, forward, &wg))

	// An idle consumer keeps polling; only the stop request ends the loop
	time.Sleep(idleTimeout * 3)
	assert.Nil(uut.Terminate())

	loopExited := make(chan bool, 1)
	go func() {
		wg.Wait()
		loopExited <- true
	}()
	select {
	case <-loopExited:
	case <-time.After(idleTimeout * 10):
		assert.FailNow("poll loop did not honor stop within the idle interval")
	}
	assert.True(fetcher.closed)
}

func TestConsumerRejectsConcurrentPolling(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	wg := sync.WaitGroup{}
	defer wg.Wait()

	fetcher := &scriptedFetcher{}
	uut, err := defineConsumerWithFetcher(
		utCtxt, "ut-consumer-single", time.Millisecond*20,
		func(topics []string) recordFetcher { return fetcher },
	)
	assert.Nil(err)

	forward := func(ctxt context.Context, record Record) error { return nil }
	assert.Nil(uut.StartPolling([]string{"ut-consumer-single"}, forward, &wg))
	assert.NotNil(uut.StartPolling([]string{"ut-consumer-single"}, forward, &wg))

	assert.Nil(uut.Terminate())
}
