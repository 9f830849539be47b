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
	"encoding/json"
	"time"

	"github.com/apex/log"
	"github.com/segmentio/kafka-go"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/core"
)

// Publisher publishes records onto topics.
//
// One Publisher is shared process-wide; kafka.Writer is safe for concurrent
// use so publish calls need no external serialization.
type Publisher interface {
	// Publish append one record to a topic.
	//
	// The value is serialized as JSON and the key as UTF-8 text. With
	// waitForAck the call blocks up to the configured ACK timeout for broker
	// acknowledgment and reports failure on timeout; without it the record is
	// handed to the async writer and the call reports success immediately,
	// with no guarantee the record ever lands.
	Publish(ctxt context.Context, topic, key string, value interface{}, waitForAck bool) bool
	// Close flush and release both writers
	Close() error
}

// recordWriter is the kafka.Writer surface the publisher depends on
type recordWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publisherImpl implements Publisher
type publisherImpl struct {
	common.Component
	ackWriter  recordWriter
	fireWriter recordWriter
	ackTimeout time.Duration
}

// GetPublisher define a new Publisher against the Kafka core
func GetPublisher(
	kafkaCore core.KafkaClient, instance string, ackTimeout time.Duration,
) (Publisher, error) {
	logTags := log.Fields{
		"module":    "broker",
		"component": "publisher",
		"instance":  instance,
	}
	addr := kafka.TCP(kafkaCore.Servers()...)
	fireWriter := &kafka.Writer{
		Addr:         addr,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: time.Millisecond * 10,
	}
	// Async writer surfaces failures only through the completion callback
	fireWriter.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Async publish of %d records failed", len(messages),
			)
		}
	}
	return &publisherImpl{
		Component: common.Component{LogTags: logTags},
		ackWriter: &kafka.Writer{
			Addr:         addr,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: time.Millisecond * 10,
		},
		fireWriter: fireWriter,
		ackTimeout: ackTimeout,
	}, nil
}

// Publish append one record to a topic
func (p *publisherImpl) Publish(
	ctxt context.Context, topic, key string, value interface{}, waitForAck bool,
) bool {
	localLogTags, _ := common.UpdateLogTags(ctxt, p.LogTags)
	serialized, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to serialize record for %s@%s", key, topic,
		)
		return false
	}
	record := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: serialized,
		Time:  time.Now(),
	}
	if waitForAck {
		ackCtxt, cancel := context.WithTimeout(ctxt, p.ackTimeout)
		defer cancel()
		if err := p.ackWriter.WriteMessages(ackCtxt, record); err != nil {
			log.WithError(err).WithFields(localLogTags).Errorf(
				"Publish of %s@%s failed", key, topic,
			)
			return false
		}
		log.WithFields(localLogTags).Debugf("Published %s@%s", key, topic)
		return true
	}
	// Fire-and-forget: handing the record to the async writer is success
	if err := p.fireWriter.WriteMessages(context.Background(), record); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Enqueue of %s@%s failed", key, topic,
		)
		return false
	}
	log.WithFields(localLogTags).Debugf("Enqueued %s@%s", key, topic)
	return true
}

// Close flush and release both writers
func (p *publisherImpl) Close() error {
	var firstErr error
	if err := p.fireWriter.Close(); err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Async writer close failed")
		firstErr = err
	}
	if err := p.ackWriter.Close(); err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Sync writer close failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	log.WithFields(p.LogTags).Info("Closed publisher")
	return nil
}
