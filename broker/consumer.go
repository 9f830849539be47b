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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/segmentio/kafka-go"
	"github.com/vulcanapp/vulcan/common"
)

// recordFetcher is the slice of kafka.Reader the poll loop depends on
type recordFetcher interface {
	ReadMessage(ctxt context.Context) (kafka.Message, error)
	Close() error
}

// fetcherFactory builds the group-bound fetcher when polling starts
type fetcherFactory func(topics []string) recordFetcher

// Consumer is a pollable, group-bound reader over a set of topics.
//
// A Consumer belongs to exactly one logical listener; it must not be shared
// across concurrent pollers. New groups start from the earliest retained
// record, and delivered offsets are committed automatically whether or not
// the application finished processing them.
type Consumer interface {
	// StartPolling begin draining the given topics in a background loop.
	//
	// Each record is handed to forwardCB in partition order. The loop blocks
	// up to the idle timeout between records, then checks for cancellation
	// and keeps waiting; it never terminates on idle alone.
	StartPolling(topics []string, forwardCB ForwardRecordCB, wg *sync.WaitGroup) error
	// Stop request cooperative stop of the poll loop.
	//
	// Safe to call from a goroutine other than the poll loop's. The flag is
	// observed at the top of each poll iteration, so the loop unsubscribes
	// within one idle-timeout interval, not immediately.
	Stop() error
	// Terminate stop the poll loop and close the underlying reader
	Terminate() error
}

// consumerImpl implements Consumer
type consumerImpl struct {
	common.Component
	groupID     string
	idleTimeout time.Duration
	newFetcher  fetcherFactory
	fetcher     recordFetcher
	rootContext context.Context
	stopFlag    bool
	terminating bool
	polling     bool
	lock        *sync.Mutex
}

// DefineConsumer create a new Consumer bound to a consumer group
func DefineConsumer(
	ctxt context.Context,
	servers []string,
	groupID string,
	idleTimeout time.Duration,
) (Consumer, error) {
	factory := func(topics []string) recordFetcher {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: servers,
			GroupID: groupID,
			// A listener started late must still see events published before
			// it came up, at the cost of reprocessing on restart
			StartOffset:    kafka.FirstOffset,
			GroupTopics:    topics,
			MaxWait:        time.Millisecond * 500,
			CommitInterval: time.Second,
			MinBytes:       1,
			MaxBytes:       10e6,
		})
	}
	return defineConsumerWithFetcher(ctxt, groupID, idleTimeout, factory)
}

// defineConsumerWithFetcher create a new Consumer around a custom fetcher factory
func defineConsumerWithFetcher(
	ctxt context.Context, groupID string, idleTimeout time.Duration, factory fetcherFactory,
) (Consumer, error) {
	logTags := log.Fields{
		"module":    "broker",
		"component": "consumer",
		"group":     groupID,
	}
	return &consumerImpl{
		Component:   common.Component{LogTags: logTags},
		groupID:     groupID,
		idleTimeout: idleTimeout,
		newFetcher:  factory,
		rootContext: ctxt,
		lock:        &sync.Mutex{},
	}, nil
}

// StartPolling begin draining the given topics in a background loop
func (c *consumerImpl) StartPolling(
	topics []string, forwardCB ForwardRecordCB, wg *sync.WaitGroup,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.polling {
		err := fmt.Errorf("consumer group %s already polling", c.groupID)
		log.WithError(err).WithFields(c.LogTags).Error("Unable to start polling")
		return err
	}
	c.polling = true
	c.stopFlag = false
	c.fetcher = c.newFetcher(topics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithFields(c.LogTags).Infof("Start polling %v", topics)
		defer log.WithFields(c.LogTags).Info("Poll loop exiting")
		c.pollLoop(forwardCB)
	}()
	return nil
}

// pollLoop the cooperative poll loop
func (c *consumerImpl) pollLoop(forwardCB ForwardRecordCB) {
	retryWait := time.Second
	for !c.stopped() {
		readCtxt, cancel := context.WithTimeout(c.rootContext, c.idleTimeout)
		msg, err := c.fetcher.ReadMessage(readCtxt)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// Idle timeout. Yield back to the stop check only.
				continue
			}
			if errors.Is(err, context.Canceled) || c.rootContext.Err() != nil {
				break
			}
			// Transient poll errors are retryable, distinct from cancellation
			log.WithError(err).WithFields(c.LogTags).Error("Record read failure")
			select {
			case <-c.rootContext.Done():
			case <-time.After(retryWait):
			}
			continue
		}
		record := Record{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value}
		log.WithFields(c.LogTags).Debugf("Received %s", record)
		if err := forwardCB(c.rootContext, record); err != nil {
			log.WithError(err).WithFields(c.LogTags).Errorf("Unable to forward %s", record)
		}
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.polling = false
	if c.terminating {
		c.closeFetcher()
	}
}

// closeFetcher close the reader. Caller must hold the lock.
func (c *consumerImpl) closeFetcher() {
	if c.fetcher == nil {
		return
	}
	if err := c.fetcher.Close(); err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Reader close failed")
	} else {
		log.WithFields(c.LogTags).Info("Closed reader")
	}
	c.fetcher = nil
}

// stopped whether cooperative stop was requested
func (c *consumerImpl) stopped() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stopFlag || c.rootContext.Err() != nil
}

// Stop request cooperative stop of the poll loop
func (c *consumerImpl) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	log.WithFields(c.LogTags).Info("Requesting poll loop stop")
	c.stopFlag = true
	return nil
}

// Terminate stop the poll loop and close the underlying reader
func (c *consumerImpl) Terminate() error {
	c.lock.Lock()
	c.terminating = true
	// The poll loop may have already exited on root context cancel, in
	// which case the reader is closed here instead
	if !c.polling {
		c.closeFetcher()
	}
	c.stopFlag = true
	log.WithFields(c.LogTags).Info("Requesting poll loop stop")
	c.lock.Unlock()
	return nil
}
