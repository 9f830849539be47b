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

package cmd

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/broker"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/core"
	"github.com/vulcanapp/vulcan/notify"
)

// RunWatcher run the topic watcher, relaying each record to the mail-relay
// service
func RunWatcher(
	runTimeContext context.Context,
	config common.SystemConfig,
	instance string,
	kafkaClient core.KafkaClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "watcher",
		"instance":  instance,
		"topic":     config.Watcher.Topic,
	}

	topicAdmin, err := broker.GetTopicAdmin(kafkaClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define topic admin")
		return err
	}
	param := broker.TopicParam{Name: config.Watcher.Topic, Partitions: 1, Replication: 1}
	if err := topicAdmin.CreateTopic(runTimeContext, param, true); err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to create topic %s", config.Watcher.Topic,
		)
		return err
	}

	notifier := notify.GetClient(
		config.Notifier.Endpoint, time.Second*time.Duration(config.Notifier.RequestTimeout),
	)

	relay := func(ctxt context.Context, record broker.Record) error {
		var payload notify.Payload
		if err := json.Unmarshal(record.Value, &payload); err != nil {
			log.WithError(err).WithFields(logTags).Warnf(
				"Dropping malformed record %s", record.String(),
			)
			return nil
		}
		if err := notifier.Send(ctxt, record.Key, payload); err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Relay of %s failed", record.String(),
			)
		}
		return nil
	}

	consumer, err := broker.DefineConsumer(
		runTimeContext,
		config.Kafka.BootstrapServers,
		config.Watcher.GroupID,
		time.Second*time.Duration(config.Kafka.PollIdleTimeout),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define watcher consumer")
		return err
	}
	if err := consumer.StartPolling([]string{config.Watcher.Topic}, relay, wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start watcher consumer")
		return err
	}

	log.WithFields(logTags).Info("Watcher draining topic")

	<-runTimeContext.Done()

	if err := consumer.Terminate(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Watcher consumer terminate failure")
	}
	return nil
}
