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
	"os"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vulcanapp/vulcan/core"
)

// getUnitTestKafkaServers returns the Kafka bootstrap servers to run
// integration tests against, or skips the test when none are configured.
func getUnitTestKafkaServers(t *testing.T) []string {
	servers := os.Getenv("UT_KAFKA_SERVERS")
	if servers == "" {
		t.Skip("Skipping test. Set UT_KAFKA_SERVERS to run against a Kafka cluster")
	}
	return []string{servers}
}

func TestTopicAdminCreateTopic(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	client, err := core.GetKafkaClient(utCtxt, core.KafkaConnectParams{
		BootstrapServers: getUnitTestKafkaServers(t),
		ConnectTimeout:   time.Second * 15,
	})
	assert.Nil(err)
	defer client.Close(utCtxt)

	uut, err := GetTopicAdmin(client, "ut-topic-admin")
	assert.Nil(err)

	topicName := fmt.Sprintf("ut-admin-%s", uuid.NewString())
	param := TopicParam{Name: topicName, Partitions: 1, Replication: 1}

	// Case 0: topic parameters must be complete
	assert.NotNil(uut.CreateTopic(utCtxt, TopicParam{Name: topicName}, false))

	// Case 1: create a new topic
	assert.Nil(uut.CreateTopic(utCtxt, param, false))

	// Case 2: recreate without allowing existing
	assert.ErrorIs(uut.CreateTopic(utCtxt, param, false), ErrTopicExists)

	// Case 3: recreate with existing allowed
	assert.Nil(uut.CreateTopic(utCtxt, param, true))
}

func TestPublisherAgainstCluster(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	client, err := core.GetKafkaClient(utCtxt, core.KafkaConnectParams{
		BootstrapServers: getUnitTestKafkaServers(t),
		ConnectTimeout:   time.Second * 15,
	})
	assert.Nil(err)
	defer client.Close(utCtxt)

	admin, err := GetTopicAdmin(client, "ut-topic-admin")
	assert.Nil(err)

	topicName := fmt.Sprintf("ut-publish-%s", uuid.NewString())
	assert.Nil(admin.CreateTopic(
		utCtxt, TopicParam{Name: topicName, Partitions: 1, Replication: 1}, false,
	))

	uut, err := GetPublisher(client, "ut-publisher", time.Second*10)
	assert.Nil(err)
	defer func() {
		assert.Nil(uut.Close())
	}()

	// Case 0: publish with broker ACK
	assert.True(uut.Publish(utCtxt, topicName, "unit-test", uuid.NewString(), true))

	// Case 1: publish fire-and-forget
	assert.True(uut.Publish(utCtxt, topicName, "unit-test", uuid.NewString(), false))
}
