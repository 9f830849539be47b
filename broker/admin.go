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

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/core"
)

// TopicParam list parameters for defining a topic
type TopicParam struct {
	// Name is the topic name
	Name string `json:"name" validate:"required"`
	// Partitions number of partitions for the topic
	Partitions int `json:"partitions" validate:"required,gte=1"`
	// Replication replication factor for the topic
	Replication int `json:"replication" validate:"required,gte=1"`
}

// TopicAdmin administer topics on the Kafka cluster
type TopicAdmin interface {
	// CreateTopic create a new topic.
	//
	// Creation is idempotent when existOK is set: a pre-existing topic of the
	// same name is not an error. With existOK false a pre-existing topic is
	// reported through ErrTopicExists.
	CreateTopic(ctxt context.Context, param TopicParam, existOK bool) error
}

// ErrTopicExists the topic already exists on the cluster
var ErrTopicExists = errors.New("topic already exists")

// topicAdminImpl implements TopicAdmin
type topicAdminImpl struct {
	common.Component
	core     core.KafkaClient
	validate *validator.Validate
}

// GetTopicAdmin define TopicAdmin
func GetTopicAdmin(kafkaCore core.KafkaClient, instance string) (TopicAdmin, error) {
	logTags := log.Fields{
		"module":    "broker",
		"component": "topic-admin",
		"instance":  instance,
	}
	return topicAdminImpl{
		Component: common.Component{LogTags: logTags},
		core:      kafkaCore,
		validate:  validator.New(),
	}, nil
}

// CreateTopic create a new topic
func (a topicAdminImpl) CreateTopic(
	ctxt context.Context, param TopicParam, existOK bool,
) error {
	if err := a.validate.Struct(&param); err != nil {
		log.WithError(err).WithFields(a.LogTags).Errorf(
			"Unable to define new topic %s", param.Name,
		)
		return err
	}
	// The Conn level CreateTopics swallows per-topic TOPIC_ALREADY_EXISTS
	// responses, so the request level client is used instead to surface them
	client := kafka.Client{Addr: kafka.TCP(a.core.Servers()...)}
	resp, err := client.CreateTopics(ctxt, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             param.Name,
			NumPartitions:     param.Partitions,
			ReplicationFactor: param.Replication,
		}},
	})
	if err != nil {
		log.WithError(err).WithFields(a.LogTags).Errorf(
			"Unable to define new topic %s", param.Name,
		)
		return err
	}
	if topicErr := resp.Errors[param.Name]; topicErr != nil {
		if errors.Is(topicErr, kafka.TopicAlreadyExists) {
			if existOK {
				log.WithFields(a.LogTags).Debugf("Topic %s already defined", param.Name)
				return nil
			}
			return fmt.Errorf("%w: %s", ErrTopicExists, param.Name)
		}
		log.WithError(topicErr).WithFields(a.LogTags).Errorf(
			"Unable to define new topic %s", param.Name,
		)
		return topicErr
	}
	log.WithFields(a.LogTags).Infof("Defined new topic %s", param.Name)
	return nil
}
