package core

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/segmentio/kafka-go"
	"github.com/vulcanapp/vulcan/common"
)

// KafkaConnectParams Kafka connection parameter
type KafkaConnectParams struct {
	// BootstrapServers connect to the Kafka cluster through these endpoints
	BootstrapServers []string `validate:"required,min=1,dive,hostname_port"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
}

// KafkaClient Kafka client as message broker core
type KafkaClient struct {
	common.Component
	conn    *kafka.Conn
	servers []string
}

// Close close a Kafka client
func (k KafkaClient) Close(ctxt context.Context) {
	if err := k.conn.Close(); err != nil {
		log.WithError(err).WithFields(k.LogTags).Errorf("Kafka connection close failed")
	}
	log.WithFields(k.LogTags).Infof("Close Kafka client")
}

// Servers fetch the bootstrap endpoint list
func (k KafkaClient) Servers() []string {
	return k.servers
}

// Conn fetch the shared metadata connection
func (k KafkaClient) Conn() *kafka.Conn {
	return k.conn
}

// GetKafkaClient define a new Kafka broker core.
//
// Connectivity is verified eagerly by fetching the cluster controller; a
// cluster which can't be reached at startup is a fatal condition for the
// caller, there is no degraded mode without a broker.
func GetKafkaClient(ctxt context.Context, param KafkaConnectParams) (KafkaClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "kafka-backend",
		"instance":  param.BootstrapServers[0],
	}
	dialCtxt, cancel := context.WithTimeout(ctxt, param.ConnectTimeout)
	defer cancel()
	// Create the Kafka transport
	conn, err := kafka.DialContext(dialCtxt, "tcp", param.BootstrapServers[0])
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Kafka client connect failed")
		return KafkaClient{}, err
	}

	// Verify the cluster is actually serving by fetching broker metadata
	if _, err := conn.Controller(); err != nil {
		log.WithError(err).WithFields(logTags).Error(
			"Failed to fetch Kafka cluster metadata",
		)
		_ = conn.Close()
		return KafkaClient{}, err
	}
	log.WithFields(logTags).Info("Created Kafka client")

	return KafkaClient{
		Component: common.Component{LogTags: logTags},
		conn:      conn,
		servers:   param.BootstrapServers,
	}, nil
}
