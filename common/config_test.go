package common

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperConfigParsing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()

	// Case 0: parse config with no defaults in place
	{
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 1: load the configs
	{
		var cfg SystemConfig
		InstallDefaultConfigValues()
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotPanics(func() {
			assert.Nil(validate.Struct(&cfg))
		})
		assert.NotNil(cfg.Webserver)
		assert.NotNil(cfg.Watcher)
		assert.Equal([]string{"127.0.0.1:9092"}, cfg.Kafka.BootstrapServers)
		assert.Equal(48, cfg.Auth.AccessTTL)
		assert.Equal(48, cfg.Auth.RefreshTTL)
	}

	// Case 2: invalid config
	{
		config := []byte(`---
webserver:
  api_server:
    server_config:
      listen_on: 1243`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 3: invalid config
	{
		config := []byte(`---
kafka:
  ack_timeout_sec: -10`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 4: valid custom config
	{
		config := []byte(`---
kafka:
  bootstrap_servers:
    - "kafka-0.testing.dev:9092"
    - "kafka-1.testing.dev:9092"
auth:
  domain: testapp
watcher:
  topic: payment_received
  group_id: payment-watcher`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal(
			[]string{"kafka-0.testing.dev:9092", "kafka-1.testing.dev:9092"},
			cfg.Kafka.BootstrapServers,
		)
		assert.Equal("testapp", cfg.Auth.Domain)
		assert.Equal("payment_received", cfg.Watcher.Topic)
	}
}
