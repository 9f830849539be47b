package common

import "github.com/spf13/viper"

// ===============================================================================
// Kafka Related Config

// KafkaConfig defines parameters for connecting to the Kafka cluster
type KafkaConfig struct {
	// BootstrapServers is the list of Kafka bootstrap endpoints
	BootstrapServers []string `mapstructure:"bootstrap_servers" json:"bootstrap_servers" validate:"required,min=1,dive,hostname_port"`
	// ConnectTimeout is the max duration for connecting to Kafka in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// AckTimeout is the max duration to wait for a broker ACK in seconds
	AckTimeout int `mapstructure:"ack_timeout_sec" json:"ack_timeout_sec" validate:"gte=1"`
	// PollIdleTimeout is the consumer poll idle timeout in seconds
	PollIdleTimeout int `mapstructure:"poll_idle_timeout_sec" json:"poll_idle_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Mongo Related Config

// MongoConfig defines parameters for connecting to MongoDB
type MongoConfig struct {
	// ConnectionURI is the MongoDB connection URI
	ConnectionURI string `mapstructure:"connection_uri" json:"connection_uri" validate:"required,uri"`
	// DBName is the database holding the application collections
	DBName string `mapstructure:"db_name" json:"db_name" validate:"required"`
	// ConnectTimeout is the max duration for connecting to MongoDB in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Auth Related Config

// AuthConfig defines session credential parameters
type AuthConfig struct {
	// Domain is the application domain used in cookie naming
	Domain string `mapstructure:"domain" json:"domain" validate:"required"`
	// AccessTTL is the access credential lifespan in hours
	AccessTTL int `mapstructure:"access_ttl_hours" json:"access_ttl_hours" validate:"gte=1"`
	// RefreshTTL is the refresh credential lifespan in hours
	RefreshTTL int `mapstructure:"refresh_ttl_hours" json:"refresh_ttl_hours" validate:"gte=1"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config"`
}

// ===============================================================================
// Webserver Related Config

// WebserverEndpointConfig defines webserver API endpoint config
type WebserverEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the webserver APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// WebserverConfig defines configuration for the webserver
type WebserverConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the webserver
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required"`
	// Endpoints is the API endpoint config parameters for the webserver
	Endpoints WebserverEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required"`
}

// ===============================================================================
// Notifier Related Config

// NotifierConfig defines parameters for reaching the mail-relay service
type NotifierConfig struct {
	// Endpoint is the base URL of the notification relay service
	Endpoint string `mapstructure:"endpoint" json:"endpoint" validate:"required,url"`
	// RequestTimeout is the max duration of one relay call in seconds
	RequestTimeout int `mapstructure:"request_timeout_sec" json:"request_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Watcher Related Config

// WatcherConfig defines configuration for the topic watcher service
type WatcherConfig struct {
	// Topic is the topic the watcher drains
	Topic string `mapstructure:"topic" json:"topic" validate:"required"`
	// GroupID is the consumer group the watcher joins
	GroupID string `mapstructure:"group_id" json:"group_id" validate:"required"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config used by either the webserver
// or the watcher service
type SystemConfig struct {
	// Kafka are the Kafka related config parameters
	Kafka KafkaConfig `mapstructure:"kafka" json:"kafka" validate:"required"`
	// Mongo are the MongoDB related config parameters
	Mongo MongoConfig `mapstructure:"mongo" json:"mongo" validate:"required"`
	// Auth are the session credential config parameters
	Auth AuthConfig `mapstructure:"auth" json:"auth" validate:"required"`
	// Notifier are the mail-relay config parameters
	Notifier NotifierConfig `mapstructure:"notifier" json:"notifier" validate:"required"`
	// Webserver are the webserver configs
	Webserver *WebserverConfig `mapstructure:"webserver,omitempty" json:"webserver,omitempty" validate:"omitempty"`
	// Watcher are the topic watcher configs
	Watcher *WatcherConfig `mapstructure:"watcher,omitempty" json:"watcher,omitempty" validate:"omitempty"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default Kafka settings
	viper.SetDefault("kafka.bootstrap_servers", []string{"127.0.0.1:9092"})
	viper.SetDefault("kafka.connect_timeout_sec", 30)
	viper.SetDefault("kafka.ack_timeout_sec", 10)
	viper.SetDefault("kafka.poll_idle_timeout_sec", 10)

	// Default Mongo settings
	viper.SetDefault("mongo.connection_uri", "mongodb://127.0.0.1:27017")
	viper.SetDefault("mongo.db_name", "vulcan")
	viper.SetDefault("mongo.connect_timeout_sec", 30)

	// Default auth settings
	viper.SetDefault("auth.domain", "vulcan")
	viper.SetDefault("auth.access_ttl_hours", 48)
	viper.SetDefault("auth.refresh_ttl_hours", 48)

	// Default notifier settings
	viper.SetDefault("notifier.endpoint", "http://email-service:8010")
	viper.SetDefault("notifier.request_timeout_sec", 30)

	// Default webserver settings
	viper.SetDefault("webserver.endpoint_config.path_prefix", "/")
	viper.SetDefault("webserver.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("webserver.api_server.server_config.listen_port", 8000)
	viper.SetDefault("webserver.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("webserver.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("webserver.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"webserver.api_server.logging_config.request_id_header", "Vulcan-Request-ID",
	)
	viper.SetDefault(
		"webserver.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
			"Cookie", "Set-Cookie",
		},
	)

	// Default watcher settings
	viper.SetDefault("watcher.topic", "test_topic")
	viper.SetDefault("watcher.group_id", "test_topic")
}
