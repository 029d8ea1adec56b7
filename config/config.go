package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	GuideBox GuideBoxConfig `yaml:"guidebox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	GuideSyncedTopicName string `yaml:"guide_synced_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type GuideBoxConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	// Pause between carrier checks in POST /guides/sync-all.
	BulkSyncDelayMillis int `yaml:"bulk_sync_delay_millis"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Worker scheduling (optional). Defaults: in_progress 30..120 minutes,
	// pending 90 minutes, retry after failure 5 minutes.
	WorkerNextCheckInProgressMinSeconds int `yaml:"worker_next_check_in_progress_min_seconds"`
	WorkerNextCheckInProgressMaxSeconds int `yaml:"worker_next_check_in_progress_max_seconds"`
	WorkerNextCheckPendingSeconds       int `yaml:"worker_next_check_pending_seconds"`
	WorkerRetrySeconds                  int `yaml:"worker_retry_seconds"`

	CarrierEmulatorBaseURL string `yaml:"carrier_emulator_base_url"`
	CarrierEmulatorAPIKey  string `yaml:"carrier_emulator_api_key"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
