package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  guide_synced_topic_name: "guide.synced"
redis:
  host: "localhost"
  port: 6379
guidebox:
  http_addr: ":8080"
  kafka_consumer_group: "guide-api"
  current_status_ttl_seconds: 600
  bulk_sync_delay_millis: 200
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "guide.synced", cfg.Kafka.GuideSyncedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.GuideBox.HTTPAddr)
	require.Equal(t, 200, cfg.GuideBox.BulkSyncDelayMillis)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	require.Error(t, err)
}
