package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CTIDashboard/go-api/cti/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, 50, cfg.History.Limit)
	assert.Equal(t, 10, cfg.History.PageSize)
	assert.Equal(t, JournalNone, cfg.Journal.Driver)
	assert.Equal(t, BrokerNone, cfg.Broker.Driver)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cti.yaml")
	doc := `
api:
  base_url: https://cti.example.com
  timeout: 15s
history:
  page_size: 25
journal:
  driver: SQLite
  path: /tmp/history.db
broker:
  driver: nats
  url: nats://localhost:4222
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cti.example.com", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 25, cfg.History.PageSize)
	assert.Equal(t, JournalSQLite, cfg.Journal.Driver)
	assert.Equal(t, BrokerNATS, cfg.Broker.Driver)
	assert.Equal(t, "cti.scan.completed", cfg.Broker.Subject)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CTI_API_URL", "http://backend:9000")
	t.Setenv("CTI_API_TIMEOUT", "5s")
	t.Setenv("CTI_JOURNAL", "valkey")
	t.Setenv("CTI_VALKEY_ADDR", "valkey:6379")

	cfg, err := LoadFromBytes([]byte("api:\n  base_url: http://ignored:1\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, JournalValkey, cfg.Journal.Driver)
	assert.Equal(t, "valkey:6379", cfg.Valkey.Address)
}

func TestBrokerRoute(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("broker:\n  driver: amqp\n  url: amqp://localhost\n"))
	require.NoError(t, err)
	assert.Equal(t, queue.Route{Exchange: "cti.scans"}, cfg.Broker.AMQPRoute())
	assert.False(t, cfg.Broker.AMQPRoute().WorkQueue())

	t.Setenv("CTI_BROKER_QUEUE", "cti.work")
	cfg, err = LoadFromBytes([]byte("broker:\n  driver: amqp\n  url: amqp://localhost\n  exchange: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, queue.Route{Exchange: "cti.scans", Queue: "cti.work"}, cfg.Broker.AMQPRoute())
	assert.True(t, cfg.Broker.AMQPRoute().WorkQueue())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"bad timeout":     "api:\n  timeout: -1s\n",
		"bad journal":     "journal:\n  driver: floppy\n",
		"broker no url":   "broker:\n  driver: amqp\n",
		"bad page size":   "history:\n  page_size: 0\n",
		"bad base url":    "api:\n  base_url: localhost\n",
		"malformed yaml":  "api: [\n",
		"unknown broker":  "broker:\n  driver: kafka\n  url: x\n",
		"postgres no dsn": "journal:\n  driver: postgres\n",
		"unknown store":   "snapshots:\n  store: tape\n",
	}
	for name, doc := range cases {
		_, err := LoadFromBytes([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
