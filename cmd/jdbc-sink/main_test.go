package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/streamhouse/kafka-jdbc-sink/pkg/jdbcsink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jdbc-sink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
brokers:
  - localhost:9092
topics:
  - library
group: library-sink
metricsAddr: ":9090"
sink:
  driver: sqlite
  dsn: /tmp/sink.db
  batchSize: 100
  insertMode: upsert
  pkMode: record_key
  pkFields: [id]
  autoCreate: true
`)
		cfg, err := loadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
		assert.Equal(t, []string{"library"}, cfg.Topics)
		assert.Equal(t, "library-sink", cfg.Group)
		assert.Equal(t, ":9090", cfg.MetricsAddr)

		sinkJSON, err := json.Marshal(cfg.Sink)
		require.NoError(t, err)
		sinkCfg, err := jdbcsink.ParseConfig(sinkJSON)
		require.NoError(t, err)
		assert.Equal(t, 100, sinkCfg.BatchSize)
		assert.Equal(t, jdbcsink.InsertModeUpsert, sinkCfg.InsertMode)
		assert.Equal(t, jdbcsink.PKModeRecordKey, sinkCfg.PKMode)
		assert.Equal(t, []string{"id"}, sinkCfg.PKFields)
		assert.True(t, sinkCfg.AutoCreate)
	})

	t.Run("default group", func(t *testing.T) {
		path := writeConfig(t, "brokers: [localhost:9092]\ntopics: [library]\n")
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "jdbc-sink", cfg.Group)
	})

	t.Run("missing brokers", func(t *testing.T) {
		path := writeConfig(t, "topics: [library]\n")
		_, err := loadConfig(path)
		assert.ErrorContains(t, err, "broker")
	})

	t.Run("missing topics", func(t *testing.T) {
		path := writeConfig(t, "brokers: [localhost:9092]\n")
		_, err := loadConfig(path)
		assert.ErrorContains(t, err, "topic")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestDecodeRecord(t *testing.T) {
	key := []byte(`{"schema": {"type": "int64", "optional": false}, "payload": 7}`)
	value := []byte(`{
		"schema": {
			"type": "struct",
			"fields": [{"type": "string", "optional": false, "field": "name"}]
		},
		"payload": {"name": "dune"}
	}`)

	t.Run("schema'd key and value", func(t *testing.T) {
		rec, err := decodeRecord(&kgo.Record{
			Topic:     "library",
			Partition: 2,
			Offset:    9,
			Key:       key,
			Value:     value,
		})
		require.NoError(t, err)

		assert.Equal(t, "library", rec.Topic)
		assert.Equal(t, int32(2), rec.Partition)
		assert.Equal(t, int64(9), rec.Offset)
		require.NotNil(t, rec.KeySchema)
		assert.Equal(t, jdbcsink.TypeInt64, rec.KeySchema.Type)
		require.NotNil(t, rec.ValueSchema)
		assert.Equal(t, jdbcsink.TypeStruct, rec.ValueSchema.Type)
		assert.False(t, rec.IsTombstone())
	})

	t.Run("empty value is a tombstone", func(t *testing.T) {
		rec, err := decodeRecord(&kgo.Record{Topic: "library", Key: key})
		require.NoError(t, err)
		assert.True(t, rec.IsTombstone())
	})

	t.Run("schemaless value is rejected", func(t *testing.T) {
		_, err := decodeRecord(&kgo.Record{
			Topic: "library",
			Key:   key,
			Value: []byte(`{"payload": {"name": "dune"}}`),
		})
		assert.ErrorContains(t, err, "no schema")
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := decodeRecord(&kgo.Record{Topic: "library", Key: []byte(`{oops`), Value: value})
		assert.ErrorContains(t, err, "key")
	})
}
