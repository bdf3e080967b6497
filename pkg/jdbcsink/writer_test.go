package jdbcsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writerConfig() Config {
	cfg := NewConfig()
	cfg.Driver = "jdbcsinktest"
	cfg.PKMode = PKModeNone
	cfg.BatchSize = 100
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func topicRecord(topic string, offset int64) Record {
	return Record{
		Topic:  topic,
		Offset: offset,
		ValueSchema: structSchema(
			Field{Name: "name", Schema: &Schema{Type: TypeString}},
		),
		Value: map[string]any{"name": "x"},
	}
}

func TestWriter_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is a no-op", func(t *testing.T) {
		db := openFakeDB(t, "")
		w := NewWriter(writerConfig(), db, newFakeDialect(), zap.NewNop())
		assert.NoError(t, w.Write(ctx, nil))
	})

	t.Run("routes records to per-topic tables", func(t *testing.T) {
		db := openFakeDB(t, "")
		dialect := &fakeDialect{describe: staticTable("name")}
		w := NewWriter(writerConfig(), db, dialect, zap.NewNop())

		err := w.Write(ctx, []Record{
			topicRecord("books", 1),
			topicRecord("authors", 1),
			topicRecord("books", 2),
		})
		require.NoError(t, err)

		// One insert statement per destination table, first-seen order.
		require.Len(t, dialect.insertTables, 2)
		assert.Equal(t, TableID{Table: "books"}, dialect.insertTables[0])
		assert.Equal(t, TableID{Table: "authors"}, dialect.insertTables[1])
	})

	t.Run("applies the table name format", func(t *testing.T) {
		db := openFakeDB(t, "")
		dialect := &fakeDialect{describe: staticTable("name")}
		cfg := writerConfig()
		cfg.TableNameFormat = "sink_${topic}"
		w := NewWriter(cfg, db, dialect, zap.NewNop())

		err := w.Write(ctx, []Record{topicRecord("books", 1)})
		require.NoError(t, err)

		require.Len(t, dialect.insertTables, 1)
		assert.Equal(t, TableID{Table: "sink_books"}, dialect.insertTables[0])
	})

	t.Run("retries transient failures and gives up", func(t *testing.T) {
		db := openFakeDB(t, "connrefused")
		dialect := &fakeDialect{describe: staticTable("name")}
		cfg := writerConfig()
		cfg.MaxRetries = 2
		w := NewWriter(cfg, db, dialect, zap.NewNop())

		err := w.Write(ctx, []Record{topicRecord("books", 1)})
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("fatal failures are not retried", func(t *testing.T) {
		db := openFakeDB(t, "execerr")
		dialect := &fakeDialect{describe: staticTable("name")}
		w := NewWriter(writerConfig(), db, dialect, zap.NewNop())

		err := w.Write(ctx, []Record{topicRecord("books", 1)})
		assert.ErrorContains(t, err, "exec failed")
	})
}
