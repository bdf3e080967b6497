package jdbcsink

import (
	"context"
	"database/sql"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Writer routes records to per-table buffers and owns the transaction
// boundary around a batch of writes. One Writer serves one worker; it
// performs no internal locking.
type Writer struct {
	config    Config
	db        *sql.DB
	dialect   Dialect
	structure *TableStructure
	logger    *zap.Logger
}

// NewWriter returns a Writer over an open database handle.
func NewWriter(cfg Config, db *sql.DB, dialect Dialect, logger *zap.Logger) *Writer {
	return &Writer{
		config:    cfg,
		db:        db,
		dialect:   dialect,
		structure: NewTableStructure(dialect, logger),
		logger:    logger,
	}
}

// Write persists the records inside one transaction, buffering per
// destination table and flushing every buffer before commit. Transient
// connection failures are retried with the whole batch; at-least-once
// semantics make the redelivery safe. Fatal errors (configuration,
// schema, count mismatch) are returned immediately.
func (w *Writer) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return retry.Do(
		func() error { return w.writeOnce(ctx, records) },
		retry.Context(ctx),
		retry.Attempts(w.config.MaxRetries+1),
		retry.Delay(w.config.RetryBackoff),
		retry.RetryIf(isRetryableError),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("Retrying batch after transient failure",
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

func (w *Writer) writeOnce(ctx context.Context, records []Record) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	buffers := make(map[TableID]*BufferedRecords)
	var order []TableID

	for _, record := range records {
		tableID := w.tableFor(record.Topic)
		buffer, ok := buffers[tableID]
		if !ok {
			buffer = NewBufferedRecords(w.config, tableID, w.dialect, w.structure, tx, w.logger)
			buffers[tableID] = buffer
			order = append(order, tableID)
		}
		if _, err := buffer.Add(ctx, record); err != nil {
			return err
		}
	}

	for _, tableID := range order {
		buffer := buffers[tableID]
		if _, err := buffer.Flush(ctx); err != nil {
			_ = buffer.Close()
			return err
		}
		if err := buffer.Close(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (w *Writer) tableFor(topic string) TableID {
	return TableID{Table: w.config.TableName(topic)}
}
