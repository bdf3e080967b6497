package jdbcsink

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// BufferedRecords accumulates records bound for one destination table and
// flushes them as batched SQL statements. Every flushed batch is
// schema-homogeneous: a record whose schema pair differs from the bound
// one forces a flush of the current contents first.
//
// An instance is owned by a single worker; Add, Flush and Close must be
// called sequentially. The connection is exclusively owned by the buffer
// for the duration of one flush, and the caller owns the transaction
// boundary around it.
type BufferedRecords struct {
	config    Config
	tableID   TableID
	dialect   Dialect
	structure *TableStructure
	db        Queryer
	logger    *zap.Logger

	records          []Record
	tombstoneRecords []Record

	currentSchemaPair *SchemaPair
	fieldsMetadata    *FieldsMetadata
	tableDefinition   *TableDefinition

	stmt       BatchStatement
	binder     StatementBinder
	deleteStmt BatchStatement

	// prepare is the statement factory; tests substitute it.
	prepare func(ctx context.Context, db Queryer, query string) (BatchStatement, error)
}

// NewBufferedRecords returns an empty buffer for one destination table.
func NewBufferedRecords(
	cfg Config,
	tableID TableID,
	dialect Dialect,
	structure *TableStructure,
	db Queryer,
	logger *zap.Logger,
) *BufferedRecords {
	return &BufferedRecords{
		config:    cfg,
		tableID:   tableID,
		dialect:   dialect,
		structure: structure,
		db:        db,
		logger:    logger.With(zap.String("table", tableID.String())),
		prepare:   prepareBatch,
	}
}

// Add buffers one record, flushing first if its schema pair differs from
// the buffered records' pair and afterwards if the batch-size threshold is
// reached. It returns the records flushed as a result of this call, in
// their original order; callers use them for offset bookkeeping and must
// not acknowledge anything not returned.
func (b *BufferedRecords) Add(ctx context.Context, record Record) ([]Record, error) {
	// The tombstone policy is applied before any schema pair is bound:
	// a dropped or rejected tombstone must not force metadata extraction,
	// which a nil value schema cannot satisfy under some pk modes.
	if record.IsTombstone() && !b.config.DeleteEnabled {
		return b.handleDisabledTombstone(record)
	}

	pair := record.SchemaPair()

	if b.currentSchemaPair == nil {
		if err := b.reInitialize(ctx, pair); err != nil {
			return nil, err
		}
	}

	// Tombstones skip the schema pair check: their value schema carries no
	// columns to reconcile.
	if record.IsTombstone() || b.currentSchemaPair.Equal(pair) {
		if record.IsTombstone() {
			b.tombstoneRecords = append(b.tombstoneRecords, record)
		} else {
			b.records = append(b.records, record)
		}
		if len(b.records)+len(b.tombstoneRecords) >= b.config.BatchSize {
			b.logger.Debug("Flushing after reaching the configured batch size",
				zap.Int("records", len(b.records)),
				zap.Int("tombstoneRecords", len(b.tombstoneRecords)),
				zap.Int("batchSize", b.config.BatchSize))
			return b.Flush(ctx)
		}
		return nil, nil
	}

	// Schema changed: drain the current batch, rebind, and re-attempt the
	// add against the now-empty buffer.
	b.logger.Debug("Flushing buffered records due to unequal schema pairs")
	flushed, err := b.Flush(ctx)
	if err != nil {
		return nil, err
	}
	b.currentSchemaPair = nil
	more, err := b.Add(ctx, record)
	if err != nil {
		return nil, err
	}
	return append(flushed, more...), nil
}

// handleDisabledTombstone applies the configured policy to a tombstone
// arriving while delete support is disabled. Under TombstoneIgnore the
// record is dropped and reported as flushed so the caller acknowledges it;
// a redelivery after a crash would be dropped again, so this stays safe.
func (b *BufferedRecords) handleDisabledTombstone(record Record) ([]Record, error) {
	switch b.config.TombstonePolicy {
	case TombstoneIgnore:
		b.logger.Warn("Dropping tombstone record because delete support is disabled",
			zap.String("topic", record.Topic),
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset))
		return []Record{record}, nil
	default:
		return nil, newConfigError(b.tableID.String(),
			"received a tombstone record but delete support is disabled; "+
				"enable deletes or set the tombstone policy to %q", TombstoneIgnore)
	}
}

// reInitialize rebinds everything that depends on the record schema: the
// fields metadata, the destination table structure and its definition.
// It always completes before the first statement of the new schema epoch
// is prepared, so SQL is never built against a stale column set.
func (b *BufferedRecords) reInitialize(ctx context.Context, pair SchemaPair) error {
	meta, err := ExtractFieldsMetadata(
		b.tableID.Table,
		b.config.PKMode,
		b.config.PKFields,
		b.config.FieldsWhitelist,
		pair,
	)
	if err != nil {
		return err
	}
	if err := b.structure.CreateOrAmendIfNecessary(ctx, b.config, b.db, b.tableID, meta); err != nil {
		return err
	}
	def, err := b.structure.TableDefinitionFor(ctx, b.db, b.tableID)
	if err != nil {
		return err
	}
	b.currentSchemaPair = &pair
	b.fieldsMetadata = meta
	b.tableDefinition = def
	return nil
}

// Flush writes all buffered records. On success both sequences are
// cleared and the flushed records are returned, regular records first,
// each sequence in its original order. On failure the buffers are left
// intact so the caller may retry the same flush.
func (b *BufferedRecords) Flush(ctx context.Context) ([]Record, error) {
	if len(b.records) == 0 && len(b.tombstoneRecords) == 0 {
		return nil, nil
	}
	start := time.Now()

	if err := b.prepareStatements(ctx); err != nil {
		flushErrorsTotal.WithLabelValues(b.tableID.String()).Inc()
		return nil, err
	}
	if err := b.bindRecords(); err != nil {
		flushErrorsTotal.WithLabelValues(b.tableID.String()).Inc()
		return nil, err
	}
	if err := b.processBatch(ctx, b.stmt, b.records, "regular"); err != nil {
		flushErrorsTotal.WithLabelValues(b.tableID.String()).Inc()
		return nil, err
	}
	if err := b.processBatch(ctx, b.deleteStmt, b.tombstoneRecords, "tombstone"); err != nil {
		flushErrorsTotal.WithLabelValues(b.tableID.String()).Inc()
		return nil, err
	}

	flushed := make([]Record, 0, len(b.records)+len(b.tombstoneRecords))
	flushed = append(flushed, b.records...)
	flushed = append(flushed, b.tombstoneRecords...)

	recordsFlushedTotal.WithLabelValues(b.tableID.String(), "regular").Add(float64(len(b.records)))
	recordsFlushedTotal.WithLabelValues(b.tableID.String(), "tombstone").Add(float64(len(b.tombstoneRecords)))
	flushDuration.WithLabelValues(b.tableID.String()).Observe(time.Since(start).Seconds())

	b.records = b.records[:0]
	b.tombstoneRecords = b.tombstoneRecords[:0]

	b.logger.Debug("Flushed records",
		zap.Int("count", len(flushed)),
		zap.Duration("elapsed", time.Since(start)))
	return flushed, nil
}

// Close releases the prepared statements. The buffered records, if any,
// stay in memory.
func (b *BufferedRecords) Close() error {
	var firstErr error
	if b.stmt != nil {
		if err := b.stmt.Close(); err != nil {
			firstErr = err
		}
		b.stmt = nil
		b.binder = nil
	}
	if b.deleteStmt != nil {
		if err := b.deleteStmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.deleteStmt = nil
	}
	return firstErr
}

func (b *BufferedRecords) prepareStatements(ctx context.Context) error {
	if err := b.Close(); err != nil {
		return err
	}

	if len(b.records) > 0 {
		query, err := b.insertQuery()
		if err != nil {
			return err
		}
		b.logger.Debug("Prepared SQL for insert mode",
			zap.String("insertMode", string(b.config.InsertMode)),
			zap.Int("records", len(b.records)),
			zap.String("sql", query))
		stmt, err := b.prepare(ctx, b.db, query)
		if err != nil {
			return err
		}
		b.stmt = stmt
		b.binder = b.dialect.StatementBinder(
			b.config.PKMode, *b.currentSchemaPair, b.fieldsMetadata, b.config.InsertMode)
	}

	if len(b.tombstoneRecords) > 0 {
		query, err := b.deleteQuery()
		if err != nil {
			return err
		}
		b.logger.Debug("Prepared SQL for tombstones",
			zap.Int("tombstoneRecords", len(b.tombstoneRecords)),
			zap.String("sql", query))
		stmt, err := b.prepare(ctx, b.db, query)
		if err != nil {
			return err
		}
		b.deleteStmt = stmt
		if b.binder == nil {
			b.binder = b.dialect.StatementBinder(
				b.config.PKMode, *b.currentSchemaPair, b.fieldsMetadata, b.config.InsertMode)
		}
	}
	return nil
}

func (b *BufferedRecords) bindRecords() error {
	if len(b.records) > 0 {
		if b.config.InsertMode == InsertModeMulti {
			// All rows bind into one statement invocation at increasing
			// positional offsets, preserving input order.
			var args []any
			for _, record := range b.records {
				row, err := b.binder.BindRecord(record)
				if err != nil {
					return err
				}
				args = append(args, row...)
			}
			b.stmt.AddRow(args)
		} else {
			for _, record := range b.records {
				row, err := b.binder.BindRecord(record)
				if err != nil {
					return err
				}
				b.stmt.AddRow(row)
			}
		}
	}
	for _, record := range b.tombstoneRecords {
		row, err := b.binder.BindTombstoneRecord(record)
		if err != nil {
			return err
		}
		b.deleteStmt.AddRow(row)
	}
	return nil
}

func (b *BufferedRecords) processBatch(ctx context.Context, stmt BatchStatement, batch []Record, recordType string) error {
	if len(batch) == 0 || stmt == nil {
		return nil
	}
	results, err := stmt.Execute(ctx)
	if err != nil {
		return err
	}
	return b.verifySuccessfulExecutions(results, batch, recordType)
}

// verifySuccessfulExecutions applies the per-batch correctness contract:
// if every result carries a normal count, the sum must equal the batch
// size under INSERT and MULTI modes; a shortfall under UPSERT and UPDATE
// is legitimate (an update matching zero rows) and only logged. If any
// result carries the no-info signal the sum check is skipped entirely.
func (b *BufferedRecords) verifySuccessfulExecutions(results []ExecResult, batch []Record, recordType string) error {
	var total int64
	noInfo := false
	for _, r := range results {
		if r.NoInfo {
			noInfo = true
		} else {
			total += r.Rows
		}
	}

	if !noInfo && total != int64(len(batch)) {
		switch b.config.InsertMode {
		case InsertModeInsert, InsertModeMulti:
			return &CountMismatchError{
				Table:      b.tableID.String(),
				RecordType: recordType,
				Expected:   len(batch),
				Actual:     total,
			}
		case InsertModeUpsert, InsertModeUpdate:
			b.logger.Debug("Update count did not match the number of records",
				zap.String("insertMode", string(b.config.InsertMode)),
				zap.String("recordType", recordType),
				zap.Int("records", len(batch)),
				zap.Int64("updateCount", total))
		}
	}
	if noInfo {
		b.logger.Info("Rows were written but no affected-row count is available",
			zap.String("insertMode", string(b.config.InsertMode)),
			zap.String("recordType", recordType),
			zap.Int("records", len(batch)))
	}
	return nil
}

func (b *BufferedRecords) insertQuery() (string, error) {
	keyColumns := b.asColumns(b.fieldsMetadata.KeyFieldNames)
	nonKeyColumns := b.asColumns(b.fieldsMetadata.NonKeyFieldNames)

	switch b.config.InsertMode {
	case InsertModeInsert:
		return b.dialect.BuildInsertStatement(b.tableID, b.tableDefinition, keyColumns, nonKeyColumns)
	case InsertModeMulti:
		query, err := b.dialect.BuildMultiInsertStatement(
			b.tableID, b.tableDefinition, len(b.records), keyColumns, nonKeyColumns)
		if errors.Is(err, ErrUnsupported) {
			return "", newConfigError(b.tableID.String(),
				"write in %s mode is not supported with the %s dialect",
				InsertModeMulti, b.dialect.Name())
		}
		return query, err
	case InsertModeUpsert:
		if len(keyColumns) == 0 {
			return "", newConfigError(b.tableID.String(),
				"write in %s mode requires key field names to be known, check the primary key configuration",
				InsertModeUpsert)
		}
		query, err := b.dialect.BuildUpsertStatement(b.tableID, b.tableDefinition, keyColumns, nonKeyColumns)
		if errors.Is(err, ErrUnsupported) {
			return "", newConfigError(b.tableID.String(),
				"write in %s mode is not supported with the %s dialect",
				InsertModeUpsert, b.dialect.Name())
		}
		return query, err
	case InsertModeUpdate:
		query, err := b.dialect.BuildUpdateStatement(b.tableID, b.tableDefinition, keyColumns, nonKeyColumns)
		if errors.Is(err, ErrUnsupported) {
			return "", newConfigError(b.tableID.String(),
				"write in %s mode is not supported with the %s dialect",
				InsertModeUpdate, b.dialect.Name())
		}
		return query, err
	default:
		return "", newConfigError(b.tableID.String(), "invalid insert mode: %q", b.config.InsertMode)
	}
}

func (b *BufferedRecords) deleteQuery() (string, error) {
	keyColumns := b.asColumns(b.fieldsMetadata.KeyFieldNames)
	query, err := b.dialect.BuildDeleteStatement(b.tableID, keyColumns)
	if errors.Is(err, ErrUnsupported) {
		return "", newConfigError(b.tableID.String(),
			"deletes are not supported with the %s dialect", b.dialect.Name())
	}
	return query, err
}

func (b *BufferedRecords) asColumns(names []string) []ColumnID {
	columns := make([]ColumnID, 0, len(names))
	for _, name := range names {
		columns = append(columns, ColumnID{Table: b.tableID, Name: name})
	}
	return columns
}
