package jdbcsink

import (
	"context"
	"database/sql"
)

// ExecResult is the outcome of one statement execution within a batch.
// NoInfo marks the driver's "statement succeeded but the affected-row
// count is unknown" signal; it is a normal occurrence with some drivers,
// not a failure.
type ExecResult struct {
	Rows   int64
	NoInfo bool
}

// BatchStatement is a prepared statement plus the rows bound to it. Rows
// are executed in bind order; Execute returns one result per bound row.
// A driver or transport failure aborts the batch and is returned as-is.
type BatchStatement interface {
	AddRow(args []any)
	Execute(ctx context.Context) ([]ExecResult, error)
	Close() error
}

// sqlBatchStatement emulates driver-level batching over database/sql by
// executing the prepared statement once per bound row. A result whose
// RowsAffected is unavailable maps to the NoInfo signal.
type sqlBatchStatement struct {
	stmt *sql.Stmt
	rows [][]any
}

func prepareBatch(ctx context.Context, db Queryer, query string) (BatchStatement, error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlBatchStatement{stmt: stmt}, nil
}

func (s *sqlBatchStatement) AddRow(args []any) {
	s.rows = append(s.rows, args)
}

func (s *sqlBatchStatement) Execute(ctx context.Context) ([]ExecResult, error) {
	results := make([]ExecResult, 0, len(s.rows))
	for _, args := range s.rows {
		res, err := s.stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			results = append(results, ExecResult{NoInfo: true})
			continue
		}
		results = append(results, ExecResult{Rows: n})
	}
	s.rows = s.rows[:0]
	return results, nil
}

func (s *sqlBatchStatement) Close() error {
	return s.stmt.Close()
}
