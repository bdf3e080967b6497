package jdbcsink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the connector-facing surface: it owns the database handle, the
// dialect and the writer, and exposes batch puts whose successful return
// means every record in the batch was durably flushed.
type Sink struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	writer *Writer
	closed bool
}

// NewSink validates the configuration and builds a sink with a production
// logger. Start must be called before Put.
func NewSink(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Sink{
		config: cfg,
		logger: logger.With(zap.String("sink", "jdbc")),
	}, nil
}

// NewSinkWithLogger is NewSink with a caller-provided logger.
func NewSinkWithLogger(cfg Config, logger *zap.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{config: cfg, logger: logger}, nil
}

// Description returns a human-readable description.
func (s *Sink) Description() string {
	return fmt.Sprintf("jdbc (%s/%s)", s.config.Driver, s.config.DialectName())
}

// Start resolves the dialect, opens the database handle and verifies
// connectivity.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink already closed")
	}

	dialect, err := GetDialect(s.config.DialectName())
	if err != nil {
		return err
	}

	db, err := sql.Open(s.config.Driver, s.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	s.writer = NewWriter(s.config, db, dialect, s.logger)
	s.logger.Debug("Started",
		zap.String("driver", s.config.Driver),
		zap.String("dialect", dialect.Name()))
	return nil
}

// Put writes a batch of records and returns the records that were durably
// flushed. On success that is the whole batch minus nothing; on error no
// acknowledgement may happen, and the same records may be redelivered.
func (s *Sink) Put(ctx context.Context, records []Record) ([]Record, error) {
	s.mu.Lock()
	writer := s.writer
	closed := s.closed
	s.mu.Unlock()

	if closed || writer == nil {
		return nil, fmt.Errorf("sink is not started")
	}
	if len(records) == 0 {
		return nil, nil
	}
	if err := writer.Write(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Stop closes the database handle. Safe to call more than once.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
	}
	s.logger.Debug("Stopped")
	return nil
}
