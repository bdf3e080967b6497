package jdbcsink

import (
	"context"

	"go.uber.org/zap"
)

// TableStructure reconciles destination tables with the fields incoming
// records require. It caches table definitions; a cached definition is
// invalidated and refreshed after every DDL statement this component
// executes. Concurrent external schema changes are not observed.
type TableStructure struct {
	dialect Dialect
	logger  *zap.Logger
	cache   map[string]*TableDefinition
}

// NewTableStructure returns a TableStructure for one dialect.
func NewTableStructure(dialect Dialect, logger *zap.Logger) *TableStructure {
	return &TableStructure{
		dialect: dialect,
		logger:  logger,
		cache:   make(map[string]*TableDefinition),
	}
}

// CreateOrAmendIfNecessary ensures the table exists and has at least the
// columns of the given metadata. Absent tables are created when
// auto-create permits it; missing columns are added as nullable columns
// when auto-evolve permits it. Otherwise a SchemaError is returned naming
// what is missing. Calling it again with the same metadata is a no-op.
func (s *TableStructure) CreateOrAmendIfNecessary(
	ctx context.Context,
	cfg Config,
	db Queryer,
	table TableID,
	meta *FieldsMetadata,
) error {
	def, err := s.TableDefinitionFor(ctx, db, table)
	if err != nil {
		return err
	}
	if def == nil {
		return s.create(ctx, cfg, db, table, meta)
	}
	return s.amendIfNecessary(ctx, cfg, db, table, def, meta)
}

// TableDefinitionFor returns the cached definition for the table,
// refreshing it from the database on a cache miss. A nil definition means
// the table does not exist.
func (s *TableStructure) TableDefinitionFor(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	if def, ok := s.cache[table.String()]; ok {
		return def, nil
	}
	return s.refresh(ctx, db, table)
}

func (s *TableStructure) refresh(ctx context.Context, db Queryer, table TableID) (*TableDefinition, error) {
	def, err := s.dialect.DescribeTable(ctx, db, table)
	if err != nil {
		return nil, err
	}
	if def == nil {
		delete(s.cache, table.String())
		return nil, nil
	}
	s.cache[table.String()] = def
	return def, nil
}

func (s *TableStructure) create(ctx context.Context, cfg Config, db Queryer, table TableID, meta *FieldsMetadata) error {
	if !cfg.AutoCreate {
		return &SchemaError{
			Table:   table.String(),
			Message: "table is missing and auto-create is disabled",
		}
	}
	query, err := s.dialect.BuildCreateTableStatement(table, meta.orderedFields())
	if err != nil {
		return err
	}
	s.logger.Info("Creating table",
		zap.String("table", table.String()),
		zap.String("sql", query))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return err
	}
	ddlOperationsTotal.WithLabelValues(table.String(), "create").Inc()
	_, err = s.refresh(ctx, db, table)
	return err
}

func (s *TableStructure) amendIfNecessary(
	ctx context.Context,
	cfg Config,
	db Queryer,
	table TableID,
	def *TableDefinition,
	meta *FieldsMetadata,
) error {
	var missing []SinkField
	for _, f := range meta.orderedFields() {
		if !def.HasColumn(f.Name) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = f.Name
	}
	if !cfg.AutoEvolve {
		return &SchemaError{
			Table:          table.String(),
			MissingColumns: names,
			Message:        "table lacks required columns and auto-evolve is disabled",
		}
	}

	// Added columns must be nullable so existing rows stay valid.
	for i := range missing {
		missing[i].Optional = true
		missing[i].PrimaryKey = false
	}
	statements, err := s.dialect.BuildAlterTableStatements(table, missing)
	if err != nil {
		return err
	}
	s.logger.Info("Amending table",
		zap.String("table", table.String()),
		zap.Strings("columns", names))
	for _, query := range statements {
		s.logger.Debug("Executing DDL", zap.String("sql", query))
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
		ddlOperationsTotal.WithLabelValues(table.String(), "alter").Inc()
	}
	_, err = s.refresh(ctx, db, table)
	return err
}
