// Package sql implements the transactional batch loader for SQLite,
// PostgreSQL and MySQL.
//
// The target table is created from the first record when it does not exist.
// Each batch is written in one transaction through a prepared statement, so a
// batch is either fully committed or not at all.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	jsonx "github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/ajitpratap0/pipeflow/pkg/schema"
)

// SQLDestination loads batches into a single table.
type SQLDestination struct {
	dialect *Dialect
	db      *sql.DB
	table   string
	key     []string
	logger  *zap.Logger

	// known is the table schema once the table is ready
	known  *models.Schema
	warned map[string]bool

	batches int
	rows    int
}

// NewSQLDestination opens the database named by cfg. The table is created
// lazily on the first batch.
func NewSQLDestination(cfg config.LoadConfig, logger *zap.Logger) (*SQLDestination, error) {
	dialect, err := DialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sql loader requires table")
	}
	var key []string
	if cfg.Mode == config.ModeUpsert {
		if len(cfg.ConflictKey) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "upsert mode requires conflict_key")
		}
		key = append(key, cfg.ConflictKey...)
	}

	dsn, err := dataSource(dialect, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConnection, "open %s database", dialect.Name)
	}
	if dialect == SQLite {
		// one connection: ":memory:" databases are per connection and
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &SQLDestination{
		dialect: dialect,
		db:      db,
		table:   cfg.Table,
		key:     key,
		warned:  make(map[string]bool),
		logger: logger.With(
			zap.String("component", dialect.Name+"_destination"),
			zap.String("table", cfg.Table),
		),
	}, nil
}

func dataSource(d *Dialect, cfg config.LoadConfig) (string, error) {
	switch d {
	case SQLite:
		if cfg.Database == "" {
			return config.DefaultDatabase, nil
		}
		return cfg.Database, nil
	case Postgres:
		if _, err := pgx.ParseConfig(cfg.DSN); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
		}
		return cfg.DSN, nil
	case MySQL:
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql dsn")
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported sql dialect %q", d.Name)
}

// Load implements core.Loader.
func (d *SQLDestination) Load(ctx context.Context, batch []models.Record) (core.LoadResult, error) {
	if len(batch) == 0 {
		return core.LoadResult{}, nil
	}

	if err := d.ensureTable(ctx, batch[0]); err != nil {
		return core.BatchFailure(len(batch), err), err
	}

	if err := d.write(ctx, batch); err != nil {
		return core.BatchFailure(len(batch), err), err
	}

	d.batches++
	d.rows += len(batch)
	d.logger.Debug("batch committed", zap.Int("records", len(batch)), zap.Int("batch", d.batches))
	return core.LoadResult{Loaded: len(batch)}, nil
}

// ensureTable creates the table from first when needed and reads back the
// columns the table actually has.
func (d *SQLDestination) ensureTable(ctx context.Context, first models.Record) error {
	if d.known != nil {
		return nil
	}

	if err := d.db.PingContext(ctx); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "connect to %s", d.dialect.Name)
	}

	inferred := schema.InferRecord(d.table, first)
	for _, k := range d.key {
		if inferred.Index(k) < 0 {
			return errors.Newf(errors.ErrorTypeLoad, "conflict key %q is not a field of the first record", k)
		}
	}

	ddl := d.dialect.CreateTable(d.table, inferred, d.key)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "create table").WithDetail("sql", ddl)
	}

	known, err := d.columns(ctx)
	if err != nil {
		return err
	}
	for _, k := range d.key {
		if known.Index(k) < 0 {
			return errors.Newf(errors.ErrorTypeLoad, "table %s has no conflict key column %q", d.table, k)
		}
	}

	if changes := schema.DetectChanges(known, inferred); len(changes) > 0 {
		d.logger.Info("existing table differs from first record", zap.Int("changes", len(changes)))
	}

	d.known = &known
	d.logger.Info("table ready", zap.Strings("columns", known.FieldNames()))
	return nil
}

func (d *SQLDestination) columns(ctx context.Context) (models.Schema, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.SelectNone(d.table))
	if err != nil {
		return models.Schema{}, errors.Wrap(err, errors.ErrorTypeLoad, "read table columns")
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return models.Schema{}, errors.Wrap(err, errors.ErrorTypeLoad, "read table columns")
	}

	s := models.Schema{Name: d.table, Fields: make([]models.Field, 0, len(types))}
	for _, ct := range types {
		nullable, _ := ct.Nullable()
		s.Fields = append(s.Fields, models.Field{
			Name:     ct.Name(),
			Type:     fieldTypeOf(ct.DatabaseTypeName()),
			Nullable: nullable,
			Primary:  contains(d.key, ct.Name()),
		})
	}
	return s, rows.Err()
}

func (d *SQLDestination) write(ctx context.Context, batch []models.Record) (err error) {
	columns := d.known.FieldNames()
	rows := batch
	if len(d.key) > 0 {
		rows = lastWriteWins(batch, d.key)
	}

	args := make([][]any, len(rows))
	for i, rec := range rows {
		d.warnExtra(rec)
		if args[i], err = d.values(rec); err != nil {
			return err
		}
	}

	if err = ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCanceled, "load canceled")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := d.dialect.Insert(d.table, columns, d.key)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "prepare insert").WithDetail("sql", query)
	}
	defer stmt.Close()

	for i, a := range args {
		if _, err = stmt.ExecContext(ctx, a...); err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(ctx.Err(), errors.ErrorTypeCanceled, "load canceled")
			}
			return errors.Wrapf(err, errors.ErrorTypeLoad, "write row %d", i).WithDetail("table", d.table)
		}
	}

	if err = ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCanceled, "load canceled before commit")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "commit batch")
	}
	return nil
}

// values orders rec by the table's columns, converting each value to its
// column type. Missing fields are NULL.
func (d *SQLDestination) values(rec models.Record) ([]any, error) {
	out := make([]any, len(d.known.Fields))
	for i, f := range d.known.Fields {
		v, ok := rec.Get(f.Name)
		if !ok || v == nil {
			continue
		}
		cv, err := d.convert(v, f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeLoad, "field %s", f.Name).
				WithDetail("value", fmt.Sprint(v)).WithDetail("column_type", string(f.Type))
		}
		out[i] = cv
	}
	return out, nil
}

func (d *SQLDestination) convert(v any, ft models.FieldType) (any, error) {
	switch ft {
	case models.FieldTypeInt:
		return cast.ToInt64E(v)
	case models.FieldTypeFloat:
		return cast.ToFloat64E(v)
	case models.FieldTypeBool:
		return cast.ToBoolE(v)
	case models.FieldTypeDatetime:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		if d.dialect.TimeAsText {
			return t.Format(time.RFC3339Nano), nil
		}
		return t, nil
	case models.FieldTypeJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := jsonx.Marshal(v)
		return string(b), err
	default:
		return textValue(v)
	}
}

func textValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case models.Record, []any, map[string]any:
		b, err := jsonx.Marshal(t)
		return string(b), err
	default:
		return cast.ToStringE(v)
	}
}

// warnExtra logs once per field name that the table has no column for.
func (d *SQLDestination) warnExtra(rec models.Record) {
	for _, f := range schema.ExtraFields(*d.known, rec) {
		if d.warned[f] {
			continue
		}
		d.warned[f] = true
		d.logger.Warn("dropping field with no matching column", zap.String("field", f))
	}
}

// lastWriteWins collapses records that share a key, keeping the last one.
// Survivors keep their input order.
func lastWriteWins(batch []models.Record, key []string) []models.Record {
	last := make(map[string]int, len(batch))
	for i, rec := range batch {
		last[keyOf(rec, key)] = i
	}
	if len(last) == len(batch) {
		return batch
	}
	out := make([]models.Record, 0, len(last))
	for i, rec := range batch {
		if last[keyOf(rec, key)] == i {
			out = append(out, rec)
		}
	}
	return out
}

func keyOf(rec models.Record, key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = fmt.Sprintf("%T:%v", rec.Value(k), rec.Value(k))
	}
	return strings.Join(parts, "\x00")
}

// Schema returns the table schema, or nil before the first batch.
func (d *SQLDestination) Schema() *models.Schema {
	return d.known
}

// Close implements core.Loader.
func (d *SQLDestination) Close() error {
	d.logger.Info("sql destination closed", zap.Int("batches", d.batches), zap.Int("records", d.rows))
	if err := d.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "close database")
	}
	return nil
}
