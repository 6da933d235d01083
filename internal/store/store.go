// Package store persists regions, geometries and stations in a relational
// database described by a Schema. Upserts are applied record by record so a
// failing record never rolls back the records before it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/observability"
)

// Backend is the catalog and row access the store needs from a database.
// Implementations run each call on its own pooled connection.
type Backend interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, t Table, withReference bool) error
	DropTable(ctx context.Context, table string) error
	AddColumn(ctx context.Context, table string, c Column) error
	Columns(ctx context.Context, table string) ([]string, error)
	RowExists(ctx context.Context, table, column string, value any) (bool, error)
	// WriteRow inserts or updates the row whose key equals keyValue in a
	// single transaction and reports whether a row was inserted.
	WriteRow(ctx context.Context, table, key string, keyValue any, values Record) (bool, error)
	Select(ctx context.Context, table, key string, f Filter) ([]Record, error)
	Count(ctx context.Context, table, column string, value any) (int64, error)
}

// Options controls destructive behaviour.
type Options struct {
	// AllowDestructiveReset lets CreateTable drop and recreate an existing table.
	AllowDestructiveReset bool
}

// Store implements table provisioning, upserts and filtered reads.
type Store struct {
	backend Backend
	schema  Schema
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Store over backend for the given schema.
func New(backend Backend, schema Schema, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		backend: backend,
		schema:  schema,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Schema returns the descriptor the store was built with.
func (s *Store) Schema() Schema { return s.schema }

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// CreateTable creates t without its reference. An existing table is dropped
// and recreated when destructive reset is allowed; otherwise its data is left
// intact and ErrTableExists is returned.
func (s *Store) CreateTable(ctx context.Context, t Table) error {
	return s.createTable(ctx, t, false)
}

// CreateDependentTable creates t with a foreign key to its referenced table.
// A missing parent table is a schema error and nothing is created.
func (s *Store) CreateDependentTable(ctx context.Context, t Table) error {
	if t.Reference == nil {
		return fmt.Errorf("%w: table %q declares no reference", domain.ErrSchema, t.Name)
	}
	ok, err := s.backend.TableExists(ctx, t.Reference.Table)
	if err != nil {
		return fmt.Errorf("check parent table %q: %w", t.Reference.Table, err)
	}
	if !ok {
		s.logger.Error("parent table missing, dependent table not created",
			"table", t.Name, "parent", t.Reference.Table)
		return fmt.Errorf("%w: parent table %q of %q does not exist", domain.ErrSchema, t.Reference.Table, t.Name)
	}
	return s.createTable(ctx, t, true)
}

func (s *Store) createTable(ctx context.Context, t Table, withReference bool) error {
	exists, err := s.backend.TableExists(ctx, t.Name)
	if err != nil {
		return fmt.Errorf("check table %q: %w", t.Name, err)
	}
	if exists {
		if !s.opts.AllowDestructiveReset {
			return fmt.Errorf("%q: %w", t.Name, domain.ErrTableExists)
		}
		s.logger.Warn("dropping existing table", "table", t.Name)
		if err := s.backend.DropTable(ctx, t.Name); err != nil {
			return fmt.Errorf("drop table %q: %w", t.Name, err)
		}
	}
	if err := s.backend.CreateTable(ctx, t, withReference); err != nil {
		return fmt.Errorf("create table %q: %w", t.Name, err)
	}
	s.logger.Info("table created", "table", t.Name)
	return nil
}

// AddColumnIfAbsent adds column c to table unless it already exists.
func (s *Store) AddColumnIfAbsent(ctx context.Context, table string, c Column) error {
	cols, err := s.backend.Columns(ctx, table)
	if err != nil {
		return fmt.Errorf("list columns of %q: %w", table, err)
	}
	for _, name := range cols {
		if name == c.Name {
			return nil
		}
	}
	if err := s.backend.AddColumn(ctx, table, c); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
	}
	s.logger.Info("column added", "table", table, "column", c.Name)
	return nil
}

// Provision creates every schema table in dependency order and adds derived
// columns. Tables that already exist count as provisioned.
func (s *Store) Provision(ctx context.Context) error {
	for _, t := range s.schema.Tables() {
		var err error
		if t.Reference != nil {
			err = s.CreateDependentTable(ctx, t)
		} else {
			err = s.CreateTable(ctx, t)
		}
		switch {
		case errors.Is(err, domain.ErrTableExists):
			s.logger.Info("table already provisioned", "table", t.Name)
		case err != nil:
			return err
		}
		for _, c := range t.Derived {
			if err := s.AddColumnIfAbsent(ctx, t.Name, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Outcome is the effect of a successful upsert.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "none"
	}
}

// UpsertOptions controls key resolution, column checking and reference validation.
type UpsertOptions struct {
	// KeyValue is the explicit key. When nil the key is read from the record.
	KeyValue any
	// Reference, when set, requires the parent row to exist.
	Reference *Reference
	// Strict rejects records with unknown columns instead of dropping those fields.
	Strict bool
}

// RecordError is the failure of one record in a batch.
type RecordError struct {
	Index int
	Key   any
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (key %v): %v", e.Index, e.Key, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// UpsertResult summarises a batch upsert.
type UpsertResult struct {
	Inserted int
	Updated  int
	Errors   []RecordError
}

// Written is the number of records inserted or updated.
func (r UpsertResult) Written() int { return r.Inserted + r.Updated }

// Err joins the per-record errors, or returns nil.
func (r UpsertResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Upsert writes each record independently. Failures are collected per record
// and never undo records written before them.
func (s *Store) Upsert(ctx context.Context, table, key string, opts UpsertOptions, records ...Record) UpsertResult {
	var res UpsertResult
	known, err := s.knownColumns(ctx, table)
	if err != nil {
		for i, rec := range records {
			res.Errors = append(res.Errors, RecordError{Index: i, Key: recordKey(rec, key, opts), Err: err})
		}
		return res
	}
	for i, rec := range records {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, RecordError{Index: i, Key: recordKey(rec, key, opts), Err: ctx.Err()})
			continue
		}
		outcome, err := s.upsert(ctx, table, key, known, rec, opts)
		if err != nil {
			res.Errors = append(res.Errors, RecordError{Index: i, Key: recordKey(rec, key, opts), Err: err})
			continue
		}
		if outcome == Inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res
}

// UpsertOne writes a single record.
func (s *Store) UpsertOne(ctx context.Context, table, key string, rec Record, opts UpsertOptions) (Outcome, error) {
	known, err := s.knownColumns(ctx, table)
	if err != nil {
		return 0, err
	}
	return s.upsert(ctx, table, key, known, rec, opts)
}

func (s *Store) knownColumns(ctx context.Context, table string) (map[string]bool, error) {
	cols, err := s.backend.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %q: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %q does not exist", domain.ErrSchema, table)
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	return known, nil
}

func (s *Store) upsert(ctx context.Context, table, key string, known map[string]bool, rec Record, opts UpsertOptions) (Outcome, error) {
	outcome, err := s.resolveAndWrite(ctx, table, key, known, rec, opts)
	if err != nil {
		s.metrics.Upserts.WithLabelValues(table, "error").Inc()
		s.logger.Warn("upsert failed", "table", table, "key", recordKey(rec, key, opts), "error", err)
		return 0, err
	}
	s.metrics.Upserts.WithLabelValues(table, outcome.String()).Inc()
	return outcome, nil
}

func (s *Store) resolveAndWrite(ctx context.Context, table, key string, known map[string]bool, rec Record, opts UpsertOptions) (Outcome, error) {
	keyValue, err := resolveKey(rec, key, opts.KeyValue)
	if err != nil {
		return 0, err
	}
	if !known[key] {
		return 0, fmt.Errorf("%w: key %q is not a column of %q", domain.ErrSchema, key, table)
	}

	values := make(Record, len(rec))
	var unknown []string
	for col, v := range rec {
		if col == key {
			continue
		}
		if !known[col] {
			unknown = append(unknown, col)
			continue
		}
		values[col] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		if opts.Strict {
			return 0, &domain.UnrecognizedColumnError{Table: table, Columns: unknown}
		}
		s.logger.Debug("dropping unrecognized fields", "table", table, "key", keyValue, "columns", unknown)
	}

	if ref := opts.Reference; ref != nil {
		parent := values[ref.Column]
		if ref.Column == key {
			parent = keyValue
		}
		if parent == nil {
			return 0, fmt.Errorf("%w: %s has no value for %s", domain.ErrForeignKeyViolation, table, ref.Column)
		}
		ok, err := s.backend.RowExists(ctx, ref.Table, ref.ReferenceColumn, parent)
		if err != nil {
			return 0, fmt.Errorf("check parent %s.%s=%v: %w", ref.Table, ref.ReferenceColumn, parent, err)
		}
		if !ok {
			return 0, fmt.Errorf("%w: no %s row with %s=%v", domain.ErrForeignKeyViolation, ref.Table, ref.ReferenceColumn, parent)
		}
	}

	inserted, err := s.backend.WriteRow(ctx, table, key, keyValue, values)
	if err != nil {
		return 0, fmt.Errorf("write %s row %v: %w", table, keyValue, err)
	}
	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

// resolveKey requires exactly one of an explicit key value and a key field.
func resolveKey(rec Record, key string, explicit any) (any, error) {
	fromRecord := rec[key]
	switch {
	case explicit != nil && fromRecord != nil:
		return nil, fmt.Errorf("%w: %q given both explicitly and in the record", domain.ErrKeyResolution, key)
	case explicit == nil && fromRecord == nil:
		return nil, fmt.Errorf("%w: no value for %q", domain.ErrKeyResolution, key)
	case explicit != nil:
		return explicit, nil
	default:
		return fromRecord, nil
	}
}

func recordKey(rec Record, key string, opts UpsertOptions) any {
	if opts.KeyValue != nil {
		return opts.KeyValue
	}
	return rec[key]
}

// Fetch returns the rows of table matching f, ordered by the table key when
// the table is part of the schema.
func (s *Store) Fetch(ctx context.Context, table string, f Filter) ([]Record, error) {
	var key string
	if t, ok := s.schema.Table(table); ok {
		key = t.Key
	}
	rows, err := s.backend.Select(ctx, table, key, f)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", table, err)
	}
	return rows, nil
}

// FetchRegions returns district rows, restricted to kreisIDs when given.
func (s *Store) FetchRegions(ctx context.Context, kreisIDs []int64, where ...Condition) ([]Record, error) {
	return s.Fetch(ctx, s.schema.Regions.Name, kreisFilter(kreisIDs, where))
}

// FetchGeometries returns geometry rows, restricted to kreisIDs when given.
func (s *Store) FetchGeometries(ctx context.Context, kreisIDs []int64) ([]Record, error) {
	return s.Fetch(ctx, s.schema.Geometry.Name, kreisFilter(kreisIDs, nil))
}

// FetchStations returns station rows, restricted to kreisIDs when given.
func (s *Store) FetchStations(ctx context.Context, kreisIDs []int64, where ...Condition) ([]Record, error) {
	return s.Fetch(ctx, s.schema.Stations.Name, kreisFilter(kreisIDs, where))
}

func kreisFilter(kreisIDs []int64, where []Condition) Filter {
	f := Filter{Where: where}
	if kreisIDs != nil {
		f.Column = domain.ColKreisID
		f.Values = make([]any, len(kreisIDs))
		for i, id := range kreisIDs {
			f.Values[i] = id
		}
	}
	return f
}

// Count returns the number of rows where column equals value, or all rows
// when column is empty.
func (s *Store) Count(ctx context.Context, table, column string, value any) (int64, error) {
	n, err := s.backend.Count(ctx, table, column, value)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", table, err)
	}
	return n, nil
}
