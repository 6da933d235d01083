package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knifflig/ChargeApp/internal/domain"
)

const (
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"
	pgUndefinedColumn     = "42703"
)

// PostgresBackend implements Backend on a pgx connection pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// NewPostgresBackend wraps an existing pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Close releases every pooled connection.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *PostgresBackend) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		table).Scan(&exists)
	return exists, err
}

func (b *PostgresBackend) CreateTable(ctx context.Context, t Table, withReference bool) error {
	_, err := b.pool.Exec(ctx, createTableSQL(t, withReference))
	return mapError(err)
}

func (b *PostgresBackend) DropTable(ctx context.Context, table string) error {
	_, err := b.pool.Exec(ctx, dropTableSQL(table))
	return err
}

func (b *PostgresBackend) AddColumn(ctx context.Context, table string, c Column) error {
	_, err := b.pool.Exec(ctx, addColumnSQL(table, c))
	return mapError(err)
}

func (b *PostgresBackend) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
		table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (b *PostgresBackend) RowExists(ctx context.Context, table, column string, value any) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx, existsSQL(table, column), value).Scan(&exists)
	return exists, mapError(err)
}

func (b *PostgresBackend) WriteRow(ctx context.Context, table, key string, keyValue any, values Record) (bool, error) {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	var inserted bool
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockRowSQL(table, key), keyValue)
		if err != nil {
			return err
		}
		found := rows.Next()
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if !found {
			args := make([]any, 0, len(columns)+1)
			args = append(args, keyValue)
			for _, c := range columns {
				args = append(args, values[c])
			}
			_, err = tx.Exec(ctx, insertSQL(table, append([]string{key}, columns...)), args...)
			inserted = err == nil
			return err
		}
		if len(columns) == 0 {
			return nil
		}
		args := make([]any, 0, len(columns)+1)
		for _, c := range columns {
			args = append(args, values[c])
		}
		args = append(args, keyValue)
		_, err = tx.Exec(ctx, updateSQL(table, key, columns), args...)
		return err
	})
	return inserted, mapError(err)
}

func (b *PostgresBackend) Select(ctx context.Context, table, key string, f Filter) ([]Record, error) {
	sql, args, err := selectSQL(table, key, f)
	if err != nil {
		return nil, err
	}
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out, nil
}

func (b *PostgresBackend) Count(ctx context.Context, table, column string, value any) (int64, error) {
	var n int64
	var err error
	if column == "" {
		err = b.pool.QueryRow(ctx, countSQL(table, "")).Scan(&n)
	} else {
		err = b.pool.QueryRow(ctx, countSQL(table, column), value).Scan(&n)
	}
	return n, mapError(err)
}

// mapError translates engine error codes into the domain taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", domain.ErrForeignKeyViolation, pgErr.Message)
	case pgUndefinedTable, pgUndefinedColumn:
		return fmt.Errorf("%w: %s", domain.ErrSchema, pgErr.Message)
	default:
		return err
	}
}
