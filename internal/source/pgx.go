package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tunes the Postgres connection pool
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolOptions returns pool settings suited to batch loads
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        8,
		MinConns:        1,
		MaxConnIdleTime: 5 * time.Minute,
		MaxConnLifetime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// ConnectPostgres parses dsn, opens a pool and pings it
func ConnectPostgres(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgxpool config: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// PgxBackend serves deferred queries from a Postgres pool
type PgxBackend struct {
	pool *pgxpool.Pool
}

// NewPgxBackend wraps an open pool
func NewPgxBackend(pool *pgxpool.Pool) *PgxBackend {
	return &PgxBackend{pool: pool}
}

// Close releases the pool
func (b *PgxBackend) Close() {
	if b != nil && b.pool != nil {
		b.pool.Close()
	}
}

// Fetch implements Backend
func (b *PgxBackend) Fetch(ctx context.Context, stmt Statement) (*Table, error) {
	if b == nil || b.pool == nil {
		return nil, fmt.Errorf("postgres backend is not configured")
	}

	fields, err := b.columns(ctx, stmt.Table)
	if err != nil {
		return nil, err
	}
	have := make([]string, len(fields))
	for i, f := range fields {
		have[i] = f.Name
	}
	if missing := missingColumns(stmt.Columns, have); len(missing) > 0 {
		return nil, schemaErrorFor(missing)
	}

	if len(stmt.Assets) == 0 {
		return NewTable(stmt.Columns...), nil
	}

	op := ""
	if !stmt.Until.IsZero() && isDateOID(knowledgeOID(fields, stmt.KnowledgeColumn)) {
		op = "<"
	}
	query := buildSelect(stmt, func(n int) string { return "$" + strconv.Itoa(n) }, op, "ctid")
	args := make([]any, 0, len(stmt.Assets)+1)
	for _, a := range stmt.Assets {
		args = append(args, int64(a))
	}
	if op != "" {
		// exclusive next-day bound works for date and timestamp columns
		args = append(args, stmt.Until.AddDate(0, 0, 1))
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := NewTable(stmt.Columns...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read event row: %w", err)
		}
		for i, v := range values {
			values[i] = fromPgtype(v)
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

func (b *PgxBackend) columns(ctx context.Context, table string) ([]pgconn.FieldDescription, error) {
	rows, err := b.pool.Query(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	fields := append([]pgconn.FieldDescription(nil), rows.FieldDescriptions()...)
	return fields, rows.Err()
}

func knowledgeOID(fields []pgconn.FieldDescription, column string) uint32 {
	for _, f := range fields {
		if f.Name == column {
			return f.DataTypeOID
		}
	}
	return 0
}

// isDateOID reports whether a column compares by calendar time. Text
// columns are filtered after the fetch instead.
func isDateOID(oid uint32) bool {
	switch oid {
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return true
	}
	return false
}

// fromPgtype unwraps pgx values the normalizer does not know about
func fromPgtype(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time
	default:
		return v
	}
}
