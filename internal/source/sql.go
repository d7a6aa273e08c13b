package source

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLBackend serves deferred queries from a database/sql handle using "?"
// placeholders. It is used with the pure-Go SQLite driver.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps an open database handle
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// OpenSQLite opens a SQLite database file read-mostly for event queries
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Close closes the underlying handle
func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Fetch implements Backend
func (b *SQLBackend) Fetch(ctx context.Context, stmt Statement) (*Table, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("sql backend is not configured")
	}

	have, err := b.columns(ctx, stmt.Table)
	if err != nil {
		return nil, err
	}
	if missing := missingColumns(stmt.Columns, have); len(missing) > 0 {
		return nil, schemaErrorFor(missing)
	}

	if len(stmt.Assets) == 0 {
		return NewTable(stmt.Columns...), nil
	}

	// SQLite keeps dates as free-form text that does not sort by day, so the
	// knowledge bound is left to the normalizer.
	query := buildSelect(stmt, func(int) string { return "?" }, "", "rowid")
	args := make([]any, 0, len(stmt.Assets))
	for _, a := range stmt.Assets {
		args = append(args, int64(a))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := NewTable(stmt.Columns...)
	for rows.Next() {
		cells := make([]any, len(stmt.Columns))
		ptrs := make([]any, len(cells))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out.Rows = append(out.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

func (b *SQLBackend) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// buildSelect renders the event query. Asset placeholders come first,
// followed by the knowledge-date bound compared with op. An empty op or a
// zero Until leaves the bound out. Rows come back in stmt.OrderColumn order,
// or in rowOrder when the statement names none.
func buildSelect(stmt Statement, placeholder func(n int) string, op, rowOrder string) string {
	cols := make([]string, len(stmt.Columns))
	for i, c := range stmt.Columns {
		cols[i] = quoteIdent(c)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(stmt.Table))
	sb.WriteString(" WHERE ")
	sb.WriteString(quoteIdent(stmt.AssetColumn))
	sb.WriteString(" IN (")
	for i := range stmt.Assets {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder(i + 1))
	}
	sb.WriteString(")")
	if op != "" && !stmt.Until.IsZero() {
		sb.WriteString(" AND ")
		sb.WriteString(quoteIdent(stmt.KnowledgeColumn))
		sb.WriteString(" " + op + " ")
		sb.WriteString(placeholder(len(stmt.Assets) + 1))
	}
	if stmt.OrderColumn != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(stmt.OrderColumn))
	} else if rowOrder != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(rowOrder)
	}
	return sb.String()
}

// quoteIdent quotes a possibly schema-qualified identifier
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
