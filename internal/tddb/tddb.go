// Package tddb implements the read-only proxy over the external TD
// task-tracking SQLite database (§6 `GET /api/td/*`). The TD reader's
// own query logic lives outside this daemon's core (§1); this package
// only opens the database read-only and exposes rows as JSON-friendly
// maps for the gateway to serve.
package tddb

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// DB wraps a read-only connection to the external task database.
type DB struct {
	conn *sql.DB
}

// Open opens path read-only and immutable: the daemon never writes to
// the TD database, only reflects it.
func Open(path string) (*DB, error) {
	dsn := "file:" + url.PathEscape(path) + "?mode=ro&immutable=1"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open td database %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping td database %s: %w", path, err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Query runs a read-only query and returns each row as a column-name →
// value map, preserving column order via the returned slice of keys.
func (d *DB) Query(query string, args ...any) (columns []string, rows []map[string]any, err error) {
	r, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("td query: %w", err)
	}
	defer r.Close()

	columns, err = r.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("td columns: %w", err)
	}

	for r.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("td scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = normalize(values[i])
		}
		rows = append(rows, row)
	}
	return columns, rows, r.Err()
}

// normalize converts driver-returned []byte (common for TEXT columns
// under this driver) into plain strings so JSON encoding doesn't
// base64-escape them.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
