package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SqliteDB wraps a modernc.org/sqlite handle so it satisfies DB.
type SqliteDB struct {
	*sql.DB
}

// Ping checks the connection (DB interface).
func (d SqliteDB) Ping(ctx context.Context) error {
	return d.PingContext(ctx)
}

// OpenSqlite opens (or creates) an embedded SQLite database with foreign keys
// enforced on every connection, and applies the schema.
func OpenSqlite(ctx context.Context, path string) (SqliteDB, error) {
	conn, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return SqliteDB{}, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		conn.SetMaxOpenConns(1)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return SqliteDB{}, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return SqliteDB{DB: conn}, nil
}

func sqliteDSN(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas + "&_pragma=journal_mode(WAL)"
}

// inPlaceholders returns "?, ?, ?" for n arguments.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
