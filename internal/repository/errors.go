package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrForeignKeyViolation is returned when a write is blocked because another row still references the target.
var ErrForeignKeyViolation = errors.New("foreign key violation")

// ErrCheckViolation is returned when a write breaks a CHECK constraint (e.g. the body length bounds).
var ErrCheckViolation = errors.New("check constraint violation")

// PostgreSQL SQLSTATE codes the repositories map onto sentinels.
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapPgError converts driver errors into the package sentinels, keeping the original in the chain.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case pgCheckViolation:
			return fmt.Errorf("%w: %w", ErrCheckViolation, err)
		}
	}
	return err
}

// mapSqliteError does the same for modernc.org/sqlite, whose errors are matched on their text.
func mapSqliteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	}
	return err
}

// IsTransient reports whether err is an I/O failure worth retrying.
// Constraint violations and missing rows are meaningful and never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForeignKeyViolation) || errors.Is(err, ErrCheckViolation) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 40001/40P01: serialization failure / deadlock
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
