package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPgError(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}
	check := &pgconn.PgError{Code: "23514", Message: "violates check constraint"}
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key"}

	assert.Nil(t, mapPgError(nil))
	assert.ErrorIs(t, mapPgError(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapPgError(fk), ErrForeignKeyViolation)
	assert.ErrorIs(t, mapPgError(fk), fk, "original error must stay in the chain")
	assert.ErrorIs(t, mapPgError(check), ErrCheckViolation)
	assert.Equal(t, unique, mapPgError(unique))
}

func TestMapSqliteError(t *testing.T) {
	assert.ErrorIs(t, mapSqliteError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapSqliteError(errors.New("constraint failed: FOREIGN KEY constraint failed (787)")), ErrForeignKeyViolation)
	assert.ErrorIs(t, mapSqliteError(errors.New("constraint failed: CHECK constraint failed: body (275)")), ErrCheckViolation)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"fk violation", fmt.Errorf("%w: boom", ErrForeignKeyViolation), false},
		{"check violation", fmt.Errorf("%w: boom", ErrCheckViolation), false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
