// Package repository provides PostgreSQL access to the hub's entities.
//
// Every repository accepts a Querier, satisfied by both *pgxpool.Pool and
// pgx.Tx, and exposes WithTx so services can compose multi-repository
// operations inside one transaction.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	// Callers treat it as "the record already exists" and surface a conflict.
	ErrDuplicate = errors.New("record already exists")
)

const defaultLimit = 50

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation reports whether err is a postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
