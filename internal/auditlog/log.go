package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the database handle Append runs against. Both *pgxpool.Pool and
// pgx.Tx satisfy it; passing the transaction that carries the audited effect
// makes the entry atomic with that effect.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is the caller-supplied portion of an entry.
type Record struct {
	RingID    uuid.UUID
	Action    string
	ActorDID  string
	TargetDID string
	Metadata  map[string]any
}

// Filter narrows audit queries.
type Filter struct {
	Action    string
	ActorDID  string
	TargetDID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Log is the append-only, per-ring, hash-chained audit log. Both MemoryLog
// and PostgresLog implement it.
type Log interface {
	// Append chains a new entry onto the ring's log using the caller's
	// querier, normally the transaction the audited effect runs in.
	Append(ctx context.Context, q Querier, rec Record) (*Entry, error)

	// Query returns a ring's entries, newest first.
	Query(ctx context.Context, ringID uuid.UUID, f Filter) ([]*Entry, error)

	// Verify walks a ring's chain oldest-first and checks hash consistency.
	Verify(ctx context.Context, ringID uuid.UUID) error

	// Tip returns the ring's most recent entry hash, or GenesisHash for an
	// empty log.
	Tip(ctx context.Context, ringID uuid.UUID) (string, error)
}
