package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// auditLockClass namespaces the per-ring advisory locks so they cannot
// collide with other advisory-lock users. The value is arbitrary but must be
// consistent across all hub instances.
const auditLockClass = int32(740_611)

// PostgresLog persists the audit chains to PostgreSQL. It implements Log.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given connection pool.
// The pool serves reads; appends run on the caller's querier.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. It serialises appends per ring with a
// transaction-scoped advisory lock, reads the ring's chain tail, computes
// the new entry hash, and inserts — all on the caller's querier, so the
// entry commits or rolls back with the effect it describes.
func (l *PostgresLog) Append(ctx context.Context, q Querier, rec Record) (*Entry, error) {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}

	// Ring-scoped lock: unrelated rings never serialise against each other.
	// Released automatically when the enclosing transaction ends.
	if _, err := q.Exec(ctx,
		"SELECT pg_advisory_xact_lock($1, hashtext($2))",
		auditLockClass, rec.RingID.String(),
	); err != nil {
		return nil, fmt.Errorf("acquire audit lock: %w", err)
	}

	prevIdx := 0
	prevHash := GenesisHash
	err = q.QueryRow(ctx,
		"SELECT idx, entry_hash FROM audit_log WHERE ring_id = $1 ORDER BY idx DESC LIMIT 1",
		rec.RingID,
	).Scan(&prevIdx, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	// Truncate to Postgres timestamp precision so verification reformats the
	// stored value identically.
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &Entry{
		ID:        uuid.New(),
		RingID:    rec.RingID,
		Index:     prevIdx + 1,
		Action:    rec.Action,
		ActorDID:  rec.ActorDID,
		TargetDID: rec.TargetDID,
		Metadata:  rec.Metadata,
		Timestamp: now,
		DataHash:  sha256Sum(metaJSON),
		PrevHash:  prevHash,
	}
	entry.EntryHash = hashEntry(entry)

	if _, err := q.Exec(ctx,
		`INSERT INTO audit_log (id, ring_id, idx, action, actor_did, target_did, metadata, timestamp, data_hash, prev_hash, entry_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.RingID, entry.Index, entry.Action,
		entry.ActorDID, nullIfEmpty(entry.TargetDID), metaJSON,
		entry.Timestamp, entry.DataHash, entry.PrevHash, entry.EntryHash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.String("ring_id", rec.RingID.String()),
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
	)
	return entry, nil
}

// Query implements Log.
func (l *PostgresLog) Query(ctx context.Context, ringID uuid.UUID, f Filter) ([]*Entry, error) {
	query := `SELECT id, ring_id, idx, action, actor_did, COALESCE(target_did, ''), metadata, timestamp, data_hash, prev_hash, entry_hash
	          FROM audit_log WHERE ring_id = $1`
	args := []any{ringID}

	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.ActorDID != "" {
		args = append(args, f.ActorDID)
		query += fmt.Sprintf(" AND actor_did = $%d", len(args))
	}
	if f.TargetDID != "" {
		args = append(args, f.TargetDID)
		query += fmt.Sprintf(" AND target_did = $%d", len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	query += " ORDER BY timestamp DESC, idx DESC"
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verify implements Log. It streams the ring's rows ordered by idx and
// validates the chain. O(n) in chain length.
func (l *PostgresLog) Verify(ctx context.Context, ringID uuid.UUID) error {
	rows, err := l.pool.Query(ctx,
		`SELECT id, ring_id, idx, action, actor_did, COALESCE(target_did, ''), metadata, timestamp, data_hash, prev_hash, entry_hash
		 FROM audit_log WHERE ring_id = $1 ORDER BY idx ASC`, ringID,
	)
	if err != nil {
		return fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	prevHash := GenesisHash
	expectIdx := 1
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if curr.Index != expectIdx {
			return fmt.Errorf("audit chain gap at index %d (expected %d)", curr.Index, expectIdx)
		}
		if curr.PrevHash != prevHash {
			return fmt.Errorf("audit chain broken at index %d", curr.Index)
		}
		if curr.EntryHash != hashEntry(curr) {
			return fmt.Errorf("audit entry %d has invalid hash", curr.Index)
		}
		prevHash = curr.EntryHash
		expectIdx++
	}
	return rows.Err()
}

// Tip implements Log.
func (l *PostgresLog) Tip(ctx context.Context, ringID uuid.UUID) (string, error) {
	hash := GenesisHash
	err := l.pool.QueryRow(ctx,
		"SELECT entry_hash FROM audit_log WHERE ring_id = $1 ORDER BY idx DESC LIMIT 1",
		ringID,
	).Scan(&hash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("read audit tip: %w", err)
	}
	return hash, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var metaJSON []byte
	if err := row.Scan(
		&e.ID, &e.RingID, &e.Index, &e.Action,
		&e.ActorDID, &e.TargetDID, &metaJSON,
		&e.Timestamp, &e.DataHash, &e.PrevHash, &e.EntryHash,
	); err != nil {
		return nil, fmt.Errorf("scan audit row: %w", err)
	}
	if len(metaJSON) > 0 && string(metaJSON) != "null" {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
