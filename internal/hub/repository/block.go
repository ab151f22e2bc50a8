package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/pkg/did"
)

const blockColumns = `
	id, ring_id, target_did, target_type, reason, blocked_by, blocked_at`

// BlockRepository stores per-ring block entries.
type BlockRepository struct {
	db Querier
}

// NewBlockRepository creates a BlockRepository.
func NewBlockRepository(db Querier) *BlockRepository {
	return &BlockRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *BlockRepository) WithTx(q Querier) *BlockRepository {
	return &BlockRepository{db: q}
}

// Create inserts a block. Blocking the same target twice in one ring
// surfaces as ErrDuplicate.
func (r *BlockRepository) Create(ctx context.Context, b *model.Block) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.BlockedAt.IsZero() {
		b.BlockedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO blocks (id, ring_id, target_did, target_type, reason, blocked_by, blocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.RingID, b.TargetDID, b.TargetType, b.Reason, b.BlockedBy, b.BlockedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a block by id.
func (r *BlockRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE id = $1`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanBlock(rows)
}

// ListByRing returns a ring's blocks, newest first.
func (r *BlockRepository) ListByRing(ctx context.Context, ringID uuid.UUID) ([]*model.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE ring_id = $1 ORDER BY blocked_at DESC`
	rows, err := r.db.Query(ctx, query, ringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// IsBlocked reports whether the DID, or the instance domain it belongs to,
// is blocked in the ring. Instance blocks match the domain segment of
// did:web identifiers.
func (r *BlockRepository) IsBlocked(ctx context.Context, ringID uuid.UUID, actorDID string) (bool, error) {
	domain := instanceDomain(actorDID)
	query := `
		SELECT EXISTS(
			SELECT 1 FROM blocks
			WHERE ring_id = $1 AND (
				(target_type IN ('USER', 'ACTOR') AND target_did = $2)
				OR (target_type = 'INSTANCE' AND target_did = $3 AND $3 != '')
			)
		)`
	var blocked bool
	if err := r.db.QueryRow(ctx, query, ringID, actorDID, domain).Scan(&blocked); err != nil {
		return false, fmt.Errorf("blocked lookup: %w", err)
	}
	return blocked, nil
}

// Delete removes a block.
func (r *BlockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBlock(rows pgx.Rows) (*model.Block, error) {
	var b model.Block
	err := rows.Scan(&b.ID, &b.RingID, &b.TargetDID, &b.TargetType, &b.Reason, &b.BlockedBy, &b.BlockedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// instanceDomain extracts the host from a did:web identifier; other methods
// have no instance to match.
func instanceDomain(didStr string) string {
	d, err := did.Parse(didStr)
	if err != nil {
		return ""
	}
	return d.Domain()
}
