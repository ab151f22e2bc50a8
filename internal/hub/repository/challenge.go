package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
)

const challengeColumns = `
	id, ring_id, title, prompt, created_by, created_at, expires_at, active, metadata`

// ChallengeRepository stores ring challenges.
type ChallengeRepository struct {
	db Querier
}

// NewChallengeRepository creates a ChallengeRepository.
func NewChallengeRepository(db Querier) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *ChallengeRepository) WithTx(q Querier) *ChallengeRepository {
	return &ChallengeRepository{db: q}
}

// Create inserts a challenge.
func (r *ChallengeRepository) Create(ctx context.Context, c *model.Challenge) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO challenges (id, ring_id, title, prompt, created_by, created_at, expires_at, active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.Exec(ctx, query,
		c.ID, c.RingID, c.Title, c.Prompt, c.CreatedBy, c.CreatedAt,
		c.ExpiresAt, c.Active, meta)
	return err
}

// GetByID retrieves a challenge by id.
func (r *ChallengeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
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
	return scanChallenge(rows)
}

// ListByRing returns a ring's challenges, newest first. When activeOnly is
// set, deactivated and expired challenges are skipped.
func (r *ChallengeRepository) ListByRing(ctx context.Context, ringID uuid.UUID, activeOnly bool) ([]*model.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE ring_id = $1
		  AND ($2 = false OR (active = true AND (expires_at IS NULL OR expires_at > NOW())))
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ringID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetActive toggles a challenge.
func (r *ChallengeRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE challenges SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpired switches off challenges past their deadline and returns
// how many rows changed.
func (r *ChallengeRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE challenges SET active = false WHERE active = true AND expires_at IS NOT NULL AND expires_at < $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanChallenge(rows pgx.Rows) (*model.Challenge, error) {
	var (
		c       model.Challenge
		metaRaw []byte
	)
	err := rows.Scan(
		&c.ID, &c.RingID, &c.Title, &c.Prompt, &c.CreatedBy, &c.CreatedAt,
		&c.ExpiresAt, &c.Active, &metaRaw,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMeta(metaRaw, &c.Metadata); err != nil {
		return nil, err
	}
	return &c, nil
}
