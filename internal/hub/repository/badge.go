package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
)

const badgeColumns = `
	id, membership_id, badge_data, issued_at, revoked_at, revocation_reason`

// BadgeRepository stores issued membership badges.
type BadgeRepository struct {
	db Querier
}

// NewBadgeRepository creates a BadgeRepository.
func NewBadgeRepository(db Querier) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *BadgeRepository) WithTx(q Querier) *BadgeRepository {
	return &BadgeRepository{db: q}
}

// Create inserts a badge.
func (r *BadgeRepository) Create(ctx context.Context, b *model.Badge) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.IssuedAt.IsZero() {
		b.IssuedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO badges (id, membership_id, badge_data, issued_at, revoked_at, revocation_reason)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.MembershipID, []byte(b.BadgeData), b.IssuedAt, b.RevokedAt, b.RevocationReason)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a badge by id.
func (r *BadgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByMembership retrieves the badge issued for a membership.
func (r *BadgeRepository) GetByMembership(ctx context.Context, membershipID uuid.UUID) (*model.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE membership_id = $1`
	return r.scanOne(ctx, query, membershipID)
}

// ListByActor returns badges issued to an actor across rings. The filter
// selects active, revoked, or all; badges for private rings are included
// only when includePrivate is set.
func (r *BadgeRepository) ListByActor(ctx context.Context, actorDID string, filter model.BadgeStatusFilter, includePrivate bool) ([]*model.Badge, error) {
	query := `
		SELECT ` + prefixedBadgeColumns("b") + `
		FROM badges b
		JOIN memberships m ON m.id = b.membership_id
		JOIN rings rg ON rg.id = m.ring_id
		WHERE m.actor_did = $1
		  AND ($2 = 'all' OR ($2 = 'active' AND b.revoked_at IS NULL) OR ($2 = 'revoked' AND b.revoked_at IS NOT NULL))
		  AND ($3 = true OR rg.visibility != 'PRIVATE')
		ORDER BY b.issued_at DESC`

	rows, err := r.db.Query(ctx, query, actorDID, string(filter), includePrivate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByRing returns the live badges of a ring's active members, newest
// first, for bulk regeneration.
func (r *BadgeRepository) ListByRing(ctx context.Context, ringID uuid.UUID) ([]*model.Badge, error) {
	query := `
		SELECT ` + prefixedBadgeColumns("b") + `
		FROM badges b
		JOIN memberships m ON m.id = b.membership_id
		WHERE m.ring_id = $1 AND m.status = 'ACTIVE' AND b.revoked_at IS NULL
		ORDER BY b.issued_at DESC`

	rows, err := r.db.Query(ctx, query, ringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Revoke marks a badge revoked. Revoking twice is a no-op on the original
// revocation.
func (r *BadgeRepository) Revoke(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	query := `
		UPDATE badges SET revoked_at = $2, revocation_reason = $3
		WHERE id = $1 AND revoked_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateData replaces the stored credential after a re-issue. A re-issued
// badge is live again: any prior revocation is cleared.
func (r *BadgeRepository) UpdateData(ctx context.Context, id uuid.UUID, data json.RawMessage, issuedAt time.Time) error {
	query := `
		UPDATE badges SET
			badge_data = $2, issued_at = $3, revoked_at = NULL, revocation_reason = ''
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, []byte(data), issuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BadgeRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Badge, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
	return scanBadge(rows)
}

func scanBadge(rows pgx.Rows) (*model.Badge, error) {
	var (
		b    model.Badge
		data []byte
	)
	err := rows.Scan(&b.ID, &b.MembershipID, &data, &b.IssuedAt, &b.RevokedAt, &b.RevocationReason)
	if err != nil {
		return nil, err
	}
	b.BadgeData = json.RawMessage(data)
	return &b, nil
}

func prefixedBadgeColumns(alias string) string {
	return alias + `.id, ` + alias + `.membership_id, ` + alias + `.badge_data, ` +
		alias + `.issued_at, ` + alias + `.revoked_at, ` + alias + `.revocation_reason`
}
