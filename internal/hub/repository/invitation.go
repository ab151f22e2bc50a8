package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
)

const invitationColumns = `
	id, ring_id, invitee_did, inviter_did, status, expires_at, created_at,
	responded_at, message`

// InvitationRepository manages ring invitations.
type InvitationRepository struct {
	db Querier
}

// NewInvitationRepository creates an InvitationRepository.
func NewInvitationRepository(db Querier) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *InvitationRepository) WithTx(q Querier) *InvitationRepository {
	return &InvitationRepository{db: q}
}

// Create inserts an invitation. A second pending invitation for the same
// invitee in the same ring surfaces as ErrDuplicate.
func (r *InvitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO invitations (
			id, ring_id, invitee_did, inviter_did, status, expires_at,
			created_at, responded_at, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		inv.ID, inv.RingID, inv.InviteeDID, inv.InviterDID, inv.Status,
		inv.ExpiresAt, inv.CreatedAt, inv.RespondedAt, inv.Message,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves an invitation by id.
func (r *InvitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetPending retrieves the pending invitation for an invitee in a ring.
func (r *InvitationRepository) GetPending(ctx context.Context, ringID uuid.UUID, inviteeDID string) (*model.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE ring_id = $1 AND invitee_did = $2 AND status = 'PENDING'`
	return r.scanOne(ctx, query, ringID, inviteeDID)
}

// ListByInvitee returns an actor's invitations, newest first, optionally
// filtered by status.
func (r *InvitationRepository) ListByInvitee(ctx context.Context, inviteeDID string, status model.InvitationStatus) ([]*model.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE invitee_did = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, inviteeDID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// ListByRing returns a ring's invitations, newest first.
func (r *InvitationRepository) ListByRing(ctx context.Context, ringID uuid.UUID) ([]*model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE ring_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// SetStatus records the invitee's response.
func (r *InvitationRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.InvitationStatus, respondedAt time.Time) error {
	query := `UPDATE invitations SET status = $2, responded_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, status, respondedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStale marks overdue pending invitations as expired and returns how
// many rows changed.
func (r *InvitationRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE invitations SET status = 'EXPIRED' WHERE status = 'PENDING' AND expires_at < $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *InvitationRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Invitation, error) {
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
	return scanInvitation(rows)
}

func scanInvitation(rows pgx.Rows) (*model.Invitation, error) {
	var inv model.Invitation
	err := rows.Scan(
		&inv.ID, &inv.RingID, &inv.InviteeDID, &inv.InviterDID, &inv.Status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.RespondedAt, &inv.Message,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanInvitations(rows pgx.Rows) ([]*model.Invitation, error) {
	var out []*model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
