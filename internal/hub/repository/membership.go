package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
)

// MembershipRepository manages ring memberships.
type MembershipRepository struct {
	db Querier
}

// NewMembershipRepository creates a MembershipRepository.
func NewMembershipRepository(db Querier) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *MembershipRepository) WithTx(q Querier) *MembershipRepository {
	return &MembershipRepository{db: q}
}

// Create inserts a membership. A second membership for the same actor in the
// same ring surfaces as ErrDuplicate.
func (r *MembershipRepository) Create(ctx context.Context, m *model.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO memberships (
			id, ring_id, actor_did, role_id, status, joined_at, left_at,
			leave_reason, application_message, badge_id, actor_name,
			avatar_url, profile_url, instance_domain, handle,
			profile_last_fetched, profile_source
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)`

	_, err := r.db.Exec(ctx, query,
		m.ID, m.RingID, m.ActorDID, m.RoleID, m.Status, m.JoinedAt, m.LeftAt,
		m.LeaveReason, m.ApplicationMessage, m.BadgeID, m.ActorName,
		m.AvatarURL, m.ProfileURL, m.InstanceDomain, m.Handle,
		m.ProfileLastFetched, m.ProfileSource,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a membership by id, with the role name joined in.
func (r *MembershipRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Membership, error) {
	query := `
		SELECT ` + prefixedMembershipColumns("m") + `, COALESCE(rr.name, '')
		FROM memberships m
		LEFT JOIN ring_roles rr ON rr.id = m.role_id
		WHERE m.id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByRingAndActor retrieves the membership an actor holds in a ring.
func (r *MembershipRepository) GetByRingAndActor(ctx context.Context, ringID uuid.UUID, actorDID string) (*model.Membership, error) {
	query := `
		SELECT ` + prefixedMembershipColumns("m") + `, COALESCE(rr.name, '')
		FROM memberships m
		LEFT JOIN ring_roles rr ON rr.id = m.role_id
		WHERE m.ring_id = $1 AND m.actor_did = $2`
	return r.scanOne(ctx, query, ringID, actorDID)
}

// ListByRing returns a ring's memberships, optionally filtered by status.
func (r *MembershipRepository) ListByRing(ctx context.Context, ringID uuid.UUID, status model.MembershipStatus, limit, offset int) ([]*model.Membership, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + prefixedMembershipColumns("m") + `, COALESCE(rr.name, '')
		FROM memberships m
		LEFT JOIN ring_roles rr ON rr.id = m.role_id
		WHERE m.ring_id = $1 AND ($2 = '' OR m.status = $2)
		ORDER BY m.joined_at ASC NULLS LAST, m.id ASC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, ringID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// ListByRole returns active members holding the named role, for moderator
// rosters and owner lookups.
func (r *MembershipRepository) ListByRole(ctx context.Context, ringID uuid.UUID, roleName string) ([]*model.Membership, error) {
	query := `
		SELECT ` + prefixedMembershipColumns("m") + `, rr.name
		FROM memberships m
		JOIN ring_roles rr ON rr.id = m.role_id
		WHERE m.ring_id = $1 AND rr.name = $2 AND m.status = 'ACTIVE'
		ORDER BY m.joined_at ASC NULLS LAST`

	rows, err := r.db.Query(ctx, query, ringID, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// ListByActor returns an actor's memberships paired with their rings,
// optionally filtered by status.
func (r *MembershipRepository) ListByActor(ctx context.Context, actorDID string, status model.MembershipStatus) ([]*model.MembershipWithRing, error) {
	query := `
		SELECT ` + prefixedMembershipColumns("m") + `, COALESCE(rr.name, ''),
			` + prefixedRingColumns("r") + `
		FROM memberships m
		JOIN rings r ON r.id = m.ring_id
		LEFT JOIN ring_roles rr ON rr.id = m.role_id
		WHERE m.actor_did = $1 AND ($2 = '' OR m.status = $2)
		ORDER BY m.joined_at DESC NULLS LAST, m.id ASC`

	rows, err := r.db.Query(ctx, query, actorDID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.MembershipWithRing
	for rows.Next() {
		m, ring, err := scanMembershipWithRing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.MembershipWithRing{Membership: m, Ring: ring})
	}
	return out, rows.Err()
}

// Update persists the membership's lifecycle and role fields.
func (r *MembershipRepository) Update(ctx context.Context, m *model.Membership) error {
	query := `
		UPDATE memberships SET
			role_id             = $2,
			status              = $3,
			joined_at           = $4,
			left_at             = $5,
			leave_reason        = $6,
			application_message = $7,
			badge_id            = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		m.ID, m.RoleID, m.Status, m.JoinedAt, m.LeftAt,
		m.LeaveReason, m.ApplicationMessage, m.BadgeID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBadge attaches an issued badge to a membership.
func (r *MembershipRepository) SetBadge(ctx context.Context, id, badgeID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE memberships SET badge_id = $2 WHERE id = $1`, id, badgeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive returns the number of active memberships in a ring.
func (r *MembershipRepository) CountActive(ctx context.Context, ringID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memberships WHERE ring_id = $1 AND status = 'ACTIVE'`
	if err := r.db.QueryRow(ctx, query, ringID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return count, nil
}

// CountActiveByActor returns how many rings an actor is an active member of.
func (r *MembershipRepository) CountActiveByActor(ctx context.Context, actorDID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memberships WHERE actor_did = $1 AND status = 'ACTIVE'`
	if err := r.db.QueryRow(ctx, query, actorDID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active by actor: %w", err)
	}
	return count, nil
}

// UpdateProfileFields refreshes the cached profile columns on every
// membership the actor holds, and returns how many rows changed.
func (r *MembershipRepository) UpdateProfileFields(ctx context.Context, actorDID string, p ProfileFields) (int, error) {
	query := `
		UPDATE memberships SET
			actor_name           = $2,
			avatar_url           = $3,
			profile_url          = $4,
			instance_domain      = $5,
			handle               = $6,
			profile_last_fetched = $7,
			profile_source       = $8
		WHERE actor_did = $1`

	tag, err := r.db.Exec(ctx, query,
		actorDID, p.ActorName, p.AvatarURL, p.ProfileURL,
		p.InstanceDomain, p.Handle, p.FetchedAt, p.Source,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ProfileFields is the cached profile snapshot written by the resolver.
type ProfileFields struct {
	ActorName      string
	AvatarURL      string
	ProfileURL     string
	InstanceDomain string
	Handle         string
	FetchedAt      time.Time
	Source         string
}

func (r *MembershipRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Membership, error) {
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
	return scanMembership(rows)
}

func scanMembership(rows pgx.Rows) (*model.Membership, error) {
	var m model.Membership
	err := rows.Scan(
		&m.ID, &m.RingID, &m.ActorDID, &m.RoleID, &m.Status, &m.JoinedAt,
		&m.LeftAt, &m.LeaveReason, &m.ApplicationMessage, &m.BadgeID,
		&m.ActorName, &m.AvatarURL, &m.ProfileURL, &m.InstanceDomain,
		&m.Handle, &m.ProfileLastFetched, &m.ProfileSource, &m.RoleName,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMemberships(rows pgx.Rows) ([]*model.Membership, error) {
	var out []*model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMembershipWithRing(rows pgx.Rows) (*model.Membership, *model.Ring, error) {
	var (
		m         model.Membership
		ring      model.Ring
		shortCode *string
		metaRaw   []byte
		polRaw    []byte
	)
	err := rows.Scan(
		&m.ID, &m.RingID, &m.ActorDID, &m.RoleID, &m.Status, &m.JoinedAt,
		&m.LeftAt, &m.LeaveReason, &m.ApplicationMessage, &m.BadgeID,
		&m.ActorName, &m.AvatarURL, &m.ProfileURL, &m.InstanceDomain,
		&m.Handle, &m.ProfileLastFetched, &m.ProfileSource, &m.RoleName,
		&ring.ID, &ring.Slug, &ring.Name, &ring.Description, &shortCode,
		&ring.Visibility, &ring.JoinPolicy, &ring.PostPolicy, &ring.OwnerDID,
		&ring.ParentID, &ring.CuratorNote, &ring.BannerURL, &ring.ThemeColor,
		&ring.BadgeImageURL, &ring.BadgeImageHighResURL, &metaRaw, &polRaw,
		&ring.CreatedAt, &ring.UpdatedAt,
	)
	if err != nil {
		return nil, nil, err
	}
	if shortCode != nil {
		ring.ShortCode = *shortCode
	}
	if err := unmarshalMeta(metaRaw, &ring.Metadata); err != nil {
		return nil, nil, err
	}
	if err := unmarshalMeta(polRaw, &ring.Policies); err != nil {
		return nil, nil, err
	}
	return &m, &ring, nil
}

func prefixedMembershipColumns(alias string) string {
	return alias + `.id, ` + alias + `.ring_id, ` + alias + `.actor_did, ` +
		alias + `.role_id, ` + alias + `.status, ` + alias + `.joined_at, ` +
		alias + `.left_at, ` + alias + `.leave_reason, ` + alias + `.application_message, ` +
		alias + `.badge_id, ` + alias + `.actor_name, ` + alias + `.avatar_url, ` +
		alias + `.profile_url, ` + alias + `.instance_domain, ` + alias + `.handle, ` +
		alias + `.profile_last_fetched, ` + alias + `.profile_source`
}
