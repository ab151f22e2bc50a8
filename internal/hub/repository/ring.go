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

const ringColumns = `
	id, slug, name, description, short_code, visibility, join_policy,
	post_policy, owner_did, parent_id, curator_note, banner_url, theme_color,
	badge_image_url, badge_image_high_res_url, metadata, policies,
	created_at, updated_at`

// RingRepository provides CRUD operations for rings.
type RingRepository struct {
	db Querier
}

// NewRingRepository creates a RingRepository.
func NewRingRepository(db Querier) *RingRepository {
	return &RingRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *RingRepository) WithTx(q Querier) *RingRepository {
	return &RingRepository{db: q}
}

// Create inserts a new ring. Slug and short-code collisions surface as
// ErrDuplicate.
func (r *RingRepository) Create(ctx context.Context, ring *model.Ring) error {
	meta, err := json.Marshal(ring.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	policies, err := json.Marshal(ring.Policies)
	if err != nil {
		return fmt.Errorf("marshal policies: %w", err)
	}

	if ring.ID == uuid.Nil {
		ring.ID = uuid.New()
	}
	now := time.Now().UTC()
	ring.CreatedAt = now
	ring.UpdatedAt = now

	query := `
		INSERT INTO rings (
			id, slug, name, description, short_code, visibility, join_policy,
			post_policy, owner_did, parent_id, curator_note, banner_url,
			theme_color, badge_image_url, badge_image_high_res_url, metadata,
			policies, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19
		)`

	_, err = r.db.Exec(ctx, query,
		ring.ID, ring.Slug, ring.Name, ring.Description, nullIfEmpty(ring.ShortCode),
		ring.Visibility, ring.JoinPolicy, ring.PostPolicy, ring.OwnerDID,
		ring.ParentID, ring.CuratorNote, ring.BannerURL, ring.ThemeColor,
		ring.BadgeImageURL, ring.BadgeImageHighResURL, meta, policies,
		ring.CreatedAt, ring.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetBySlug retrieves a ring by slug.
func (r *RingRepository) GetBySlug(ctx context.Context, slug string) (*model.Ring, error) {
	query := `SELECT ` + ringColumns + ` FROM rings WHERE slug = $1`
	return r.scanOne(ctx, query, slug)
}

// GetByID retrieves a ring by id.
func (r *RingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Ring, error) {
	query := `SELECT ` + ringColumns + ` FROM rings WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByShortCode retrieves a ring by its unique short code.
func (r *RingRepository) GetByShortCode(ctx context.Context, code string) (*model.Ring, error) {
	query := `SELECT ` + ringColumns + ` FROM rings WHERE short_code = $1`
	return r.scanOne(ctx, query, code)
}

// SlugExists reports whether a slug is taken.
func (r *RingRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rings WHERE slug = $1)`
	if err := r.db.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("slug exists: %w", err)
	}
	return exists, nil
}

// List returns rings matching the filter, newest first, with member and post
// counts populated. Private rings are excluded unless the viewer holds an
// active membership in them.
func (r *RingRepository) List(ctx context.Context, f model.RingFilter) ([]*model.Ring, error) {
	limit := clampLimit(f.Limit)
	query := `
		SELECT ` + prefixedRingColumns("r") + `,
			(SELECT COUNT(*) FROM memberships m WHERE m.ring_id = r.id AND m.status = 'ACTIVE'),
			(SELECT COUNT(*) FROM post_refs p WHERE p.ring_id = r.id AND p.status = 'ACCEPTED')
		FROM rings r
		WHERE ($1 = '' OR r.name ILIKE '%' || $1 || '%' OR r.slug ILIKE '%' || $1 || '%' OR r.description ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR r.visibility = $2)
		  AND (r.visibility != 'PRIVATE' OR EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.ring_id = r.id AND m.actor_did = $3 AND m.status = 'ACTIVE'))
		  AND ($4 = '' OR EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.ring_id = r.id AND m.actor_did = $4 AND m.status = 'ACTIVE'))
		ORDER BY r.created_at DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.db.Query(ctx, query,
		f.Search, string(f.Visibility), f.ViewerDID, f.MemberDID, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*model.Ring
	for rows.Next() {
		ring, err := scanRingWithCounts(rows)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, rows.Err()
}

// Trending returns public rings touched since the cutoff, most recently
// updated first, with member and post counts populated.
func (r *RingRepository) Trending(ctx context.Context, since time.Time, limit int) ([]*model.Ring, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + prefixedRingColumns("r") + `,
			(SELECT COUNT(*) FROM memberships m WHERE m.ring_id = r.id AND m.status = 'ACTIVE'),
			(SELECT COUNT(*) FROM post_refs p WHERE p.ring_id = r.id AND p.status = 'ACCEPTED')
		FROM rings r
		WHERE r.visibility = 'PUBLIC' AND r.updated_at >= $1
		ORDER BY r.updated_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*model.Ring
	for rows.Next() {
		ring, err := scanRingWithCounts(rows)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, rows.Err()
}

// Children returns the direct forks of a ring, oldest first.
func (r *RingRepository) Children(ctx context.Context, parentID uuid.UUID) ([]*model.Ring, error) {
	query := `SELECT ` + ringColumns + ` FROM rings WHERE parent_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*model.Ring
	for rows.Next() {
		ring, err := scanRing(rows)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, rows.Err()
}

// DescendantCount returns the number of rings in the subtree rooted at id,
// excluding the ring itself.
func (r *RingRepository) DescendantCount(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		WITH RECURSIVE descendants AS (
			SELECT id FROM rings WHERE parent_id = $1
			UNION ALL
			SELECT c.id FROM rings c JOIN descendants d ON c.parent_id = d.id
		)
		SELECT COUNT(*) FROM descendants`
	var count int
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("descendant count: %w", err)
	}
	return count, nil
}

// Update persists the mutable ring fields.
func (r *RingRepository) Update(ctx context.Context, ring *model.Ring) error {
	meta, err := json.Marshal(ring.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	policies, err := json.Marshal(ring.Policies)
	if err != nil {
		return fmt.Errorf("marshal policies: %w", err)
	}

	ring.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE rings SET
			name                     = $2,
			description              = $3,
			short_code               = $4,
			visibility               = $5,
			join_policy              = $6,
			post_policy              = $7,
			parent_id                = $8,
			curator_note             = $9,
			banner_url               = $10,
			theme_color              = $11,
			badge_image_url          = $12,
			badge_image_high_res_url = $13,
			metadata                 = $14,
			policies                 = $15,
			updated_at               = $16
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		ring.ID, ring.Name, ring.Description, nullIfEmpty(ring.ShortCode),
		ring.Visibility, ring.JoinPolicy, ring.PostPolicy, ring.ParentID,
		ring.CuratorNote, ring.BannerURL, ring.ThemeColor,
		ring.BadgeImageURL, ring.BadgeImageHighResURL, meta, policies,
		ring.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a ring. Roles, memberships, posts, audit entries, blocks,
// invitations, and challenges cascade via foreign keys.
func (r *RingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts populates MemberCount and PostCount on a single ring.
func (r *RingRepository) Counts(ctx context.Context, ring *model.Ring) error {
	query := `
		SELECT
			(SELECT COUNT(*) FROM memberships m WHERE m.ring_id = $1 AND m.status = 'ACTIVE'),
			(SELECT COUNT(*) FROM post_refs p WHERE p.ring_id = $1 AND p.status = 'ACCEPTED')`
	if err := r.db.QueryRow(ctx, query, ring.ID).Scan(&ring.MemberCount, &ring.PostCount); err != nil {
		return fmt.Errorf("ring counts: %w", err)
	}
	return nil
}

// Stats aggregates hub-wide totals.
func (r *RingRepository) Stats(ctx context.Context) (*model.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM rings),
			(SELECT COUNT(*) FROM rings WHERE visibility = 'PUBLIC'),
			(SELECT COUNT(*) FROM rings WHERE visibility = 'UNLISTED'),
			(SELECT COUNT(*) FROM rings WHERE visibility = 'PRIVATE'),
			(SELECT COUNT(*) FROM actors),
			(SELECT COUNT(*) FROM actors WHERE verified = true),
			(SELECT COUNT(*) FROM memberships),
			(SELECT COUNT(*) FROM memberships WHERE status = 'ACTIVE'),
			(SELECT COUNT(*) FROM post_refs),
			(SELECT COUNT(*) FROM post_refs WHERE status = 'ACCEPTED')`

	stats := &model.Stats{GeneratedAt: time.Now().UTC()}
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Rings.Total, &stats.Rings.Public, &stats.Rings.Unlisted, &stats.Rings.Private,
		&stats.Actors.Total, &stats.Actors.Verified,
		&stats.Memberships.Total, &stats.Memberships.Active,
		&stats.Posts.Total, &stats.Posts.Accepted,
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func (r *RingRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Ring, error) {
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
	return scanRing(rows)
}

func scanRing(rows pgx.Rows) (*model.Ring, error) {
	var (
		ring      model.Ring
		shortCode *string
		metaRaw   []byte
		polRaw    []byte
	)
	err := rows.Scan(
		&ring.ID, &ring.Slug, &ring.Name, &ring.Description, &shortCode,
		&ring.Visibility, &ring.JoinPolicy, &ring.PostPolicy, &ring.OwnerDID,
		&ring.ParentID, &ring.CuratorNote, &ring.BannerURL, &ring.ThemeColor,
		&ring.BadgeImageURL, &ring.BadgeImageHighResURL, &metaRaw, &polRaw,
		&ring.CreatedAt, &ring.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if shortCode != nil {
		ring.ShortCode = *shortCode
	}
	if err := unmarshalMeta(metaRaw, &ring.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalMeta(polRaw, &ring.Policies); err != nil {
		return nil, err
	}
	return &ring, nil
}

func scanRingWithCounts(rows pgx.Rows) (*model.Ring, error) {
	var (
		ring      model.Ring
		shortCode *string
		metaRaw   []byte
		polRaw    []byte
	)
	err := rows.Scan(
		&ring.ID, &ring.Slug, &ring.Name, &ring.Description, &shortCode,
		&ring.Visibility, &ring.JoinPolicy, &ring.PostPolicy, &ring.OwnerDID,
		&ring.ParentID, &ring.CuratorNote, &ring.BannerURL, &ring.ThemeColor,
		&ring.BadgeImageURL, &ring.BadgeImageHighResURL, &metaRaw, &polRaw,
		&ring.CreatedAt, &ring.UpdatedAt,
		&ring.MemberCount, &ring.PostCount,
	)
	if err != nil {
		return nil, err
	}
	if shortCode != nil {
		ring.ShortCode = *shortCode
	}
	if err := unmarshalMeta(metaRaw, &ring.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalMeta(polRaw, &ring.Policies); err != nil {
		return nil, err
	}
	return &ring, nil
}

func unmarshalMeta(raw []byte, dst *model.Meta) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}

// prefixedRingColumns qualifies the ring column list with a table alias.
func prefixedRingColumns(alias string) string {
	return alias + `.id, ` + alias + `.slug, ` + alias + `.name, ` + alias + `.description, ` +
		alias + `.short_code, ` + alias + `.visibility, ` + alias + `.join_policy, ` +
		alias + `.post_policy, ` + alias + `.owner_did, ` + alias + `.parent_id, ` +
		alias + `.curator_note, ` + alias + `.banner_url, ` + alias + `.theme_color, ` +
		alias + `.badge_image_url, ` + alias + `.badge_image_high_res_url, ` +
		alias + `.metadata, ` + alias + `.policies, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
