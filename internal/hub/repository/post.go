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

// PostRepository stores content references and their moderation state.
type PostRepository struct {
	db Querier
}

// NewPostRepository creates a PostRepository.
func NewPostRepository(db Querier) *PostRepository {
	return &PostRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *PostRepository) WithTx(q Querier) *PostRepository {
	return &PostRepository{db: q}
}

// Create inserts a content reference.
func (r *PostRepository) Create(ctx context.Context, p *model.PostRef) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO post_refs (
			id, ring_id, actor_did, submitted_by, uri, digest, submitted_at,
			status, moderated_at, moderated_by, moderation_note, pinned, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		p.ID, p.RingID, p.ActorDID, p.SubmittedBy, p.URI, p.Digest,
		p.SubmittedAt, p.Status, p.ModeratedAt, p.ModeratedBy,
		p.ModerationNote, p.Pinned, meta,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a post reference by id, with the ring slug joined in.
func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PostRef, error) {
	query := `
		SELECT ` + prefixedPostColumns("p") + `, rg.slug
		FROM post_refs p
		JOIN rings rg ON rg.id = p.ring_id
		WHERE p.id = $1`
	return r.scanOne(ctx, query, id)
}

// GetLiveByURI retrieves the pending or accepted reference a ring already
// holds for a URI. Rejected and removed references do not block resubmission.
func (r *PostRepository) GetLiveByURI(ctx context.Context, ringID uuid.UUID, uri string) (*model.PostRef, error) {
	query := `
		SELECT ` + prefixedPostColumns("p") + `, rg.slug
		FROM post_refs p
		JOIN rings rg ON rg.id = p.ring_id
		WHERE p.ring_id = $1 AND p.uri = $2 AND p.status IN ('PENDING', 'ACCEPTED')
		ORDER BY p.submitted_at DESC
		LIMIT 1`
	return r.scanOne(ctx, query, ringID, uri)
}

// Feed returns references across the given rings, pinned first then newest,
// narrowed by the filter. Callers resolve the scope to concrete ring ids
// before calling.
func (r *PostRepository) Feed(ctx context.Context, ringIDs []uuid.UUID, f model.FeedFilter) ([]*model.PostRef, error) {
	if len(ringIDs) == 0 {
		return nil, nil
	}
	f.Clamp()

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	query := `
		SELECT ` + prefixedPostColumns("p") + `, rg.slug
		FROM post_refs p
		JOIN rings rg ON rg.id = p.ring_id
		WHERE p.ring_id = ANY($1)
		  AND ($2::text IS NULL OR p.status = $2)
		  AND ($3 = '' OR p.actor_did = $3)
		  AND ($4::timestamptz IS NULL OR p.submitted_at >= $4)
		  AND ($5::timestamptz IS NULL OR p.submitted_at <= $5)
		  AND ($6::boolean IS NULL OR p.pinned = $6)
		ORDER BY p.pinned DESC, p.submitted_at DESC
		LIMIT $7 OFFSET $8`

	rows, err := r.db.Query(ctx, query,
		ringIDs, status, f.ActorDID, f.Since, f.Until, f.Pinned, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// Queue returns a ring's pending references oldest first, for moderation.
func (r *PostRepository) Queue(ctx context.Context, ringID uuid.UUID, limit, offset int) ([]*model.PostRef, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + prefixedPostColumns("p") + `, rg.slug
		FROM post_refs p
		JOIN rings rg ON rg.id = p.ring_id
		WHERE p.ring_id = $1 AND p.status = 'PENDING'
		ORDER BY p.submitted_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, ringID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// SetStatus records a moderation decision.
func (r *PostRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.PostStatus, moderatedBy, note string, at time.Time) error {
	query := `
		UPDATE post_refs SET
			status = $2, moderated_at = $3, moderated_by = $4, moderation_note = $5
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, status, at, moderatedBy, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPinned toggles the pinned flag.
func (r *PostRepository) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE post_refs SET pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AffectedRing identifies a ring touched by a bulk update.
type AffectedRing struct {
	ID   uuid.UUID
	Slug string
}

// RemoveByAuthorGlobal marks every live reference for one (author, uri) pair,
// in any ring, as removed in a single statement. It returns the distinct
// rings affected so the caller can audit each one in the same transaction.
func (r *PostRepository) RemoveByAuthorGlobal(ctx context.Context, actorDID, uri, removedBy, note string, at time.Time) ([]AffectedRing, error) {
	query := `
		UPDATE post_refs p SET
			status = 'REMOVED', moderated_at = $3, moderated_by = $4, moderation_note = $5
		FROM rings rg
		WHERE rg.id = p.ring_id AND p.actor_did = $1 AND p.uri = $2
		  AND p.status IN ('PENDING', 'ACCEPTED')
		RETURNING rg.id, rg.slug`

	rows, err := r.db.Query(ctx, query, actorDID, uri, at, removedBy, note)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var affected []AffectedRing
	for rows.Next() {
		var a AffectedRing
		if err := rows.Scan(&a.ID, &a.Slug); err != nil {
			return nil, err
		}
		if !seen[a.ID] {
			seen[a.ID] = true
			affected = append(affected, a)
		}
	}
	return affected, rows.Err()
}

// PublicFeed returns accepted references across all public rings, pinned
// first then newest.
func (r *PostRepository) PublicFeed(ctx context.Context, f model.FeedFilter) ([]*model.PostRef, error) {
	f.Clamp()
	query := `
		SELECT ` + prefixedPostColumns("p") + `, rg.slug
		FROM post_refs p
		JOIN rings rg ON rg.id = p.ring_id
		WHERE rg.visibility = 'PUBLIC' AND p.status = 'ACCEPTED'
		  AND ($1 = '' OR p.actor_did = $1)
		  AND ($2::timestamptz IS NULL OR p.submitted_at >= $2)
		  AND ($3::timestamptz IS NULL OR p.submitted_at <= $3)
		ORDER BY p.pinned DESC, p.submitted_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query, f.ActorDID, f.Since, f.Until, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// CountAcceptedByActor returns the actor's accepted reference count, hub wide.
func (r *PostRepository) CountAcceptedByActor(ctx context.Context, actorDID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM post_refs WHERE actor_did = $1 AND status = 'ACCEPTED'`
	if err := r.db.QueryRow(ctx, query, actorDID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accepted: %w", err)
	}
	return count, nil
}

// ActiveRingCount returns how many distinct rings the actor has accepted
// references in since the cutoff.
func (r *PostRepository) ActiveRingCount(ctx context.Context, actorDID string, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(DISTINCT ring_id) FROM post_refs
		WHERE actor_did = $1 AND status = 'ACCEPTED' AND submitted_at >= $2`
	if err := r.db.QueryRow(ctx, query, actorDID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("active ring count: %w", err)
	}
	return count, nil
}

func (r *PostRepository) scanOne(ctx context.Context, query string, args ...any) (*model.PostRef, error) {
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
	return scanPost(rows)
}

func scanPost(rows pgx.Rows) (*model.PostRef, error) {
	var (
		p       model.PostRef
		metaRaw []byte
	)
	err := rows.Scan(
		&p.ID, &p.RingID, &p.ActorDID, &p.SubmittedBy, &p.URI, &p.Digest,
		&p.SubmittedAt, &p.Status, &p.ModeratedAt, &p.ModeratedBy,
		&p.ModerationNote, &p.Pinned, &metaRaw, &p.RingSlug,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMeta(metaRaw, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPosts(rows pgx.Rows) ([]*model.PostRef, error) {
	var out []*model.PostRef
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func prefixedPostColumns(alias string) string {
	return alias + `.id, ` + alias + `.ring_id, ` + alias + `.actor_did, ` +
		alias + `.submitted_by, ` + alias + `.uri, ` + alias + `.digest, ` +
		alias + `.submitted_at, ` + alias + `.status, ` + alias + `.moderated_at, ` +
		alias + `.moderated_by, ` + alias + `.moderation_note, ` + alias + `.pinned, ` +
		alias + `.metadata`
}
