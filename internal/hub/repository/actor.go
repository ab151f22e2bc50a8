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

const actorColumns = `
	id, did, name, type, instance_url, public_key, verified, trusted,
	is_admin, discovered_at, last_seen_at, metadata, avatar_url, profile_url,
	handle, profile_last_fetched`

// ActorRepository stores the DIDs the hub has seen.
type ActorRepository struct {
	db Querier
}

// NewActorRepository creates an ActorRepository.
func NewActorRepository(db Querier) *ActorRepository {
	return &ActorRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *ActorRepository) WithTx(q Querier) *ActorRepository {
	return &ActorRepository{db: q}
}

// Upsert registers a DID on first sight and refreshes last_seen_at and the
// verified flag afterwards. The stored row is returned.
func (r *ActorRepository) Upsert(ctx context.Context, a *model.Actor) (*model.Actor, error) {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.DiscoveredAt.IsZero() {
		a.DiscoveredAt = now
	}
	a.LastSeenAt = now

	query := `
		INSERT INTO actors (
			id, did, name, type, instance_url, public_key, verified, trusted,
			is_admin, discovered_at, last_seen_at, metadata, avatar_url,
			profile_url, handle, profile_last_fetched
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16
		)
		ON CONFLICT (did) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			verified     = actors.verified OR EXCLUDED.verified,
			public_key   = CASE WHEN EXCLUDED.public_key != '' THEN EXCLUDED.public_key ELSE actors.public_key END
		RETURNING ` + actorColumns

	return r.scanOne(ctx, query,
		a.ID, a.DID, a.Name, a.Type, a.InstanceURL, a.PublicKey, a.Verified,
		a.Trusted, a.IsAdmin, a.DiscoveredAt, a.LastSeenAt, meta,
		a.AvatarURL, a.ProfileURL, a.Handle, a.ProfileLastFetched,
	)
}

// GetByDID retrieves an actor by DID.
func (r *ActorRepository) GetByDID(ctx context.Context, did string) (*model.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE did = $1`
	return r.scanOne(ctx, query, did)
}

// List returns actors, most recently seen first, optionally narrowed to a
// DID or name substring.
func (r *ActorRepository) List(ctx context.Context, search string, limit, offset int) ([]*model.Actor, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + actorColumns + `
		FROM actors
		WHERE ($1 = '' OR did ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
		ORDER BY last_seen_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BumpLastSeen refreshes last_seen_at for an already registered DID.
func (r *ActorRepository) BumpLastSeen(ctx context.Context, did string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE actors SET last_seen_at = $2 WHERE did = $1`, did, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile writes the resolved profile columns onto the actor row.
func (r *ActorRepository) UpdateProfile(ctx context.Context, did string, p ProfileFields) error {
	query := `
		UPDATE actors SET
			name                 = $2,
			avatar_url           = $3,
			profile_url          = $4,
			handle               = $5,
			profile_last_fetched = $6
		WHERE did = $1`
	tag, err := r.db.Exec(ctx, query, did, p.ActorName, p.AvatarURL, p.ProfileURL, p.Handle, p.FetchedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAdmin grants or revokes hub administration for a DID.
func (r *ActorRepository) SetAdmin(ctx context.Context, did string, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE actors SET is_admin = $2 WHERE did = $1`, did, isAdmin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTrusted grants or revokes the trusted flag for a DID.
func (r *ActorRepository) SetTrusted(ctx context.Context, did string, trusted bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE actors SET trusted = $2 WHERE did = $1`, did, trusted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ActorRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Actor, error) {
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
	return scanActor(rows)
}

func scanActor(rows pgx.Rows) (*model.Actor, error) {
	var (
		a       model.Actor
		metaRaw []byte
	)
	err := rows.Scan(
		&a.ID, &a.DID, &a.Name, &a.Type, &a.InstanceURL, &a.PublicKey,
		&a.Verified, &a.Trusted, &a.IsAdmin, &a.DiscoveredAt, &a.LastSeenAt,
		&metaRaw, &a.AvatarURL, &a.ProfileURL, &a.Handle, &a.ProfileLastFetched,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMeta(metaRaw, &a.Metadata); err != nil {
		return nil, err
	}
	return &a, nil
}
