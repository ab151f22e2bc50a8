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

const reputationColumns = `
	actor_did, tier, reputation_score, rings_created, active_rings,
	total_posts, membership_count, flagged_for_review, violation_count,
	last_violation_at, cooldown_until, last_calculated_at`

// ReputationRepository stores per-actor reputation rows and the rate-limit
// event log behind quota enforcement.
type ReputationRepository struct {
	db Querier
}

// NewReputationRepository creates a ReputationRepository.
func NewReputationRepository(db Querier) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *ReputationRepository) WithTx(q Querier) *ReputationRepository {
	return &ReputationRepository{db: q}
}

// Get retrieves an actor's reputation row.
func (r *ReputationRepository) Get(ctx context.Context, actorDID string) (*model.ActorReputation, error) {
	query := `SELECT ` + reputationColumns + ` FROM actor_reputation WHERE actor_did = $1`
	rows, err := r.db.Query(ctx, query, actorDID)
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
	return scanReputation(rows)
}

// Upsert writes the full reputation row, inserting on first sight.
func (r *ReputationRepository) Upsert(ctx context.Context, rep *model.ActorReputation) error {
	query := `
		INSERT INTO actor_reputation (
			actor_did, tier, reputation_score, rings_created, active_rings,
			total_posts, membership_count, flagged_for_review, violation_count,
			last_violation_at, cooldown_until, last_calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (actor_did) DO UPDATE SET
			tier               = EXCLUDED.tier,
			reputation_score   = EXCLUDED.reputation_score,
			rings_created      = EXCLUDED.rings_created,
			active_rings       = EXCLUDED.active_rings,
			total_posts        = EXCLUDED.total_posts,
			membership_count   = EXCLUDED.membership_count,
			flagged_for_review = EXCLUDED.flagged_for_review,
			violation_count    = EXCLUDED.violation_count,
			last_violation_at  = EXCLUDED.last_violation_at,
			cooldown_until     = EXCLUDED.cooldown_until,
			last_calculated_at = EXCLUDED.last_calculated_at`

	_, err := r.db.Exec(ctx, query,
		rep.ActorDID, rep.Tier, rep.ReputationScore, rep.RingsCreated,
		rep.ActiveRings, rep.TotalPosts, rep.MembershipCount,
		rep.FlaggedForReview, rep.ViolationCount, rep.LastViolationAt,
		rep.CooldownUntil, rep.LastCalculatedAt,
	)
	return err
}

// SetCooldown stamps a cooldown deadline on the actor's row.
func (r *ReputationRepository) SetCooldown(ctx context.Context, actorDID string, until *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE actor_reputation SET cooldown_until = $2 WHERE actor_did = $1`, actorDID, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFlagged marks or clears the manual-review flag.
func (r *ReputationRepository) SetFlagged(ctx context.Context, actorDID string, flagged bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE actor_reputation SET flagged_for_review = $2 WHERE actor_did = $1`, actorDID, flagged)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFlagged returns actors currently flagged for review.
func (r *ReputationRepository) ListFlagged(ctx context.Context, limit, offset int) ([]*model.ActorReputation, error) {
	limit = clampLimit(limit)
	query := `
		SELECT ` + reputationColumns + `
		FROM actor_reputation
		WHERE flagged_for_review = true
		ORDER BY last_violation_at DESC NULLS LAST
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActorReputation
	for rows.Next() {
		rep, err := scanReputation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// RecordEvent appends a consumed-quota entry.
func (r *ReputationRepository) RecordEvent(ctx context.Context, ev *model.RateLimitEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.PerformedAt.IsZero() {
		ev.PerformedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO rate_limit_events (id, actor_did, action, performed_at, window_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.db.Exec(ctx, query,
		ev.ID, ev.ActorDID, ev.Action, ev.PerformedAt, ev.WindowType, meta)
	return err
}

// CountEventsSince counts an actor's events for one action and window after
// the cutoff. Each performed action leaves one row per applicable window, so
// counts stay per-window.
func (r *ReputationRepository) CountEventsSince(ctx context.Context, actorDID, action string, window model.QuotaWindow, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM rate_limit_events
		WHERE actor_did = $1 AND action = $2 AND window_type = $3 AND performed_at >= $4`
	if err := r.db.QueryRow(ctx, query, actorDID, action, window, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// PruneEvents deletes events older than the cutoff and returns how many rows
// were removed. Events outside the widest quota window never count again.
func (r *ReputationRepository) PruneEvents(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limit_events WHERE performed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ActivityCounters aggregates the activity numbers a tier computation needs.
type ActivityCounters struct {
	RingsCreated    int
	ActiveRings     int
	TotalPosts      int
	MembershipCount int
	DiscoveredAt    time.Time
}

// Activity collects an actor's counters in one round trip. activeSince bounds
// the window for the active-rings count.
func (r *ReputationRepository) Activity(ctx context.Context, actorDID string, activeSince time.Time) (*ActivityCounters, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM rings WHERE owner_did = $1),
			(SELECT COUNT(DISTINCT ring_id) FROM post_refs
				WHERE actor_did = $1 AND status = 'ACCEPTED' AND submitted_at >= $2),
			(SELECT COUNT(*) FROM post_refs WHERE actor_did = $1 AND status = 'ACCEPTED'),
			(SELECT COUNT(*) FROM memberships WHERE actor_did = $1 AND status = 'ACTIVE'),
			COALESCE((SELECT discovered_at FROM actors WHERE did = $1), NOW())`

	var c ActivityCounters
	err := r.db.QueryRow(ctx, query, actorDID, activeSince).Scan(
		&c.RingsCreated, &c.ActiveRings, &c.TotalPosts, &c.MembershipCount, &c.DiscoveredAt)
	if err != nil {
		return nil, fmt.Errorf("activity counters: %w", err)
	}
	return &c, nil
}

func scanReputation(rows pgx.Rows) (*model.ActorReputation, error) {
	var rep model.ActorReputation
	err := rows.Scan(
		&rep.ActorDID, &rep.Tier, &rep.ReputationScore, &rep.RingsCreated,
		&rep.ActiveRings, &rep.TotalPosts, &rep.MembershipCount,
		&rep.FlaggedForReview, &rep.ViolationCount, &rep.LastViolationAt,
		&rep.CooldownUntil, &rep.LastCalculatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
