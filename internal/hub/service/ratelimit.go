package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/internal/notify"
	"github.com/threadring/ringhub/internal/reputation"
)

// recalcInterval bounds how often a reputation row's counters and tier are
// recomputed from the database.
const recalcInterval = time.Hour

// activeRingLookback is the window for the distinct-rings-posted-in counter.
const activeRingLookback = 30 * 24 * time.Hour

// quotaWindows fixes the evaluation order, narrowest first.
var quotaWindows = []model.QuotaWindow{model.QuotaHour, model.QuotaDay, model.QuotaWeek}

// RateLimiter enforces the tiered quota table on expensive actions. The API
// is two-phase: Precheck before the work, Record once it succeeds. Counters
// derive from persisted events, so nothing resets on restart; concurrent
// prechecks may briefly over-admit, which is tolerated.
type RateLimiter struct {
	reps     *repository.ReputationRepository
	scorer   reputation.Scorer // nil = standing score stays at zero
	notifier *notify.Notifier  // nil = operator alerts only logged
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimiter builds a RateLimiter over the reputation store.
func NewRateLimiter(r *Repos, scorer reputation.Scorer, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		reps:   r.Reputation,
		scorer: scorer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier enables operator notifications on flagging and cooldown
// escalation.
func (l *RateLimiter) SetNotifier(n *notify.Notifier) { l.notifier = n }

// Precheck decides whether ident may perform action right now. Admins,
// actors marked trusted, and TRUSTED-tier actors bypass all caps. A denial
// comes back as *model.ErrRateLimited and counts as a violation.
func (l *RateLimiter) Precheck(ctx context.Context, ident *model.Identity, action string) error {
	quotas, limited := model.ActionQuotas[action]
	if !limited {
		return nil
	}
	if ident.IsAdmin || ident.Trusted {
		return nil
	}

	rep, err := l.Reputation(ctx, ident.DID)
	if err != nil {
		return err
	}
	if rep.Tier == model.TierTrusted {
		return nil
	}

	now := l.now()
	if rep.InCooldown(now) {
		retry := rep.CooldownUntil.Sub(now)
		l.violation(ctx, rep, action, "")
		return &model.ErrRateLimited{Action: action, Tier: rep.Tier, RetryAfter: retry}
	}

	for _, w := range quotaWindows {
		caps, ok := quotas[w]
		if !ok {
			continue
		}
		limit, ok := caps[rep.Tier]
		if !ok || limit == model.Unlimited {
			continue
		}
		count, err := l.reps.CountEventsSince(ctx, ident.DID, action, w, now.Add(-w.Duration()))
		if err != nil {
			return err
		}
		if count >= limit {
			l.violation(ctx, rep, action, w)
			return &model.ErrRateLimited{Action: action, Tier: rep.Tier, Window: w, RetryAfter: w.Duration()}
		}
	}
	return nil
}

// Record consumes quota after a successful action: one event row per window
// the action's table declares. Failures are logged, never returned; the
// operation already happened.
func (l *RateLimiter) Record(ctx context.Context, actorDID, action string, meta model.Meta) {
	quotas, limited := model.ActionQuotas[action]
	if !limited {
		return
	}
	now := l.now()
	for _, w := range quotaWindows {
		if _, ok := quotas[w]; !ok {
			continue
		}
		ev := &model.RateLimitEvent{
			ActorDID:    actorDID,
			Action:      action,
			PerformedAt: now,
			WindowType:  w,
			Metadata:    meta,
		}
		if err := l.reps.RecordEvent(ctx, ev); err != nil {
			l.logger.Error("record rate limit event (non-fatal)",
				zap.Error(err),
				zap.String("actor", actorDID),
				zap.String("action", action))
		}
	}
}

// Reputation returns the actor's reputation row, creating it on first sight.
// Counters, tier, and standing score refresh at most once per
// recalcInterval.
func (l *RateLimiter) Reputation(ctx context.Context, actorDID string) (*model.ActorReputation, error) {
	now := l.now()
	rep, err := l.reps.Get(ctx, actorDID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		rep = &model.ActorReputation{ActorDID: actorDID, Tier: model.TierNew}
	case err != nil:
		return nil, err
	default:
		if now.Sub(rep.LastCalculatedAt) < recalcInterval {
			return rep, nil
		}
	}
	return l.recompute(ctx, rep)
}

func (l *RateLimiter) recompute(ctx context.Context, rep *model.ActorReputation) (*model.ActorReputation, error) {
	now := l.now()
	c, err := l.reps.Activity(ctx, rep.ActorDID, now.Add(-activeRingLookback))
	if err != nil {
		return nil, err
	}
	rep.RingsCreated = c.RingsCreated
	rep.ActiveRings = c.ActiveRings
	rep.TotalPosts = c.TotalPosts
	rep.MembershipCount = c.MembershipCount

	days := int(now.Sub(c.DiscoveredAt).Hours() / 24)
	rep.Tier = rep.ComputeTier(days)
	if l.scorer != nil {
		res := l.scorer.Score(reputation.Input{
			RingsCreated:       c.RingsCreated,
			ActiveRings:        c.ActiveRings,
			TotalPosts:         c.TotalPosts,
			MembershipCount:    c.MembershipCount,
			DaysSinceDiscovery: days,
			ViolationCount:     rep.ViolationCount,
			LastViolationAt:    rep.LastViolationAt,
			Now:                now,
		})
		rep.ReputationScore = res.Score
	}
	rep.LastCalculatedAt = now

	if err := l.reps.Upsert(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// violation books a denial: bump the count, extend the cooldown past the
// escalation threshold, flag past the flag threshold, alert the operator.
func (l *RateLimiter) violation(ctx context.Context, rep *model.ActorReputation, action string, window model.QuotaWindow) {
	now := l.now()
	rep.ViolationCount++
	rep.LastViolationAt = &now

	if d := model.EscalatedCooldown(rep.ViolationCount); d > 0 {
		until := now.Add(d)
		rep.CooldownUntil = &until
		if l.notifier != nil {
			l.notifier.CooldownEscalated(ctx, rep.ActorDID, rep.ViolationCount, d.Hours())
		}
	}
	newlyFlagged := false
	if rep.ViolationCount >= model.FlagThreshold && !rep.FlaggedForReview {
		rep.FlaggedForReview = true
		newlyFlagged = true
	}

	if err := l.reps.Upsert(ctx, rep); err != nil {
		l.logger.Error("persist rate limit violation",
			zap.Error(err), zap.String("actor", rep.ActorDID))
	}
	if newlyFlagged && l.notifier != nil {
		l.notifier.ActorFlagged(ctx, rep.ActorDID, rep.ViolationCount, action)
	}

	l.logger.Warn("rate limit denial",
		zap.String("actor", rep.ActorDID),
		zap.String("action", action),
		zap.String("window", string(window)),
		zap.Int("violations", rep.ViolationCount))
}

// PruneEvents drops events older than the widest quota window. Run it
// periodically; pruned events can never influence a count again.
func (l *RateLimiter) PruneEvents(ctx context.Context) (int, error) {
	return l.reps.PruneEvents(ctx, l.now().Add(-model.QuotaWeek.Duration()))
}
