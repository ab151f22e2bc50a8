package model

import (
	"time"

	"github.com/google/uuid"
)

// Tier is a computed credibility label for an actor, derived from activity
// counters and account age.
type Tier string

const (
	// TierNew — default for freshly discovered actors.
	TierNew Tier = "NEW"
	// TierEstablished — at least a week old with some activity.
	TierEstablished Tier = "ESTABLISHED"
	// TierVeteran — a month old with sustained posting across rings.
	TierVeteran Tier = "VETERAN"
	// TierTrusted — long-standing, prolific actors; quota caps no longer apply.
	TierTrusted Tier = "TRUSTED"
)

// ActorReputation is the persisted reputation row backing the rate limiter.
type ActorReputation struct {
	ActorDID         string     `json:"actorDid"                  db:"actor_did"`
	Tier             Tier       `json:"tier"                      db:"tier"`
	ReputationScore  int        `json:"reputationScore"           db:"reputation_score"`
	RingsCreated     int        `json:"ringsCreated"              db:"rings_created"`
	ActiveRings      int        `json:"activeRings"               db:"active_rings"`
	TotalPosts       int        `json:"totalPosts"                db:"total_posts"`
	MembershipCount  int        `json:"membershipCount"           db:"membership_count"`
	FlaggedForReview bool       `json:"flaggedForReview"          db:"flagged_for_review"`
	ViolationCount   int        `json:"violationCount"            db:"violation_count"`
	LastViolationAt  *time.Time `json:"lastViolationAt,omitempty" db:"last_violation_at"`
	CooldownUntil    *time.Time `json:"cooldownUntil,omitempty"   db:"cooldown_until"`
	LastCalculatedAt time.Time  `json:"lastCalculatedAt"          db:"last_calculated_at"`
}

// ComputeTier derives the tier from the row's counters and the actor's age.
// The result depends only on values already present on the row.
func (r *ActorReputation) ComputeTier(daysSinceDiscovery int) Tier {
	switch {
	case daysSinceDiscovery >= 90 && r.TotalPosts >= 100 && r.RingsCreated >= 3:
		return TierTrusted
	case daysSinceDiscovery >= 30 && r.TotalPosts >= 25 && r.ActiveRings >= 2:
		return TierVeteran
	case daysSinceDiscovery >= 7 && (r.TotalPosts >= 5 || r.MembershipCount >= 2):
		return TierEstablished
	default:
		return TierNew
	}
}

// InCooldown reports whether the actor is inside an enforced cooldown.
func (r *ActorReputation) InCooldown(now time.Time) bool {
	return r.CooldownUntil != nil && now.Before(*r.CooldownUntil)
}

// Rate-limited action names.
const (
	ActionForkRing       = "fork_ring"
	ActionProfileRefresh = "profile_refresh"
)

// QuotaWindow is a counting window for rate-limit events.
type QuotaWindow string

const (
	QuotaHour QuotaWindow = "hour"
	QuotaDay  QuotaWindow = "day"
	QuotaWeek QuotaWindow = "week"
)

// Duration returns the window length.
func (w QuotaWindow) Duration() time.Duration {
	switch w {
	case QuotaHour:
		return time.Hour
	case QuotaDay:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Unlimited marks a tier that is not capped in a window.
const Unlimited = -1

// QuotaTable declares per-window, per-tier caps for one action.
type QuotaTable map[QuotaWindow]map[Tier]int

// ActionQuotas is the fixed table of rate-limited actions.
var ActionQuotas = map[string]QuotaTable{
	ActionForkRing: {
		QuotaHour: {TierNew: 1, TierEstablished: 2, TierVeteran: 5, TierTrusted: Unlimited},
		QuotaDay:  {TierNew: 3, TierEstablished: 10, TierVeteran: 25, TierTrusted: Unlimited},
		QuotaWeek: {TierNew: 10, TierEstablished: 30, TierVeteran: 100, TierTrusted: Unlimited},
	},
	ActionProfileRefresh: {
		QuotaHour: {TierNew: 10, TierEstablished: 10, TierVeteran: 10, TierTrusted: 10},
	},
}

// Violation escalation policy: cooldowns start at the third violation and
// double per subsequent one; flagging starts at the fifth.
const (
	CooldownThreshold = 3
	FlagThreshold     = 5
	MaxCooldownHours  = 168
)

// EscalatedCooldown computes the cooldown for a violation count, zero when
// below the threshold.
func EscalatedCooldown(violations int) time.Duration {
	if violations < CooldownThreshold {
		return 0
	}
	exp := violations - CooldownThreshold
	if exp >= 8 { // 2^8 hours already exceeds the cap
		return MaxCooldownHours * time.Hour
	}
	hours := 1 << exp
	if hours > MaxCooldownHours {
		hours = MaxCooldownHours
	}
	return time.Duration(hours) * time.Hour
}

// RateLimitEvent is one consumed quota entry.
type RateLimitEvent struct {
	ID          uuid.UUID   `json:"id"                 db:"id"`
	ActorDID    string      `json:"actorDid"           db:"actor_did"`
	Action      string      `json:"action"             db:"action"`
	PerformedAt time.Time   `json:"performedAt"        db:"performed_at"`
	WindowType  QuotaWindow `json:"windowType"         db:"window_type"`
	Metadata    Meta        `json:"metadata,omitempty" db:"metadata"`
}

// CooldownRequest is the admin payload for a manual cooldown.
type CooldownRequest struct {
	Hours  int    `json:"hours" binding:"required"`
	Reason string `json:"reason"`
}
