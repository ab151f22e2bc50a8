package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Badge stores the signed membership credential. BadgeData is the credential
// JSON exactly as signed; it is never reserialized in place.
type Badge struct {
	ID               uuid.UUID       `json:"id"                         db:"id"`
	MembershipID     uuid.UUID       `json:"membershipId"               db:"membership_id"`
	BadgeData        json.RawMessage `json:"badge"                      db:"badge_data"`
	IssuedAt         time.Time       `json:"issuedAt"                   db:"issued_at"`
	RevokedAt        *time.Time      `json:"revokedAt,omitempty"        db:"revoked_at"`
	RevocationReason string          `json:"revocationReason,omitempty" db:"revocation_reason"`
}

// Revoked reports whether the badge has been revoked.
func (b *Badge) Revoked() bool {
	return b.RevokedAt != nil
}

// BadgeStatusFilter selects which badges an actor listing returns.
type BadgeStatusFilter string

const (
	BadgeFilterActive  BadgeStatusFilter = "active"
	BadgeFilterRevoked BadgeStatusFilter = "revoked"
	BadgeFilterAll     BadgeStatusFilter = "all"
)

// VerifyBadgeRequest optionally carries a full credential to verify in place
// of the stored one.
type VerifyBadgeRequest struct {
	Badge json.RawMessage `json:"badge"`
}

// VerifyBadgeResult is the verification verdict.
type VerifyBadgeResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// UpdateRingBadgeRequest updates a ring's badge artwork and optionally
// regenerates issued badges.
type UpdateRingBadgeRequest struct {
	BadgeImageURL        string `json:"badgeImageUrl"`
	BadgeImageHighResURL string `json:"badgeImageHighResUrl"`
	UpdateExistingBadges bool   `json:"updateExistingBadges"`
}

// BadgeRegenerationResult reports a bulk regeneration outcome.
type BadgeRegenerationResult struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
