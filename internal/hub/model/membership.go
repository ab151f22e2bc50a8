package model

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "PENDING"
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipSuspended MembershipStatus = "SUSPENDED"
	MembershipRevoked   MembershipStatus = "REVOKED"
)

// Membership ties an actor to a ring with a role and a cached profile.
type Membership struct {
	ID                 uuid.UUID        `json:"id"                           db:"id"`
	RingID             uuid.UUID        `json:"ringId"                       db:"ring_id"`
	ActorDID           string           `json:"actorDid"                     db:"actor_did"`
	RoleID             *uuid.UUID       `json:"roleId,omitempty"             db:"role_id"`
	Status             MembershipStatus `json:"status"                       db:"status"`
	JoinedAt           *time.Time       `json:"joinedAt,omitempty"           db:"joined_at"`
	LeftAt             *time.Time       `json:"leftAt,omitempty"             db:"left_at"`
	LeaveReason        string           `json:"-"                            db:"leave_reason"`
	ApplicationMessage string           `json:"applicationMessage,omitempty" db:"application_message"`
	BadgeID            *uuid.UUID       `json:"badgeId,omitempty"            db:"badge_id"`
	ActorName          string           `json:"actorName,omitempty"          db:"actor_name"`
	AvatarURL          string           `json:"avatarUrl,omitempty"          db:"avatar_url"`
	ProfileURL         string           `json:"profileUrl,omitempty"         db:"profile_url"`
	InstanceDomain     string           `json:"instanceDomain,omitempty"     db:"instance_domain"`
	Handle             string           `json:"handle,omitempty"             db:"handle"`
	ProfileLastFetched *time.Time       `json:"profileLastFetched,omitempty" db:"profile_last_fetched"`
	ProfileSource      string           `json:"profileSource,omitempty"      db:"profile_source"`
	// RoleName is joined in at read time for payloads that need it.
	RoleName string `json:"roleName,omitempty" db:"-"`
}

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// DefaultInvitationTTL is how long an invitation stays redeemable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation lets a specific actor join an invitation-only ring.
type Invitation struct {
	ID          uuid.UUID        `json:"id"                    db:"id"`
	RingID      uuid.UUID        `json:"ringId"                db:"ring_id"`
	InviteeDID  string           `json:"inviteeDid"            db:"invitee_did"`
	InviterDID  string           `json:"inviterDid"            db:"inviter_did"`
	Status      InvitationStatus `json:"status"                db:"status"`
	ExpiresAt   time.Time        `json:"expiresAt"             db:"expires_at"`
	CreatedAt   time.Time        `json:"createdAt"             db:"created_at"`
	RespondedAt *time.Time       `json:"respondedAt,omitempty" db:"responded_at"`
	Message     string           `json:"message,omitempty"     db:"message"`
}

// Redeemable reports whether the invitation can still be accepted.
func (i *Invitation) Redeemable(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}

// JoinRequest is the payload for joining a ring.
type JoinRequest struct {
	RingSlug           string `json:"ringSlug" binding:"required"`
	ApplicationMessage string `json:"applicationMessage"`
	Metadata           Meta   `json:"metadata"`
}

// LeaveRequest is the payload for leaving a ring.
type LeaveRequest struct {
	RingSlug string `json:"ringSlug" binding:"required"`
	Reason   string `json:"reason"`
}

// RoleUpdateRequest changes a member's role.
type RoleUpdateRequest struct {
	Role string `json:"role" binding:"required"`
}

// InviteRequest is the payload for inviting an actor.
type InviteRequest struct {
	InviteeDID string `json:"inviteeDid" binding:"required"`
	Message    string `json:"message"`
}

// JoinResult is the join response: the created or revived membership plus
// whether it awaits moderator approval.
type JoinResult struct {
	Membership       *Membership `json:"membership"`
	Ring             *Ring       `json:"ring"`
	RequiresApproval bool        `json:"requiresApproval,omitempty"`
}

// MembershipInfo is the public summary of a ring's membership.
type MembershipInfo struct {
	RingSlug    string   `json:"ringSlug"`
	MemberCount int      `json:"memberCount"`
	OwnerDID    string   `json:"ownerDid"`
	Moderators  []string `json:"moderators"`
}

// MembershipWithRing pairs a membership with its ring summary for
// caller-scoped listings.
type MembershipWithRing struct {
	Membership *Membership `json:"membership"`
	Ring       *Ring       `json:"ring"`
}
