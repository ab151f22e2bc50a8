package client

import (
	"encoding/json"
	"time"
)

// Ring is a named community on the hub.
type Ring struct {
	ID                   string         `json:"id"`
	Slug                 string         `json:"slug"`
	Name                 string         `json:"name"`
	Description          string         `json:"description,omitempty"`
	ShortCode            string         `json:"shortCode,omitempty"`
	Visibility           string         `json:"visibility"`
	JoinPolicy           string         `json:"joinPolicy"`
	PostPolicy           string         `json:"postPolicy"`
	OwnerDID             string         `json:"ownerDid"`
	ParentID             string         `json:"parentId,omitempty"`
	CuratorNote          string         `json:"curatorNote,omitempty"`
	BannerURL            string         `json:"bannerUrl,omitempty"`
	ThemeColor           string         `json:"themeColor,omitempty"`
	BadgeImageURL        string         `json:"badgeImageUrl,omitempty"`
	BadgeImageHighResURL string         `json:"badgeImageHighResUrl,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	MemberCount          int            `json:"memberCount,omitempty"`
	PostCount            int            `json:"postCount,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// CreateRingRequest is the payload for CreateRing. Slug is derived from Name
// when empty; policy fields fall back to the hub defaults.
type CreateRingRequest struct {
	Name                 string         `json:"name"`
	Slug                 string         `json:"slug,omitempty"`
	Description          string         `json:"description,omitempty"`
	ShortCode            string         `json:"shortCode,omitempty"`
	Visibility           string         `json:"visibility,omitempty"`
	JoinPolicy           string         `json:"joinPolicy,omitempty"`
	PostPolicy           string         `json:"postPolicy,omitempty"`
	CuratorNote          string         `json:"curatorNote,omitempty"`
	BannerURL            string         `json:"bannerUrl,omitempty"`
	ThemeColor           string         `json:"themeColor,omitempty"`
	BadgeImageURL        string         `json:"badgeImageUrl,omitempty"`
	BadgeImageHighResURL string         `json:"badgeImageHighResUrl,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	Policies             map[string]any `json:"policies,omitempty"`
}

// ForkRingRequest is the payload for ForkRing.
type ForkRingRequest struct {
	CreateRingRequest
	ParentSlug string `json:"parentSlug"`
}

// UpdateRingRequest updates ring descriptors. Nil fields are left unchanged.
type UpdateRingRequest struct {
	Name                 *string        `json:"name,omitempty"`
	Description          *string        `json:"description,omitempty"`
	ShortCode            *string        `json:"shortCode,omitempty"`
	Visibility           *string        `json:"visibility,omitempty"`
	JoinPolicy           *string        `json:"joinPolicy,omitempty"`
	PostPolicy           *string        `json:"postPolicy,omitempty"`
	CuratorNote          *string        `json:"curatorNote,omitempty"`
	BannerURL            *string        `json:"bannerUrl,omitempty"`
	ThemeColor           *string        `json:"themeColor,omitempty"`
	BadgeImageURL        *string        `json:"badgeImageUrl,omitempty"`
	BadgeImageHighResURL *string        `json:"badgeImageHighResUrl,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	Policies             map[string]any `json:"policies,omitempty"`
}

// RingFilter narrows ListRings.
type RingFilter struct {
	Search     string
	Visibility string
	MemberDID  string
	Limit      int
	Offset     int
}

// SlugAvailability is the CheckSlug verdict.
type SlugAvailability struct {
	Slug      string `json:"slug"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// LineageNode is one ring in a lineage tree with its pre-filter descendant
// count.
type LineageNode struct {
	Ring            *Ring          `json:"ring"`
	DescendantCount int            `json:"descendantCount"`
	Children        []*LineageNode `json:"children,omitempty"`
}

// Lineage is the genealogy view of a ring.
type Lineage struct {
	Ring            *Ring          `json:"ring"`
	Ancestors       []*Ring        `json:"ancestors"`
	Descendants     []*LineageNode `json:"descendants"`
	DescendantCount int            `json:"descendantCount"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// Stats summarizes the hub: ring, actor, and membership counts.
type Stats struct {
	Rings struct {
		Total    int `json:"total"`
		Public   int `json:"public"`
		Unlisted int `json:"unlisted"`
		Private  int `json:"private"`
	} `json:"rings"`
	Actors struct {
		Total    int `json:"total"`
		Verified int `json:"verified"`
	} `json:"actors"`
	Memberships struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"memberships"`
}

// Membership ties an actor to a ring.
type Membership struct {
	ID                 string     `json:"id"`
	RingID             string     `json:"ringId"`
	ActorDID           string     `json:"actorDid"`
	RoleID             string     `json:"roleId,omitempty"`
	RoleName           string     `json:"roleName,omitempty"`
	Status             string     `json:"status"`
	JoinedAt           *time.Time `json:"joinedAt,omitempty"`
	LeftAt             *time.Time `json:"leftAt,omitempty"`
	ApplicationMessage string     `json:"applicationMessage,omitempty"`
	BadgeID            string     `json:"badgeId,omitempty"`
	ActorName          string     `json:"actorName,omitempty"`
	AvatarURL          string     `json:"avatarUrl,omitempty"`
	ProfileURL         string     `json:"profileUrl,omitempty"`
	Handle             string     `json:"handle,omitempty"`
}

// MembershipWithRing pairs a membership with its ring summary.
type MembershipWithRing struct {
	Membership *Membership `json:"membership"`
	Ring       *Ring       `json:"ring"`
}

// MembershipInfo is the public summary of a ring's membership.
type MembershipInfo struct {
	RingSlug    string   `json:"ringSlug"`
	MemberCount int      `json:"memberCount"`
	OwnerDID    string   `json:"ownerDid"`
	Moderators  []string `json:"moderators"`
}

// JoinRequest is the payload for Join.
type JoinRequest struct {
	RingSlug           string         `json:"ringSlug"`
	ApplicationMessage string         `json:"applicationMessage,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// JoinResult is the join response: the created or revived membership plus
// whether it awaits moderator approval.
type JoinResult struct {
	Membership       *Membership `json:"membership"`
	Ring             *Ring       `json:"ring"`
	RequiresApproval bool        `json:"requiresApproval,omitempty"`
}

// Invitation lets a specific actor join an invitation-only ring.
type Invitation struct {
	ID          string     `json:"id"`
	RingID      string     `json:"ringId"`
	InviteeDID  string     `json:"inviteeDid"`
	InviterDID  string     `json:"inviterDid"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// PostRef points at externally hosted content.
type PostRef struct {
	ID             string         `json:"id"`
	RingID         string         `json:"ringId"`
	RingSlug       string         `json:"ringSlug,omitempty"`
	ActorDID       string         `json:"actorDid"`
	SubmittedBy    string         `json:"submittedBy"`
	URI            string         `json:"uri"`
	Digest         string         `json:"digest"`
	SubmittedAt    time.Time      `json:"submittedAt"`
	Status         string         `json:"status"`
	ModeratedAt    *time.Time     `json:"moderatedAt,omitempty"`
	ModeratedBy    string         `json:"moderatedBy,omitempty"`
	ModerationNote string         `json:"moderationNote,omitempty"`
	Pinned         bool           `json:"pinned"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SubmitRequest is the payload for Submit. ActorDID may name another author
// when the caller relays on an instance's behalf.
type SubmitRequest struct {
	RingSlug string         `json:"ringSlug"`
	URI      string         `json:"uri"`
	Digest   string         `json:"digest"`
	ActorDID string         `json:"actorDid,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Curate action verbs.
const (
	CurateAccept = "accept"
	CurateReject = "reject"
	CurateRemove = "remove"
	CuratePin    = "pin"
	CurateUnpin  = "unpin"
)

// CurateRequest is the payload for Curate.
type CurateRequest struct {
	PostID   string         `json:"postId"`
	Action   string         `json:"action"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CurateResult reports what a curate call changed.
type CurateResult struct {
	Post          *PostRef `json:"post,omitempty"`
	Global        bool     `json:"global"`
	AffectedRings []string `json:"affectedRings,omitempty"`
}

// FeedOptions narrows feed queries. Scope is one of ring, parent, children,
// siblings, family; empty means ring.
type FeedOptions struct {
	Scope    string
	ActorDID string
	Status   string
	Pinned   *bool
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Badge is a stored membership credential. BadgeData carries the signed
// credential exactly as issued.
type Badge struct {
	ID               string          `json:"id"`
	MembershipID     string          `json:"membershipId"`
	BadgeData        json.RawMessage `json:"badge"`
	IssuedAt         time.Time       `json:"issuedAt"`
	RevokedAt        *time.Time      `json:"revokedAt,omitempty"`
	RevocationReason string          `json:"revocationReason,omitempty"`
}

// BadgeVerification is the verdict of VerifyBadge.
type BadgeVerification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// UpdateRingBadgeRequest updates a ring's badge artwork and optionally
// regenerates issued badges.
type UpdateRingBadgeRequest struct {
	BadgeImageURL        string `json:"badgeImageUrl,omitempty"`
	BadgeImageHighResURL string `json:"badgeImageHighResUrl,omitempty"`
	UpdateExistingBadges bool   `json:"updateExistingBadges,omitempty"`
}

// BadgeRegeneration reports a bulk badge regeneration outcome.
type BadgeRegeneration struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Block bars a target from a ring.
type Block struct {
	ID         string    `json:"id"`
	RingID     string    `json:"ringId"`
	TargetDID  string    `json:"targetDid"`
	TargetType string    `json:"targetType"`
	Reason     string    `json:"reason,omitempty"`
	BlockedBy  string    `json:"blockedBy"`
	BlockedAt  time.Time `json:"blockedAt"`
}

// CreateBlockRequest is the payload for CreateBlock.
type CreateBlockRequest struct {
	TargetDID  string `json:"targetDid"`
	TargetType string `json:"targetType,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Challenge is a themed posting prompt.
type Challenge struct {
	ID        string         `json:"id"`
	RingID    string         `json:"ringId"`
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	CreatedBy string         `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Active    bool           `json:"active"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CreateChallengeRequest is the payload for CreateChallenge.
type CreateChallengeRequest struct {
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditEntry is one link in a ring's hash-chained audit log.
type AuditEntry struct {
	ID        string         `json:"id"`
	RingID    string         `json:"ringId"`
	Index     int            `json:"index"`
	Action    string         `json:"action"`
	ActorDID  string         `json:"actorDid"`
	TargetDID string         `json:"targetDid,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	DataHash  string         `json:"dataHash"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// AuditFilter narrows AuditLog queries.
type AuditFilter struct {
	Action    string
	ActorDID  string
	TargetDID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// AuditVerification reports an audit chain integrity check.
type AuditVerification struct {
	RingSlug   string    `json:"ringSlug"`
	Valid      bool      `json:"valid"`
	Error      string    `json:"error,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// ActorReputation is an actor's activity counters and standing.
type ActorReputation struct {
	ActorDID         string     `json:"actorDid"`
	Tier             string     `json:"tier"`
	ReputationScore  int        `json:"reputationScore"`
	RingsCreated     int        `json:"ringsCreated"`
	ActiveRings      int        `json:"activeRings"`
	TotalPosts       int        `json:"totalPosts"`
	MembershipCount  int        `json:"membershipCount"`
	FlaggedForReview bool       `json:"flaggedForReview"`
	ViolationCount   int        `json:"violationCount"`
	LastViolationAt  *time.Time `json:"lastViolationAt,omitempty"`
	CooldownUntil    *time.Time `json:"cooldownUntil,omitempty"`
	LastCalculatedAt time.Time  `json:"lastCalculatedAt"`
}

// CooldownRequest is the payload for ApplyCooldown.
type CooldownRequest struct {
	Hours  int    `json:"hours"`
	Reason string `json:"reason,omitempty"`
}

// HubInfo is the hub's self-description served at /docs.
type HubInfo struct {
	Name        string         `json:"name"`
	Protocol    string         `json:"protocol"`
	Version     string         `json:"version"`
	BaseURL     string         `json:"baseUrl"`
	DIDDocument string         `json:"didDocument"`
	Signatures  map[string]any `json:"signatures"`
	GeneratedAt time.Time      `json:"generatedAt"`
}