package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash anchors every ring's chain: the first entry of a ring links
// back to this constant instead of a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Audit action names. One vocabulary across services so log queries stay
// greppable.
const (
	ActionRingCreated       = "ring.created"
	ActionRingForked        = "ring.forked"
	ActionRingUpdated       = "ring.updated"
	ActionRingParentUpdated = "ring.parent_updated"
	ActionRingDeleted       = "ring.deleted"
	ActionRingBadgeUpdated  = "ring.badge_updated"

	ActionMemberJoined      = "membership.joined"
	ActionMemberApplied     = "membership.applied"
	ActionMemberApproved    = "membership.approved"
	ActionMemberDeclined    = "membership.declined"
	ActionMemberLeft        = "membership.left"
	ActionMemberRoleUpdated = "membership.role_updated"
	ActionMemberRemoved     = "membership.removed"
	ActionMemberInvited     = "membership.invited"

	ActionBadgeIssued      = "badge.issued"
	ActionBadgeRevoked     = "badge.revoked"
	ActionBadgeIssueFailed = "badge.issue_failed"

	ActionContentSubmitted           = "content.submitted"
	ActionContentAccepted            = "content.accept"
	ActionContentRejected            = "content.reject"
	ActionContentPinned              = "content.pin"
	ActionContentUnpinned            = "content.unpin"
	ActionContentRemoved             = "content.remove"
	ActionContentAuthorRemovedGlobal = "content.author_removed_globally"

	ActionBlockCreated = "block.created"
	ActionBlockRemoved = "block.removed"

	ActionChallengeCreated     = "challenge.created"
	ActionChallengeDeactivated = "challenge.deactivated"

	ActionAdminBypassUsed        = "auth.admin_bypass_used"
	ActionAdminCooldownApplied   = "admin.cooldown_applied"
	ActionAdminViolationsCleared = "admin.violations_cleared"
	ActionAdminGranted           = "admin.granted"
	ActionAdminRevoked           = "admin.revoked"
	ActionAdminTrustGranted      = "admin.trust_granted"
	ActionAdminTrustRevoked      = "admin.trust_revoked"
)

// Entry is one audit record. Entries are immutable once written; within a
// ring they form a hash chain ordered by Index.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	RingID    uuid.UUID      `json:"ringId"`
	Index     int            `json:"index"`
	Action    string         `json:"action"`
	ActorDID  string         `json:"actorDid"`
	TargetDID string         `json:"targetDid,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	// DataHash is the SHA-256 of the metadata JSON captured at append time.
	// Verification recomputes the entry hash from stored columns only, so a
	// JSONB round-trip can never break the chain.
	DataHash  string `json:"dataHash"`
	PrevHash  string `json:"prevHash"`
	EntryHash string `json:"entryHash"`
}

// hashEntry computes the deterministic SHA-256 over an entry's chained
// fields.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.RingID, e.Action, e.ActorDID, e.TargetDID,
		e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// sha256Sum returns the hex-encoded SHA-256 digest of data.
func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
