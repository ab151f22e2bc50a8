package model

import (
	"time"

	"github.com/google/uuid"
)

// PostStatus is the moderation state of a content reference.
type PostStatus string

const (
	PostPending  PostStatus = "PENDING"
	PostAccepted PostStatus = "ACCEPTED"
	PostRejected PostStatus = "REJECTED"
	PostRemoved  PostStatus = "REMOVED"
)

// PostRef points at externally hosted content. The hub stores the reference
// and its digest, never the content.
type PostRef struct {
	ID             uuid.UUID  `json:"id"                       db:"id"`
	RingID         uuid.UUID  `json:"ringId"                   db:"ring_id"`
	ActorDID       string     `json:"actorDid"                 db:"actor_did"`
	SubmittedBy    string     `json:"submittedBy"              db:"submitted_by"`
	URI            string     `json:"uri"                      db:"uri"`
	Digest         string     `json:"digest"                   db:"digest"`
	SubmittedAt    time.Time  `json:"submittedAt"              db:"submitted_at"`
	Status         PostStatus `json:"status"                   db:"status"`
	ModeratedAt    *time.Time `json:"moderatedAt,omitempty"    db:"moderated_at"`
	ModeratedBy    string     `json:"moderatedBy,omitempty"    db:"moderated_by"`
	ModerationNote string     `json:"moderationNote,omitempty" db:"moderation_note"`
	Pinned         bool       `json:"pinned"                   db:"pinned"`
	Metadata       Meta       `json:"metadata,omitempty"       db:"metadata"`
	// RingSlug is joined in at read time for feed payloads.
	RingSlug string `json:"ringSlug,omitempty" db:"-"`
}

// SubmitRequest is the payload for submitting a content reference.
type SubmitRequest struct {
	RingSlug string `json:"ringSlug" binding:"required"`
	URI      string `json:"uri"      binding:"required"`
	Digest   string `json:"digest"   binding:"required"`
	ActorDID string `json:"actorDid"`
	Metadata Meta   `json:"metadata"`
}

// CurateAction is a moderation verb.
type CurateAction string

const (
	CurateAccept CurateAction = "accept"
	CurateReject CurateAction = "reject"
	CuratePin    CurateAction = "pin"
	CurateUnpin  CurateAction = "unpin"
	CurateRemove CurateAction = "remove"
)

// CurateRequest is the payload for moderation and author removal.
type CurateRequest struct {
	PostID   uuid.UUID    `json:"postId" binding:"required"`
	Action   CurateAction `json:"action" binding:"required"`
	Reason   string       `json:"reason"`
	Metadata Meta         `json:"metadata"`
}

// CurateResult reports what a curate call changed.
type CurateResult struct {
	Post          *PostRef `json:"post,omitempty"`
	Global        bool     `json:"global"`
	AffectedRings []string `json:"affectedRings,omitempty"`
}

// FeedScope selects which related rings a feed aggregates.
type FeedScope string

const (
	ScopeRing     FeedScope = "ring"
	ScopeParent   FeedScope = "parent"
	ScopeChildren FeedScope = "children"
	ScopeSiblings FeedScope = "siblings"
	ScopeFamily   FeedScope = "family"
)

// ValidFeedScope reports whether s is a recognized scope.
func ValidFeedScope(s FeedScope) bool {
	switch s {
	case ScopeRing, ScopeParent, ScopeChildren, ScopeSiblings, ScopeFamily:
		return true
	}
	return false
}

// FeedFilter narrows feed queries. A nil Status means "whatever the caller's
// access allows".
type FeedFilter struct {
	Scope    FeedScope
	Status   *PostStatus
	ActorDID string
	Since    *time.Time
	Until    *time.Time
	Pinned   *bool
	Limit    int
	Offset   int
}

const (
	FeedDefaultLimit = 20
	FeedMaxLimit     = 100
)

// Clamp normalizes pagination bounds.
func (f *FeedFilter) Clamp() {
	if f.Limit <= 0 {
		f.Limit = FeedDefaultLimit
	}
	if f.Limit > FeedMaxLimit {
		f.Limit = FeedMaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
