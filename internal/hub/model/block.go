package model

import (
	"time"

	"github.com/google/uuid"
)

// BlockTargetType classifies what a block matches against.
type BlockTargetType string

const (
	BlockTargetUser     BlockTargetType = "USER"
	BlockTargetInstance BlockTargetType = "INSTANCE"
	BlockTargetActor    BlockTargetType = "ACTOR"
)

// Block bars a DID or an instance domain from interacting with a ring.
type Block struct {
	ID         uuid.UUID       `json:"id"               db:"id"`
	RingID     uuid.UUID       `json:"ringId"           db:"ring_id"`
	TargetDID  string          `json:"targetDid"        db:"target_did"`
	TargetType BlockTargetType `json:"targetType"       db:"target_type"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	BlockedBy  string          `json:"blockedBy"        db:"blocked_by"`
	BlockedAt  time.Time       `json:"blockedAt"        db:"blocked_at"`
}

// CreateBlockRequest is the payload for blocking a target.
type CreateBlockRequest struct {
	TargetDID  string          `json:"targetDid"  binding:"required"`
	TargetType BlockTargetType `json:"targetType"`
	Reason     string          `json:"reason"`
}
