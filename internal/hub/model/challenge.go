package model

import (
	"time"

	"github.com/google/uuid"
)

// Challenge is a ring prompt: a themed invitation for members to post
// around.
type Challenge struct {
	ID        uuid.UUID  `json:"id"                  db:"id"`
	RingID    uuid.UUID  `json:"ringId"              db:"ring_id"`
	Title     string     `json:"title"               db:"title"`
	Prompt    string     `json:"prompt"              db:"prompt"`
	CreatedBy string     `json:"createdBy"           db:"created_by"`
	CreatedAt time.Time  `json:"createdAt"           db:"created_at"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	Active    bool       `json:"active"              db:"active"`
	Metadata  Meta       `json:"metadata,omitempty"  db:"metadata"`
}

// Expired reports whether the challenge has passed its deadline.
func (c *Challenge) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// CreateChallengeRequest is the payload for opening a challenge.
type CreateChallengeRequest struct {
	Title     string     `json:"title"  binding:"required"`
	Prompt    string     `json:"prompt" binding:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Metadata  Meta       `json:"metadata"`
}
