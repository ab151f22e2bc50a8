package model

import (
	"time"

	"github.com/google/uuid"
)

// ActorType classifies the subject behind a DID.
type ActorType string

const (
	ActorTypeUser     ActorType = "USER"
	ActorTypeService  ActorType = "SERVICE"
	ActorTypeInstance ActorType = "INSTANCE"
)

// Actor is a DID the hub has seen. Rows are created on first verified
// signature and enriched by the profile resolver.
type Actor struct {
	ID           uuid.UUID `json:"id"                    db:"id"`
	DID          string    `json:"did"                   db:"did"`
	Name         string    `json:"name,omitempty"        db:"name"`
	Type         ActorType `json:"type"                  db:"type"`
	InstanceURL  string    `json:"instanceUrl,omitempty" db:"instance_url"`
	PublicKey    string    `json:"-"                     db:"public_key"`
	Verified     bool      `json:"verified"              db:"verified"`
	Trusted      bool      `json:"trusted"               db:"trusted"`
	IsAdmin      bool      `json:"isAdmin"               db:"is_admin"`
	DiscoveredAt time.Time `json:"discoveredAt"          db:"discovered_at"`
	LastSeenAt   time.Time `json:"lastSeenAt"            db:"last_seen_at"`
	Metadata     Meta      `json:"metadata,omitempty"    db:"metadata"`

	AvatarURL          string     `json:"avatarUrl,omitempty"  db:"avatar_url"`
	ProfileURL         string     `json:"profileUrl,omitempty" db:"profile_url"`
	Handle             string     `json:"handle,omitempty"     db:"handle"`
	ProfileLastFetched *time.Time `json:"-"                    db:"profile_last_fetched"`
}

// Identity is the authenticated caller attached to a request after
// signature verification. Immutable for the life of the request.
type Identity struct {
	DID      string `json:"did"`
	Verified bool   `json:"verified"`
	Trusted  bool   `json:"trusted"`
	IsAdmin  bool   `json:"isAdmin"`
	Name     string `json:"name,omitempty"`
}

// MembershipContext is attached alongside the identity once a membership
// guard has run.
type MembershipContext struct {
	RingID      uuid.UUID
	RingSlug    string
	RoleName    string
	Permissions []string
}

// Has reports whether the membership grants the named permission.
func (m *MembershipContext) Has(p string) bool {
	for _, perm := range m.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}
