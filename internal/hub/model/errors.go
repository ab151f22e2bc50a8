package model

import (
	"fmt"
	"time"
)

// ErrValidation is returned by service methods when the caller supplies
// invalid input. Handlers convert it to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrForbidden is returned when the caller's identity, membership, or role
// does not permit the operation. Handlers convert it to HTTP 403.
type ErrForbidden struct{ Msg string }

func (e *ErrForbidden) Error() string { return e.Msg }

// ErrConflict is returned when the request collides with existing state,
// such as joining a ring twice. Handlers convert it to HTTP 409.
type ErrConflict struct{ Msg string }

func (e *ErrConflict) Error() string { return e.Msg }

// ErrDuplicatePost reports that a ring already holds a live reference for
// the submitted URI. Handlers return 409 with the existing reference
// embedded so the caller can reconcile.
type ErrDuplicatePost struct{ Existing *PostRef }

func (e *ErrDuplicatePost) Error() string { return "content already submitted to this ring" }

// ErrDuplicateMembership reports that the actor already holds a live
// membership in the ring. Handlers return 409 with the membership embedded.
type ErrDuplicateMembership struct{ Existing *Membership }

func (e *ErrDuplicateMembership) Error() string {
	if e.Existing != nil && e.Existing.Status == MembershipPending {
		return "membership application already pending"
	}
	return "already an active member of this ring"
}

// ErrRateLimited reports an exhausted quota or an active cooldown. Handlers
// convert it to HTTP 429, with Retry-After when the deadline is known.
type ErrRateLimited struct {
	Action     string
	Tier       Tier
	Window     QuotaWindow   // empty when the denial came from a cooldown
	RetryAfter time.Duration // zero when unknown
}

func (e *ErrRateLimited) Error() string {
	if e.Window == "" {
		return fmt.Sprintf("action %q denied: cooldown active", e.Action)
	}
	return fmt.Sprintf("action %q exceeds the %s limit for tier %s", e.Action, e.Window, e.Tier)
}
