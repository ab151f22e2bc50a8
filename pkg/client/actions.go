package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Signed operations. Every method in this file requires the client to be
// configured with WithIdentity (or WithAdminToken where noted); the hub
// rejects unsigned calls with 401.

// CreateRing creates a ring parented to the hub's root ring.
func (c *Client) CreateRing(ctx context.Context, req CreateRingRequest) (*Ring, error) {
	var ring Ring
	if err := c.send(ctx, http.MethodPost, "/trp/rings", req, &ring); err != nil {
		return nil, err
	}
	return &ring, nil
}

// ForkRing creates a ring descending from an existing parent.
func (c *Client) ForkRing(ctx context.Context, req ForkRingRequest) (*Ring, error) {
	var ring Ring
	if err := c.send(ctx, http.MethodPost, "/trp/fork", req, &ring); err != nil {
		return nil, err
	}
	return &ring, nil
}

// UpdateRing updates a ring's descriptors and policies. Owner only.
func (c *Client) UpdateRing(ctx context.Context, slug string, req UpdateRingRequest) (*Ring, error) {
	var ring Ring
	if err := c.send(ctx, http.MethodPut, "/trp/rings/"+url.PathEscape(slug), req, &ring); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.drop(slug)
	}
	return &ring, nil
}

// DeleteRing deletes a ring. Owner only; descendants are reparented to the
// deleted ring's parent.
func (c *Client) DeleteRing(ctx context.Context, slug string) error {
	if err := c.send(ctx, http.MethodDelete, "/trp/rings/"+url.PathEscape(slug), nil, nil); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.drop(slug)
	}
	return nil
}

// AuditLog fetches a ring's audit entries, newest first. Requires audit
// permission on the ring.
func (c *Client) AuditLog(ctx context.Context, slug string, f AuditFilter) ([]AuditEntry, error) {
	q := url.Values{}
	if f.Action != "" {
		q.Set("action", f.Action)
	}
	if f.ActorDID != "" {
		q.Set("actorDid", f.ActorDID)
	}
	if f.TargetDID != "" {
		q.Set("targetDid", f.TargetDID)
	}
	if f.Since != nil {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		q.Set("until", f.Until.UTC().Format(time.RFC3339))
	}
	setPage(q, f.Limit, f.Offset)

	var wrapper struct {
		Entries []AuditEntry `json:"entries"`
	}
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/audit"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Entries, nil
}

// Join joins a ring as the client's identity. Check RequiresApproval on the
// result: application rings park the membership as pending.
func (c *Client) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	var result JoinResult
	if err := c.send(ctx, http.MethodPost, "/trp/join", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Leave leaves a ring. Owners must transfer or delete the ring instead.
func (c *Client) Leave(ctx context.Context, slug, reason string) error {
	in := map[string]string{"ringSlug": slug}
	if reason != "" {
		in["reason"] = reason
	}
	return c.send(ctx, http.MethodPost, "/trp/leave", in, nil)
}

// UpdateMemberRole changes a member's role. Requires role management
// permission on the ring.
func (c *Client) UpdateMemberRole(ctx context.Context, slug, memberDID, role string) (*Membership, error) {
	var m Membership
	path := "/trp/rings/" + url.PathEscape(slug) + "/members/" + url.PathEscape(memberDID)
	if err := c.send(ctx, http.MethodPut, path, map[string]string{"role": role}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveMember revokes a member's membership.
func (c *Client) RemoveMember(ctx context.Context, slug, memberDID string) error {
	path := "/trp/rings/" + url.PathEscape(slug) + "/members/" + url.PathEscape(memberDID)
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

// ApproveMember activates a pending application.
func (c *Client) ApproveMember(ctx context.Context, slug, memberDID string) (*Membership, error) {
	var m Membership
	path := "/trp/rings/" + url.PathEscape(slug) + "/members/" + url.PathEscape(memberDID) + "/approve"
	if err := c.send(ctx, http.MethodPost, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeclineMember rejects a pending application.
func (c *Client) DeclineMember(ctx context.Context, slug, memberDID string) error {
	path := "/trp/rings/" + url.PathEscape(slug) + "/members/" + url.PathEscape(memberDID) + "/decline"
	return c.send(ctx, http.MethodPost, path, nil, nil)
}

// Invite invites an actor to a ring.
func (c *Client) Invite(ctx context.Context, slug, inviteeDID, message string) (*Invitation, error) {
	in := map[string]string{"inviteeDid": inviteeDID}
	if message != "" {
		in["message"] = message
	}
	var inv Invitation
	if err := c.send(ctx, http.MethodPost, "/trp/rings/"+url.PathEscape(slug)+"/invite", in, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Blocks lists a ring's blocks. Requires member management permission.
func (c *Client) Blocks(ctx context.Context, slug string) ([]Block, error) {
	var wrapper struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/blocks", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Blocks, nil
}

// CreateBlock bars a target DID or instance from a ring.
func (c *Client) CreateBlock(ctx context.Context, slug string, req CreateBlockRequest) (*Block, error) {
	var block Block
	if err := c.send(ctx, http.MethodPost, "/trp/rings/"+url.PathEscape(slug)+"/blocks", req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// DeleteBlock lifts a block by ID.
func (c *Client) DeleteBlock(ctx context.Context, slug, blockID string) error {
	path := "/trp/rings/" + url.PathEscape(slug) + "/blocks/" + url.PathEscape(blockID)
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

// MyMemberships lists the calling identity's memberships with ring summaries.
func (c *Client) MyMemberships(ctx context.Context) ([]MembershipWithRing, error) {
	var wrapper struct {
		Memberships []MembershipWithRing `json:"memberships"`
	}
	if err := c.get(ctx, "/trp/my/memberships", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Memberships, nil
}

// MyInvitations lists invitations addressed to the calling identity.
func (c *Client) MyInvitations(ctx context.Context, status string) ([]Invitation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var wrapper struct {
		Invitations []Invitation `json:"invitations"`
	}
	if err := c.get(ctx, "/trp/my/invitations"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Invitations, nil
}

// Submit submits a content reference to a ring. On curated rings the post
// comes back PENDING until a moderator accepts it.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*PostRef, error) {
	var post PostRef
	if err := c.send(ctx, http.MethodPost, "/trp/submit", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Curate applies a moderation action to a post. Authors may remove their own
// posts; everything else requires moderation permission.
func (c *Client) Curate(ctx context.Context, req CurateRequest) (*CurateResult, error) {
	var result CurateResult
	if err := c.send(ctx, http.MethodPost, "/trp/curate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Queue lists a ring's pending posts. Requires moderation permission.
func (c *Client) Queue(ctx context.Context, slug string, limit, offset int) ([]PostRef, error) {
	q := url.Values{}
	setPage(q, limit, offset)
	var wrapper struct {
		Posts []PostRef `json:"posts"`
	}
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/queue"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// MyFeed aggregates accepted posts across the calling identity's rings.
func (c *Client) MyFeed(ctx context.Context, opts FeedOptions) ([]PostRef, error) {
	var wrapper struct {
		Posts []PostRef `json:"posts"`
	}
	if err := c.get(ctx, "/trp/my/feed"+query(feedQuery(opts)), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// UpdateRingBadge updates a ring's badge artwork, optionally re-issuing
// existing badges. Owner only.
func (c *Client) UpdateRingBadge(ctx context.Context, slug string, req UpdateRingBadgeRequest) (*BadgeRegeneration, error) {
	var result BadgeRegeneration
	if err := c.send(ctx, http.MethodPut, "/trp/rings/"+url.PathEscape(slug)+"/badge", req, &result); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.drop(slug)
	}
	return &result, nil
}

// CreateChallenge opens a posting prompt on a ring. Requires moderation
// permission.
func (c *Client) CreateChallenge(ctx context.Context, slug string, req CreateChallengeRequest) (*Challenge, error) {
	var ch Challenge
	if err := c.send(ctx, http.MethodPost, "/trp/rings/"+url.PathEscape(slug)+"/challenges", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// DeactivateChallenge closes a posting prompt.
func (c *Client) DeactivateChallenge(ctx context.Context, slug, challengeID string) (*Challenge, error) {
	var ch Challenge
	path := "/trp/rings/" + url.PathEscape(slug) + "/challenges/" + url.PathEscape(challengeID) + "/deactivate"
	if err := c.send(ctx, http.MethodPost, path, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// NotifyProfileUpdated tells the hub an actor's profile changed so cached
// copies refresh. The refresh runs out of band; a nil error only means the
// hub accepted the nudge.
func (c *Client) NotifyProfileUpdated(ctx context.Context, actorDID string) error {
	path := "/trp/actors/" + url.PathEscape(actorDID) + "/profile-updated"
	if err := c.send(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("notify profile update: %w", err)
	}
	return nil
}