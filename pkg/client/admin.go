package client

import (
	"context"
	"net/http"
	"net/url"
)

// Hub administration. These calls need the identity to hold the hub admin
// flag, or the client to carry WithAdminToken.

// Flagged lists actors whose reputation marks them for review.
func (c *Client) Flagged(ctx context.Context) ([]ActorReputation, error) {
	var wrapper struct {
		Flagged []ActorReputation `json:"flagged"`
	}
	if err := c.get(ctx, "/trp/admin/flagged", &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Flagged, nil
}

// Reputation fetches an actor's reputation record.
func (c *Client) Reputation(ctx context.Context, actorDID string) (*ActorReputation, error) {
	var rep ActorReputation
	if err := c.get(ctx, "/trp/admin/actors/"+url.PathEscape(actorDID)+"/reputation", &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ClearViolations zeroes an actor's violation counters.
func (c *Client) ClearViolations(ctx context.Context, actorDID string) (*ActorReputation, error) {
	var rep ActorReputation
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/clear-violations"
	if err := c.send(ctx, http.MethodPost, path, nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ApplyCooldown suspends an actor's write operations for a number of hours.
func (c *Client) ApplyCooldown(ctx context.Context, actorDID string, req CooldownRequest) (*ActorReputation, error) {
	var rep ActorReputation
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/cooldown"
	if err := c.send(ctx, http.MethodPost, path, req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// GrantAdmin marks an actor as a hub administrator.
func (c *Client) GrantAdmin(ctx context.Context, actorDID string) error {
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/grant-admin"
	return c.send(ctx, http.MethodPost, path, nil, nil)
}

// RevokeAdmin removes an actor's hub administrator flag.
func (c *Client) RevokeAdmin(ctx context.Context, actorDID string) error {
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/revoke-admin"
	return c.send(ctx, http.MethodPost, path, nil, nil)
}

// Trust exempts an actor from rate limiting.
func (c *Client) Trust(ctx context.Context, actorDID string) error {
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/trust"
	return c.send(ctx, http.MethodPost, path, nil, nil)
}

// Untrust restores normal rate limiting for an actor.
func (c *Client) Untrust(ctx context.Context, actorDID string) error {
	path := "/trp/admin/actors/" + url.PathEscape(actorDID) + "/untrust"
	return c.send(ctx, http.MethodPost, path, nil, nil)
}

// VerifyAuditChain recomputes a ring's audit hash chain and reports whether
// it is intact.
func (c *Client) VerifyAuditChain(ctx context.Context, slug string) (*AuditVerification, error) {
	var result AuditVerification
	path := "/trp/admin/rings/" + url.PathEscape(slug) + "/audit/verify"
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}