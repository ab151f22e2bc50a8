// Package client is the Thread Ring Protocol (TRP) Go SDK.
//
// It provides everything a site or service needs to work with a Ring Hub:
// browsing rings and feeds, joining and submitting content, moderating,
// issuing invitations, and verifying membership badges — all in one
// coherent API.
//
// # Reading without an identity
//
// Public reads need no key material. Point the client at a hub and go:
//
//	c, err := client.New("https://hub.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ring, err := c.GetRing(ctx, "indieweb")
//	posts, err := c.Feed(ctx, "indieweb", client.FeedOptions{Limit: 20})
//
// # Connecting with an identity (most common case)
//
// Write operations are authenticated with HTTP signatures. After running
// 'trp keygen', your identity lives in ~/.trp/identity.json. Load it in
// one call:
//
//	c, err := client.NewFromIdentityFile(
//	    "https://hub.example.com",
//	    os.ExpandEnv("$HOME/.trp/identity.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or generate one programmatically:
//
//	id, _ := client.GenerateIdentity()
//	_ = id.Save("identity.json")
//	c, _ := client.New(hubURL, client.WithIdentity(id))
//
// # Joining and submitting
//
// Join returns immediately on open rings; application rings park the
// membership until a moderator approves it:
//
//	res, err := c.Join(ctx, client.JoinRequest{RingSlug: "indieweb"})
//	if res.RequiresApproval {
//	    fmt.Println("application pending")
//	}
//
//	post, err := c.Submit(ctx, client.SubmitRequest{
//	    RingSlug: "indieweb",
//	    URI:      "https://maya.example.com/posts/hello",
//	    Digest:   "sha256:9f86d08...",
//	})
//
// # Moderating
//
// Moderators drain the pending queue and act on posts by ID:
//
//	pending, _ := c.Queue(ctx, "indieweb", 50, 0)
//	for _, p := range pending {
//	    c.Curate(ctx, client.CurateRequest{PostID: p.ID, Action: client.CurateAccept})
//	}
//
// # Badges
//
// Membership badges are W3C Verifiable Credentials. VerifyBadge asks the
// hub to check one; pass the raw credential to verify a badge presented by
// a third party, or nil to verify the hub's stored copy:
//
//	v, err := c.VerifyBadge(ctx, badgeID, rawCredential)
//	fmt.Println(v.Valid, v.Reason)
//
// # Caching
//
// Ring descriptors change rarely. Add caching to avoid repeated lookups:
//
//	c, _ := client.New(hubURL, client.WithCacheTTL(60*time.Second))
//
// Mutations made through the same client invalidate the affected entry.
//
// # Errors
//
// Hub rejections map to sentinel errors; test them with errors.Is:
//
//	_, err := c.GetRing(ctx, "no-such-ring")
//	if errors.Is(err, client.ErrNotFound) {
//	    // handle missing ring
//	}
//
// ErrUnauthorized means the signature was missing or invalid, ErrForbidden
// means the identity lacks permission, and ErrRateLimited carries the
// hub's retry hint in its message.
package client