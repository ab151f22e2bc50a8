//go:build integration

package hub_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/internal/hub/handler"
	"github.com/threadring/ringhub/internal/hub/service"
	"github.com/threadring/ringhub/internal/reputation"
	"github.com/threadring/ringhub/pkg/client"
)

const (
	testHubURL   = "https://hub.test"
	testRootSlug = "spool"
	testSecret   = "integration-operator-secret"
)

func setupIntegration(t *testing.T) *httptest.Server {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set — skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	// Clean state for deterministic tests. Ring-scoped tables cascade.
	for _, table := range []string{"rings", "actors", "actor_reputation", "rate_limit_events"} {
		if _, err := db.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}

	logger := zap.NewNop()

	auditLog := auditlog.NewPostgresLog(db, logger)

	keys, err := badge.LoadOrCreate(t.TempDir())
	if err != nil {
		t.Fatalf("badge key: %v", err)
	}
	signer := badge.NewSigner(keys, testHubURL, "Integration Hub")

	resolver := didresolver.NewResolver(didresolver.NewMemoryCache(time.Hour), logger)

	repos := service.NewRepos(db)
	limiter := service.NewRateLimiter(repos, reputation.NewRuleBasedScorer(), logger)

	profileSvc := service.NewProfileService(repos, resolver, logger)
	badgeSvc := service.NewBadgeService(db, repos, signer, auditLog, logger)

	ringSvc := service.NewRingService(db, repos, auditLog, testRootSlug, logger)
	ringSvc.SetBadgeService(badgeSvc)
	ringSvc.SetRateLimiter(limiter)

	memberSvc := service.NewMembershipService(db, repos, auditLog, logger)
	memberSvc.SetBadgeService(badgeSvc)
	memberSvc.SetProfileService(profileSvc)

	contentSvc := service.NewContentService(db, repos, auditLog, logger)
	challengeSvc := service.NewChallengeService(db, repos, auditLog, logger)
	adminSvc := service.NewAdminService(db, repos, auditLog, testRootSlug, logger)
	adminSvc.SetRateLimiter(limiter)

	if _, err := ringSvc.EnsureRoot(ctx, "did:web:hub.test", "The Spool", "Root ring"); err != nil {
		t.Fatalf("ensure root: %v", err)
	}

	auth := handler.NewAuthenticator(resolver, repos.Actors, logger)
	tokens, err := handler.NewAdminTokens(testSecret, testHubURL)
	if err != nil {
		t.Fatalf("admin tokens: %v", err)
	}
	auth.SetAdminTokens(tokens)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	trp := router.Group("/trp")
	handler.NewRingHandler(ringSvc, auth, logger).Register(trp)
	handler.NewMembershipHandler(memberSvc, auth, logger).Register(trp)
	handler.NewContentHandler(contentSvc, auth, logger).Register(trp)
	handler.NewBadgeHandler(badgeSvc, auth, logger).Register(trp)
	handler.NewChallengeHandler(challengeSvc, auth, logger).Register(trp)
	handler.NewAdminHandler(adminSvc, auth, logger).Register(trp)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv
}

// signingClient returns an SDK client with a fresh did:key identity. did:key
// resolution is offline, so signatures verify without a hosted document.
func signingClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	id, err := client.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.New(srv.URL, client.WithIdentity(id))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func adminClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	tokens, err := handler.NewAdminTokens(testSecret, testHubURL)
	if err != nil {
		t.Fatal(err)
	}
	token, err := tokens.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.New(srv.URL, client.WithAdminToken(token))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRingLifecycle(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	alice := signingClient(t, srv)
	bob := signingClient(t, srv)

	// Create
	ring, err := alice.CreateRing(ctx, client.CreateRingRequest{
		Name:        "Weaving",
		Description: "Fiber arts across the web",
	})
	if err != nil {
		t.Fatalf("create ring: %v", err)
	}
	if ring.Slug != "weaving" {
		t.Errorf("expected derived slug weaving, got %s", ring.Slug)
	}
	if ring.OwnerDID != alice.DID() {
		t.Errorf("owner: got %s, want %s", ring.OwnerDID, alice.DID())
	}

	// Slug is now taken
	avail, err := alice.CheckSlug(ctx, "weaving")
	if err != nil {
		t.Fatalf("check slug: %v", err)
	}
	if avail.Available {
		t.Error("claimed slug should not be available")
	}

	// Join as bob (open policy)
	join, err := bob.Join(ctx, client.JoinRequest{RingSlug: "weaving"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if join.RequiresApproval {
		t.Error("open ring must not require approval")
	}
	if join.Membership.Status != "ACTIVE" {
		t.Errorf("membership status: got %s", join.Membership.Status)
	}
	if join.Membership.BadgeID == "" {
		t.Error("join on a hub with a signing key should issue a badge")
	}

	// Submit as bob
	post, err := bob.Submit(ctx, client.SubmitRequest{
		RingSlug: "weaving",
		URI:      "https://bob.example.net/posts/first-warp",
		Digest:   "sha256:4242",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if post.Status != "ACCEPTED" {
		t.Errorf("open post policy should accept immediately, got %s", post.Status)
	}

	// Duplicate URI conflicts
	if _, err := bob.Submit(ctx, client.SubmitRequest{
		RingSlug: "weaving",
		URI:      "https://bob.example.net/posts/first-warp",
		Digest:   "sha256:4242",
	}); err == nil {
		t.Error("duplicate live URI should conflict")
	}

	// Feed shows it
	posts, err := alice.Feed(ctx, "weaving", client.FeedOptions{})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post in feed, got %d", len(posts))
	}

	// Fork
	child, err := bob.ForkRing(ctx, client.ForkRingRequest{
		CreateRingRequest: client.CreateRingRequest{Name: "Tapestry Weaving"},
		ParentSlug:        "weaving",
	})
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if child.ParentID != ring.ID {
		t.Errorf("fork parent: got %s, want %s", child.ParentID, ring.ID)
	}

	// Lineage
	lineage, err := alice.Lineage(ctx, "weaving")
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if lineage.DescendantCount != 1 {
		t.Errorf("descendant count: got %d, want 1", lineage.DescendantCount)
	}
	if len(lineage.Ancestors) == 0 || lineage.Ancestors[len(lineage.Ancestors)-1].Slug != testRootSlug {
		t.Errorf("lineage should reach the root ring, got %+v", lineage.Ancestors)
	}
}

func TestApplicationJoinFlow(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	owner := signingClient(t, srv)
	applicant := signingClient(t, srv)

	if _, err := owner.CreateRing(ctx, client.CreateRingRequest{
		Name:       "Letterpress",
		JoinPolicy: "APPLICATION",
	}); err != nil {
		t.Fatalf("create ring: %v", err)
	}

	join, err := applicant.Join(ctx, client.JoinRequest{
		RingSlug:           "letterpress",
		ApplicationMessage: "I run a Vandercook.",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !join.RequiresApproval {
		t.Fatal("application ring must park the membership")
	}
	if join.Membership.Status != "PENDING" {
		t.Errorf("membership status: got %s, want PENDING", join.Membership.Status)
	}

	pending, err := owner.Members(ctx, "letterpress", "PENDING", 0, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending member, got %d", len(pending))
	}

	m, err := owner.ApproveMember(ctx, "letterpress", applicant.DID())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if m.Status != "ACTIVE" {
		t.Errorf("approved status: got %s, want ACTIVE", m.Status)
	}
}

func TestForkQuota(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	actor := signingClient(t, srv)

	if _, err := actor.CreateRing(ctx, client.CreateRingRequest{Name: "Basecamp"}); err != nil {
		t.Fatalf("create ring: %v", err)
	}

	// A brand-new actor gets one fork per hour.
	if _, err := actor.ForkRing(ctx, client.ForkRingRequest{
		CreateRingRequest: client.CreateRingRequest{Name: "Camp One"},
		ParentSlug:        "basecamp",
	}); err != nil {
		t.Fatalf("first fork: %v", err)
	}

	_, err := actor.ForkRing(ctx, client.ForkRingRequest{
		CreateRingRequest: client.CreateRingRequest{Name: "Camp Two"},
		ParentSlug:        "basecamp",
	})
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("second fork within the hour: expected ErrRateLimited, got %v", err)
	}
}

func TestBadgeValidAndRevokedOnLeave(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	owner := signingClient(t, srv)
	member := signingClient(t, srv)

	if _, err := owner.CreateRing(ctx, client.CreateRingRequest{Name: "Zine Makers"}); err != nil {
		t.Fatalf("create ring: %v", err)
	}
	join, err := member.Join(ctx, client.JoinRequest{RingSlug: "zine-makers"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	badgeID := join.Membership.BadgeID
	if badgeID == "" {
		t.Fatal("expected badge on join")
	}

	verdict, err := member.VerifyBadge(ctx, badgeID, nil)
	if err != nil {
		t.Fatalf("verify badge: %v", err)
	}
	if !verdict.Valid {
		t.Errorf("fresh badge should verify, got: %s", verdict.Reason)
	}

	if err := member.Leave(ctx, "zine-makers", "moving on"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	verdict, err = member.VerifyBadge(ctx, badgeID, nil)
	if err != nil {
		t.Fatalf("verify after leave: %v", err)
	}
	if verdict.Valid {
		t.Error("badge should be revoked after leaving")
	}
}

func TestPrivateRingHidden(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	owner := signingClient(t, srv)
	stranger := signingClient(t, srv)
	anon, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := owner.CreateRing(ctx, client.CreateRingRequest{
		Name:       "Hidden Garden",
		Visibility: "PRIVATE",
	}); err != nil {
		t.Fatalf("create ring: %v", err)
	}

	if _, err := anon.GetRing(ctx, "hidden-garden"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("anonymous read of private ring: expected ErrNotFound, got %v", err)
	}
	if _, err := stranger.GetRing(ctx, "hidden-garden"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("non-member read of private ring: expected ErrNotFound, got %v", err)
	}
	if _, err := owner.GetRing(ctx, "hidden-garden"); err != nil {
		t.Errorf("owner read of private ring: %v", err)
	}
}

func TestAuditChainVerify(t *testing.T) {
	srv := setupIntegration(t)
	ctx := context.Background()

	owner := signingClient(t, srv)
	admin := adminClient(t, srv)

	if _, err := owner.CreateRing(ctx, client.CreateRingRequest{Name: "Chain Test"}); err != nil {
		t.Fatalf("create ring: %v", err)
	}
	member := signingClient(t, srv)
	if _, err := member.Join(ctx, client.JoinRequest{RingSlug: "chain-test"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := member.Submit(ctx, client.SubmitRequest{
		RingSlug: "chain-test",
		URI:      "https://member.example.org/p/1",
		Digest:   "sha256:01",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	verdict, err := admin.VerifyAuditChain(ctx, "chain-test")
	if err != nil {
		t.Fatalf("verify audit chain: %v", err)
	}
	if !verdict.Valid {
		t.Errorf("audit chain should verify, got: %s", verdict.Error)
	}
}
