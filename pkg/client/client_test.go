package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/threadring/ringhub/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	ringJSON := map[string]any{
		"id":         "550e8400-e29b-41d4-a716-446655440000",
		"slug":       "indieweb",
		"name":       "IndieWeb",
		"visibility": "PUBLIC",
		"joinPolicy": "OPEN",
		"postPolicy": "MEMBERS",
		"ownerDid":   "did:key:z6MkOwner",
	}

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":     "Test Hub",
			"protocol": "ring-hub",
			"version":  "1.0.0",
		})
	})

	mux.HandleFunc("/trp/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rings":  map[string]any{"total": 12, "public": 10},
			"actors": map[string]any{"total": 40, "verified": 38},
		})
	})

	mux.HandleFunc("/trp/root", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "00000000-0000-0000-0000-000000000001", "slug": "spool", "name": "The Spool",
			"visibility": "PUBLIC", "joinPolicy": "OPEN", "postPolicy": "MEMBERS",
		})
	})

	mux.HandleFunc("/trp/rings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if r.Header.Get("Signature") == "" {
				http.Error(w, `{"error":"signature required"}`, http.StatusUnauthorized)
				return
			}
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"id": "660e8400-e29b-41d4-a716-446655440001", "slug": "new-ring",
				"name": req["name"], "visibility": "PUBLIC",
			})
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"rings": []map[string]any{ringJSON},
				"count": 1,
			})
		}
	})

	mux.HandleFunc("/trp/rings/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/trp/rings/")

		if strings.HasSuffix(path, "/feed") {
			json.NewEncoder(w).Encode(map[string]any{
				"posts": []map[string]any{
					{"id": "770e8400-e29b-41d4-a716-446655440002", "uri": "https://a.example.com/p/1", "status": "ACCEPTED"},
				},
				"count": 1,
			})
			return
		}
		if strings.HasSuffix(path, "/members") {
			json.NewEncoder(w).Encode(map[string]any{
				"members": []map[string]any{
					{"actorDid": "did:key:z6MkMember", "status": "ACTIVE", "roleName": "member"},
				},
				"count": 1,
			})
			return
		}
		if strings.HasSuffix(path, "/lineage") {
			json.NewEncoder(w).Encode(map[string]any{
				"ring":            ringJSON,
				"ancestors":       []map[string]any{{"slug": "spool"}},
				"descendants":     []map[string]any{},
				"descendantCount": 3,
			})
			return
		}
		if strings.HasSuffix(path, "/audit") {
			json.NewEncoder(w).Encode(map[string]any{
				"entries": []map[string]any{
					{"action": "ring.created", "actorDid": "did:key:z6MkOwner", "entryHash": "abc"},
				},
				"count": 1,
			})
			return
		}

		// GET/PUT/DELETE /trp/rings/:slug
		slug := strings.Split(path, "/")[0]
		if slug == "no-such-ring" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			if r.Header.Get("Signature") == "" {
				http.Error(w, `{"error":"signature required"}`, http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(ringJSON)
	})

	mux.HandleFunc("/trp/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Signature") == "" {
			http.Error(w, `{"error":"signature required"}`, http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"membership":       map[string]any{"actorDid": "did:key:z6MkMember", "status": "ACTIVE"},
			"ring":             ringJSON,
			"requiresApproval": false,
		})
	})

	mux.HandleFunc("/trp/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Signature") == "" {
			http.Error(w, `{"error":"signature required"}`, http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Digest") == "" {
			http.Error(w, `{"error":"digest required"}`, http.StatusBadRequest)
			return
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "880e8400-e29b-41d4-a716-446655440003", "uri": req["uri"], "status": "ACCEPTED",
		})
	})

	mux.HandleFunc("/trp/admin/flagged", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"admin identity required"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"flagged": []map[string]any{
				{"actorDid": "did:key:z6MkNoisy", "tier": "NEW", "violationCount": 6},
			},
			"count": 1,
		})
	})

	return httptest.NewServer(mux)
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestGetRing_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	ring, err := c.GetRing(context.Background(), "indieweb")
	if err != nil {
		t.Fatalf("GetRing: %v", err)
	}
	if ring.Slug != "indieweb" {
		t.Errorf("unexpected slug: %s", ring.Slug)
	}
	if ring.OwnerDID != "did:key:z6MkOwner" {
		t.Errorf("unexpected owner: %s", ring.OwnerDID)
	}
}

func TestGetRing_notFound(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)
	_, err := c.GetRing(context.Background(), "no-such-ring")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRing_cache(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		json.NewEncoder(w).Encode(map[string]any{"slug": "cached", "name": "Cached"})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithCacheTTL(5*time.Minute))

	c.GetRing(context.Background(), "cached")
	c.GetRing(context.Background(), "cached")

	if callCount != 1 {
		t.Errorf("expected 1 HTTP call (cached), got %d", callCount)
	}
}

func TestUpdateRing_dropsCache(t *testing.T) {
	getCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getCount++
		}
		json.NewEncoder(w).Encode(map[string]any{"slug": "cached", "name": "Cached"})
	}))
	defer srv.Close()

	id, _ := client.GenerateIdentity()
	c, _ := client.New(srv.URL, client.WithCacheTTL(5*time.Minute), client.WithIdentity(id))

	c.GetRing(context.Background(), "cached")
	name := "Renamed"
	if _, err := c.UpdateRing(context.Background(), "cached", client.UpdateRingRequest{Name: &name}); err != nil {
		t.Fatalf("UpdateRing: %v", err)
	}
	c.GetRing(context.Background(), "cached")

	if getCount != 2 {
		t.Errorf("expected cache drop after update (2 GETs), got %d", getCount)
	}
}

func TestListRings_filters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"rings": []map[string]any{}, "count": 0})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL)
	_, err := c.ListRings(context.Background(), client.RingFilter{
		Search: "retro", Visibility: "PUBLIC", Limit: 10, Offset: 20,
	})
	if err != nil {
		t.Fatalf("ListRings: %v", err)
	}
	for _, want := range []string{"search=retro", "visibility=PUBLIC", "limit=10", "offset=20"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestCreateRing_signed(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	id, err := client.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	c, _ := client.New(srv.URL, client.WithIdentity(id))

	ring, err := c.CreateRing(context.Background(), client.CreateRingRequest{Name: "New Ring"})
	if err != nil {
		t.Fatalf("CreateRing: %v", err)
	}
	if ring.Name != "New Ring" {
		t.Errorf("unexpected name: %s", ring.Name)
	}
}

func TestCreateRing_unauthorized(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL) // anonymous

	_, err := c.CreateRing(context.Background(), client.CreateRingRequest{Name: "New Ring"})
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestJoin_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	id, _ := client.GenerateIdentity()
	c, _ := client.New(srv.URL, client.WithIdentity(id))

	res, err := c.Join(context.Background(), client.JoinRequest{RingSlug: "indieweb"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.RequiresApproval {
		t.Error("open ring should not require approval")
	}
	if res.Membership == nil || res.Membership.Status != "ACTIVE" {
		t.Errorf("unexpected membership: %+v", res.Membership)
	}
}

func TestSubmit_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	id, _ := client.GenerateIdentity()
	c, _ := client.New(srv.URL, client.WithIdentity(id))

	post, err := c.Submit(context.Background(), client.SubmitRequest{
		RingSlug: "indieweb",
		URI:      "https://maya.example.com/posts/hello",
		Digest:   "sha256:deadbeef",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if post.URI != "https://maya.example.com/posts/hello" {
		t.Errorf("unexpected uri: %s", post.URI)
	}
}

func TestFeed_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	posts, err := c.Feed(context.Background(), "indieweb", client.FeedOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Status != "ACCEPTED" {
		t.Errorf("unexpected status: %s", posts[0].Status)
	}
}

func TestLineage_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	lineage, err := c.Lineage(context.Background(), "indieweb")
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if lineage.DescendantCount != 3 {
		t.Errorf("unexpected descendant count: %d", lineage.DescendantCount)
	}
	if len(lineage.Ancestors) != 1 {
		t.Errorf("expected 1 ancestor, got %d", len(lineage.Ancestors))
	}
}

func TestMembers_success(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	members, err := c.Members(context.Background(), "indieweb", "", 0, 0)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].ActorDID != "did:key:z6MkMember" {
		t.Errorf("unexpected member: %s", members[0].ActorDID)
	}
}

func TestDeleteRing_unauthorized(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL) // no identity

	err := c.DeleteRing(context.Background(), "indieweb")
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFlagged_adminToken(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithAdminToken("operator-token"))

	flagged, err := c.Flagged(context.Background())
	if err != nil {
		t.Fatalf("Flagged: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ViolationCount != 6 {
		t.Errorf("unexpected flagged list: %+v", flagged)
	}
}

func TestFlagged_noToken(t *testing.T) {
	srv := stubHubServer(t)
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.Flagged(context.Background())
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRateLimited_sentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL)

	_, err := c.GetRing(context.Background(), "anything")
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !strings.Contains(err.Error(), "42") {
		t.Errorf("expected retry hint in message, got %q", err.Error())
	}
}

func TestSigner_coversDateAndDigest(t *testing.T) {
	var gotSig, gotDate, gotDigest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("Signature")
		gotDate = r.Header.Get("Date")
		gotDigest = r.Header.Get("Digest")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "x"})
	}))
	defer srv.Close()

	id, _ := client.GenerateIdentity()
	c, _ := client.New(srv.URL, client.WithIdentity(id))

	if _, err := c.Submit(context.Background(), client.SubmitRequest{
		RingSlug: "r", URI: "https://a.example.com/p", Digest: "sha256:aa",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotSig == "" {
		t.Fatal("expected Signature header")
	}
	if !strings.Contains(gotSig, `keyId="`+id.DID) {
		t.Errorf("signature keyId should carry the DID: %s", gotSig)
	}
	if gotDate == "" {
		t.Error("expected Date header")
	}
	if !strings.HasPrefix(gotDigest, "sha-256=") {
		t.Errorf("expected body digest header, got %q", gotDigest)
	}
}

func TestIdentity_saveLoadRoundTrip(t *testing.T) {
	id, err := client.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}

	path := t.TempDir() + "/identity.json"
	if err := id.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := client.LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if loaded.DID != id.DID {
		t.Errorf("DID changed across save/load: %s != %s", loaded.DID, id.DID)
	}
	if !strings.HasPrefix(loaded.DID, "did:key:z") {
		t.Errorf("expected did:key, got %s", loaded.DID)
	}
}
