package didresolver_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/pkg/did"
)

const w3cKeyVector = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"

func testKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

// webServer serves a DID document for the given path and returns the server
// plus the did:web identifier that resolves to it.
func webServer(t *testing.T, path string, doc func(didStr string) *didresolver.Document, hits *atomic.Int64) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	didStr := "did:web:" + strings.ReplaceAll(host, ":", "%3A")
	if path != "/.well-known/did.json" {
		segs := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/did.json")
		didStr += ":" + strings.ReplaceAll(segs, "/", ":")
	}

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc(didStr)); err != nil {
			t.Errorf("encode document: %v", err)
		}
	})
	return srv, didStr
}

func docWithKey(pub ed25519.PublicKey) func(didStr string) *didresolver.Document {
	return func(didStr string) *didresolver.Document {
		return &didresolver.Document{
			ID: didStr,
			VerificationMethod: []didresolver.VerificationMethod{{
				ID:              didStr + "#key-1",
				Type:            "Ed25519VerificationKey2020",
				Controller:      didStr,
				PublicKeyBase64: base64.StdEncoding.EncodeToString(pub),
			}},
			Service: []didresolver.Service{{
				Type:            "Profile",
				ServiceEndpoint: "https://example.com/@alice",
			}},
		}
	}
}

func TestResolveDIDKey(t *testing.T) {
	r := didresolver.NewResolver(nil, zap.NewNop())

	doc, err := r.Resolve(context.Background(), w3cKeyVector)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if doc.ID != w3cKeyVector {
		t.Errorf("document id = %q, want %q", doc.ID, w3cKeyVector)
	}
	if len(doc.VerificationMethod) != 1 {
		t.Fatalf("got %d verification methods, want 1", len(doc.VerificationMethod))
	}

	key, err := doc.VerificationMethod[0].PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	want, err := did.MustParse(w3cKeyVector).Ed25519Key()
	if err != nil {
		t.Fatalf("Ed25519Key: %v", err)
	}
	if !key.Equal(want) {
		t.Error("synthesized document key does not match the key embedded in the DID")
	}
}

func TestResolveDIDWeb(t *testing.T) {
	pub, _ := testKey(t)
	var hits atomic.Int64
	_, didStr := webServer(t, "/.well-known/did.json", docWithKey(pub), &hits)

	r := didresolver.NewResolver(didresolver.NewMemoryCache(time.Hour), zap.NewNop())

	doc, err := r.Resolve(context.Background(), didStr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if doc.ID != didStr {
		t.Errorf("document id = %q, want %q", doc.ID, didStr)
	}
	if svc := doc.ProfileService(); svc == nil || svc.ServiceEndpoint != "https://example.com/@alice" {
		t.Errorf("ProfileService = %+v, want endpoint https://example.com/@alice", svc)
	}

	// Second resolve must come from cache.
	if _, err := r.Resolve(context.Background(), didStr); err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("document fetched %d times, want 1", got)
	}
}

func TestResolvePathfulDIDWeb(t *testing.T) {
	pub, _ := testKey(t)
	_, didStr := webServer(t, "/users/alice/did.json", docWithKey(pub), nil)

	r := didresolver.NewResolver(nil, zap.NewNop())
	doc, err := r.Resolve(context.Background(), didStr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if doc.ID != didStr {
		t.Errorf("document id = %q, want %q", doc.ID, didStr)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	pub, _ := testKey(t)
	var hits atomic.Int64
	_, didStr := webServer(t, "/.well-known/did.json", docWithKey(pub), &hits)

	r := didresolver.NewResolver(didresolver.NewMemoryCache(time.Hour), zap.NewNop())

	if _, err := r.Resolve(context.Background(), didStr); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.Refresh(context.Background(), didStr); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("document fetched %d times, want 2", got)
	}
}

func TestResolveRejectsMismatchedDocumentID(t *testing.T) {
	pub, _ := testKey(t)
	_, didStr := webServer(t, "/.well-known/did.json", func(string) *didresolver.Document {
		return docWithKey(pub)("did:web:evil.example.com")
	}, nil)

	r := didresolver.NewResolver(nil, zap.NewNop())
	if _, err := r.Resolve(context.Background(), didStr); err == nil {
		t.Fatal("expected error for mismatched document id")
	}
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")
	didStr := "did:web:" + strings.ReplaceAll(host, ":", "%3A")

	r := didresolver.NewResolver(nil, zap.NewNop())
	_, err := r.Resolve(context.Background(), didStr)
	if !errors.Is(err, didresolver.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestResolveUnsupportedMethod(t *testing.T) {
	r := didresolver.NewResolver(nil, zap.NewNop())
	_, err := r.Resolve(context.Background(), "did:plc:abc123")
	if !errors.Is(err, didresolver.ErrUnresolvable) {
		t.Fatalf("got %v, want ErrUnresolvable", err)
	}
}

func TestResolveKey(t *testing.T) {
	pub, _ := testKey(t)
	_, didStr := webServer(t, "/.well-known/did.json", docWithKey(pub), nil)

	r := didresolver.NewResolver(nil, zap.NewNop())

	for _, keyID := range []string{didStr, didStr + "#key-1"} {
		key, err := r.ResolveKey(context.Background(), keyID)
		if err != nil {
			t.Fatalf("ResolveKey(%q): %v", keyID, err)
		}
		if !key.Equal(pub) {
			t.Errorf("ResolveKey(%q) returned wrong key", keyID)
		}
	}

	if _, err := r.ResolveKey(context.Background(), didStr+"#missing"); err == nil {
		t.Error("expected error for unknown key fragment")
	}
}

func TestSelectMethod(t *testing.T) {
	doc := &didresolver.Document{
		ID: "did:web:example.com",
		VerificationMethod: []didresolver.VerificationMethod{
			{ID: "did:web:example.com#key-1"},
			{ID: "did:web:example.com#key-2"},
		},
	}

	tests := []struct {
		keyID   string
		wantID  string
		wantErr bool
	}{
		{keyID: "did:web:example.com", wantID: "did:web:example.com#key-1"},
		{keyID: "did:web:example.com#key-2", wantID: "did:web:example.com#key-2"},
		{keyID: "did:web:example.com#nope", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.keyID, func(t *testing.T) {
			m, err := doc.SelectMethod(tc.keyID)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectMethod: %v", err)
			}
			if m.ID != tc.wantID {
				t.Errorf("selected %q, want %q", m.ID, tc.wantID)
			}
		})
	}
}

func TestVerificationMethodPublicKey(t *testing.T) {
	pub, _ := testKey(t)
	multibaseKey, err := did.EncodeMultibaseKey(pub)
	if err != nil {
		t.Fatalf("EncodeMultibaseKey: %v", err)
	}

	tests := []struct {
		name    string
		method  didresolver.VerificationMethod
		wantErr bool
	}{
		{
			name:   "base64",
			method: didresolver.VerificationMethod{PublicKeyBase64: base64.StdEncoding.EncodeToString(pub)},
		},
		{
			name:   "multibase",
			method: didresolver.VerificationMethod{PublicKeyMultibase: multibaseKey},
		},
		{
			name:    "base64 wrong length",
			method:  didresolver.VerificationMethod{PublicKeyBase64: base64.StdEncoding.EncodeToString([]byte("short"))},
			wantErr: true,
		},
		{
			name:    "multibase wrong base",
			method:  didresolver.VerificationMethod{PublicKeyMultibase: "uMTIzNDU"},
			wantErr: true,
		},
		{
			name:    "no key material",
			method:  didresolver.VerificationMethod{ID: "did:web:example.com#key-1"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			key, err := tc.method.PublicKey()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("PublicKey: %v", err)
			}
			if !key.Equal(pub) {
				t.Error("extracted key does not match")
			}
		})
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := didresolver.NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()
	doc := &didresolver.Document{ID: "did:web:example.com"}

	cache.Set(ctx, doc.ID, doc)
	if got, ok := cache.Get(ctx, doc.ID); !ok || got.ID != doc.ID {
		t.Fatal("expected cache hit immediately after Set")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get(ctx, doc.ID); ok {
		t.Error("expected cache miss after TTL")
	}
}

func TestMemoryCachePurgeAndEvict(t *testing.T) {
	cache := didresolver.NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("did:web:host%d.example.com", i)
		cache.Set(ctx, id, &didresolver.Document{ID: id})
	}
	cache.Purge(ctx, "did:web:host0.example.com")
	if cache.Len() != 2 {
		t.Fatalf("Len = %d after Purge, want 2", cache.Len())
	}

	time.Sleep(20 * time.Millisecond)
	if dropped := cache.Evict(); dropped != 2 {
		t.Errorf("Evict dropped %d, want 2", dropped)
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d after Evict, want 0", cache.Len())
	}
}
