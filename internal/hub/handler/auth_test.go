package handler_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/handler"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/pkg/did"
	"github.com/threadring/ringhub/pkg/httpsig"
)

// ── Stubs ────────────────────────────────────────────────────────────────

// stubKeys resolves every keyId to a fixed key, or fails.
type stubKeys struct {
	key ed25519.PublicKey
	err error
}

func (s *stubKeys) ResolveKey(_ context.Context, _ string) (ed25519.PublicKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.key, nil
}

// stubActors is an in-memory actor store.
type stubActors struct {
	mu        sync.Mutex
	actors    map[string]*model.Actor
	upserts   int
	bumps     int
	upsertErr error
	getErr    error
}

func newStubActors() *stubActors {
	return &stubActors{actors: make(map[string]*model.Actor)}
}

func (s *stubActors) GetByDID(_ context.Context, didStr string) (*model.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	a, ok := s.actors[didStr]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (s *stubActors) Upsert(_ context.Context, a *model.Actor) (*model.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.actors[a.DID] = a
	return a, nil
}

func (s *stubActors) BumpLastSeen(_ context.Context, didStr string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumps++
	return nil
}

// ── Test setup ───────────────────────────────────────────────────────────

type testIdentity struct {
	did    string
	pub    ed25519.PublicKey
	signer *httpsig.Signer
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	d, err := did.FromEd25519Key(pub)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := httpsig.NewSigner(d.String(), priv)
	if err != nil {
		t.Fatal(err)
	}
	return &testIdentity{did: d.String(), pub: pub, signer: signer}
}

// echoRouter mounts guard on /probe and echoes the identity it sees.
func echoRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(http.MethodGet, "/probe", guard, echoIdentity)
	r.Handle(http.MethodPost, "/probe", guard, echoIdentity)
	return r
}

func echoIdentity(c *gin.Context) {
	ident := handler.IdentityFromCtx(c)
	if ident == nil {
		c.JSON(http.StatusOK, gin.H{"anonymous": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"did": ident.DID, "isAdmin": ident.IsAdmin})
}

func signedRequest(t *testing.T, id *testIdentity, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if err := id.signer.Sign(req, body); err != nil {
		t.Fatal(err)
	}
	return req
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestOptional_anonymousPassesThrough(t *testing.T) {
	auth := handler.NewAuthenticator(&stubKeys{}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Optional())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("anonymous")) {
		t.Errorf("expected anonymous identity, got %s", w.Body.String())
	}
}

func TestOptional_invalidSignatureRejected(t *testing.T) {
	// A present but unverifiable signature must not fall back to anonymous.
	auth := handler.NewAuthenticator(&stubKeys{err: errors.New("unresolvable")}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Optional())

	id := newTestIdentity(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequired_noSignature(t *testing.T) {
	auth := handler.NewAuthenticator(&stubKeys{}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Required())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequired_validSignature(t *testing.T) {
	id := newTestIdentity(t)
	actors := newStubActors()
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, actors, zap.NewNop())
	router := echoRouter(auth.Required())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(id.did)) {
		t.Errorf("expected echoed DID %s, got %s", id.did, w.Body.String())
	}
	if actors.upserts != 1 {
		t.Errorf("first sight should upsert the actor, got %d upserts", actors.upserts)
	}
}

func TestRequired_secondRequestBumpsLastSeen(t *testing.T) {
	id := newTestIdentity(t)
	actors := newStubActors()
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, actors, zap.NewNop())
	router := echoRouter(auth.Required())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	if actors.upserts != 1 {
		t.Errorf("expected 1 upsert, got %d", actors.upserts)
	}
	if actors.bumps != 1 {
		t.Errorf("expected 1 last-seen bump, got %d", actors.bumps)
	}
}

func TestRequired_tamperedBody(t *testing.T) {
	id := newTestIdentity(t)
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Required())

	body := []byte(`{"ringSlug":"indieweb"}`)
	req := signedRequest(t, id, http.MethodPost, "/probe", body)
	// Swap the body after signing; the digest no longer matches.
	req.Body = httptest.NewRequest(http.MethodPost, "/probe", bytes.NewReader([]byte(`{"ringSlug":"evil"}`))).Body

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered body, got %d", w.Code)
	}
}

func TestRequired_staleDate(t *testing.T) {
	id := newTestIdentity(t)
	id.signer.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Required())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale date, got %d", w.Code)
	}
}

func TestRequired_unresolvableKey(t *testing.T) {
	id := newTestIdentity(t)
	auth := handler.NewAuthenticator(&stubKeys{err: errors.New("did document fetch failed")}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Required())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequired_storeFailureStillAuthenticates(t *testing.T) {
	// A valid signature proves key ownership; a broken actor store must not
	// turn that into a 401.
	id := newTestIdentity(t)
	actors := newStubActors()
	actors.upsertErr = errors.New("db down")
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, actors, zap.NewNop())
	router := echoRouter(auth.Required())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(id.did)) {
		t.Errorf("expected bare verified identity, got %s", w.Body.String())
	}
}

func TestRequired_keyIDFragmentStripped(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	d, err := did.FromEd25519Key(pub)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := httpsig.NewSigner(d.String()+"#key-1", priv)
	if err != nil {
		t.Fatal(err)
	}

	actors := newStubActors()
	auth := handler.NewAuthenticator(&stubKeys{key: pub}, actors, zap.NewNop())
	router := echoRouter(auth.Required())

	req := httptest.NewRequest(http.MethodGet, "/probe", bytes.NewReader(nil))
	if err := signer.Sign(req, nil); err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := actors.actors[d.String()]; !ok {
		t.Errorf("actor should be stored under the bare DID, have %v", actorDIDs(actors))
	}
}

func TestAdmin_operatorToken(t *testing.T) {
	tokens, err := handler.NewAdminTokens("test-secret-value", "https://hub.test")
	if err != nil {
		t.Fatal(err)
	}
	auth := handler.NewAuthenticator(&stubKeys{}, newStubActors(), zap.NewNop())
	auth.SetAdminTokens(tokens)
	router := echoRouter(auth.Admin())

	token, err := tokens.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"isAdmin":true`)) {
		t.Errorf("operator token should grant admin, got %s", w.Body.String())
	}
}

func TestAdmin_invalidToken(t *testing.T) {
	tokens, err := handler.NewAdminTokens("test-secret-value", "https://hub.test")
	if err != nil {
		t.Fatal(err)
	}
	auth := handler.NewAuthenticator(&stubKeys{}, newStubActors(), zap.NewNop())
	auth.SetAdminTokens(tokens)
	router := echoRouter(auth.Admin())

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdmin_tokensDisabled(t *testing.T) {
	auth := handler.NewAuthenticator(&stubKeys{}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Admin())

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when tokens are disabled, got %d", w.Code)
	}
}

func TestAdmin_signedNonAdmin(t *testing.T) {
	id := newTestIdentity(t)
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, newStubActors(), zap.NewNop())
	router := echoRouter(auth.Admin())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdmin_signedAdmin(t *testing.T) {
	id := newTestIdentity(t)
	actors := newStubActors()
	actors.actors[id.did] = &model.Actor{DID: id.did, Verified: true, IsAdmin: true}
	auth := handler.NewAuthenticator(&stubKeys{key: id.pub}, actors, zap.NewNop())
	router := echoRouter(auth.Admin())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, id, http.MethodGet, "/probe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"isAdmin":true`)) {
		t.Errorf("admin actor should carry the admin flag, got %s", w.Body.String())
	}
}

func actorDIDs(s *stubActors) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.actors))
	for d := range s.actors {
		out = append(out, d)
	}
	return out
}
