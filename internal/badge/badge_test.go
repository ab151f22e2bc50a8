package badge_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/pkg/vc"
)

func testSigner(t *testing.T) *badge.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s := badge.NewSigner(badge.FromPrivateKey(priv), "https://hub.example", "Test Hub")
	s.SetClock(func() time.Time { return time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC) })
	return s
}

func issueParams() badge.IssueParams {
	return badge.IssueParams{
		BadgeID:   "b9b1f1ce-9d26-4e6b-8f3d-1d9c67b2a001",
		ActorDID:  "did:web:alice.example",
		ActorName: "Alice",
		RingSlug:  "indie-web",
		RingName:  "Indie Web",
		RoleName:  "member",
	}
}

func TestIssueAndVerify(t *testing.T) {
	s := testSigner(t)

	cred, err := s.Issue(issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if cred.ID != "https://hub.example/badges/b9b1f1ce-9d26-4e6b-8f3d-1d9c67b2a001" {
		t.Errorf("credential id = %q", cred.ID)
	}
	if !cred.HasType(vc.TypeOpenBadgeCredential) {
		t.Errorf("type = %v, want OpenBadgeCredential included", cred.Type)
	}
	if got := cred.CredentialSubject.Achievement.Name; got != "Indie Web - member" {
		t.Errorf("achievement name = %q, want %q", got, "Indie Web - member")
	}
	if got := cred.Proof.VerificationMethod; got != "https://hub.example#key-1" {
		t.Errorf("verificationMethod = %q, want %q", got, "https://hub.example#key-1")
	}
	if cred.Proof.Created != "2026-01-15T09:30:00Z" {
		t.Errorf("proof created = %q", cred.Proof.Created)
	}

	if err := s.Verify(cred); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestIssueRefusedWithoutKey(t *testing.T) {
	s := badge.NewSigner(nil, "https://hub.example", "Test Hub")
	if s.CanIssue() {
		t.Error("CanIssue = true without a key")
	}
	if _, err := s.Issue(issueParams()); !errors.Is(err, badge.ErrNoSigningKey) {
		t.Fatalf("got %v, want ErrNoSigningKey", err)
	}
}

func TestVerifySurvivesJSONRoundTrip(t *testing.T) {
	s := testSigner(t)
	cred, err := s.Issue(issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Badges are persisted as JSON and parsed back before verification.
	raw, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := vc.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := s.Verify(parsed); err != nil {
		t.Fatalf("Verify after round trip: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := testSigner(t)
	cred, err := s.Issue(issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cred.CredentialSubject.ID = "did:web:mallory.example"
	if err := s.Verify(cred); !errors.Is(err, badge.ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	cred, err := testSigner(t).Issue(issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other := testSigner(t)
	if err := other.Verify(cred); !errors.Is(err, badge.ErrInvalidProof) {
		t.Fatalf("got %v, want ErrInvalidProof", err)
	}
}

func TestVerifyRequiresProof(t *testing.T) {
	s := testSigner(t)
	cred, err := s.Issue(issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	cred.Proof = nil
	if err := s.Verify(cred); !errors.Is(err, badge.ErrNoProof) {
		t.Fatalf("got %v, want ErrNoProof", err)
	}
}

func TestIssueWithImage(t *testing.T) {
	s := testSigner(t)
	p := issueParams()
	p.ImageURL = "https://hub.example/img/indie-web.png"

	cred, err := s.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	img := cred.CredentialSubject.Achievement.Image
	if img == nil || img.ID != p.ImageURL || img.Type != "Image" {
		t.Errorf("achievement image = %+v, want id %q", img, p.ImageURL)
	}
	if err := s.Verify(cred); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestFromBase64(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}

	tests := []struct {
		name    string
		encoded string
		wantErr bool
	}{
		{name: "pkcs8", encoded: base64.StdEncoding.EncodeToString(der)},
		{name: "raw private key", encoded: base64.StdEncoding.EncodeToString(priv)},
		{name: "seed", encoded: base64.StdEncoding.EncodeToString(priv.Seed())},
		{name: "not base64", encoded: "%%%", wantErr: true},
		{name: "wrong length", encoded: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m, err := badge.FromBase64(tc.encoded)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromBase64: %v", err)
			}
			if !m.Public().Equal(pub) {
				t.Error("loaded key does not match")
			}
		})
	}
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir := t.TempDir()

	first, err := badge.LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate (create): %v", err)
	}
	second, err := badge.LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate (load): %v", err)
	}
	if !first.Public().Equal(second.Public()) {
		t.Error("reloaded key differs from created key")
	}
}

func TestPublicMultibase(t *testing.T) {
	m, err := badge.LoadOrCreate(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	encoded, err := m.PublicMultibase()
	if err != nil {
		t.Fatalf("PublicMultibase: %v", err)
	}
	if len(encoded) == 0 || encoded[0] != 'z' {
		t.Errorf("multibase key %q should be base58btc", encoded)
	}
}
