package handler_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/threadring/ringhub/internal/hub/handler"
)

func newTestTokens(t *testing.T) *handler.AdminTokens {
	t.Helper()
	tokens, err := handler.NewAdminTokens("a-long-shared-operator-secret", "https://hub.test")
	if err != nil {
		t.Fatal(err)
	}
	return tokens
}

func TestAdminTokens_noSecret(t *testing.T) {
	_, err := handler.NewAdminTokens("", "https://hub.test")
	if !errors.Is(err, handler.ErrNoTokenSecret) {
		t.Errorf("expected ErrNoTokenSecret, got %v", err)
	}
}

func TestAdminTokens_issueVerify(t *testing.T) {
	tokens := newTestTokens(t)

	token, err := tokens.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("expected 3-part JWT, got %d parts", len(parts))
	}

	ident, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.DID != "ops@hub.test" {
		t.Errorf("subject: got %q, want ops@hub.test", ident.DID)
	}
	if !ident.IsAdmin {
		t.Error("operator token must grant admin")
	}
	if ident.Verified {
		t.Error("operator identity is not DID-verified")
	}
}

func TestAdminTokens_expired(t *testing.T) {
	tokens := newTestTokens(t)

	token, err := tokens.Issue("ops@hub.test", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)

	if _, err := tokens.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestAdminTokens_wrongIssuer(t *testing.T) {
	tokens := newTestTokens(t)
	other, err := handler.NewAdminTokens("a-long-shared-operator-secret", "https://other.test")
	if err != nil {
		t.Fatal(err)
	}

	token, err := other.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(token); err == nil {
		t.Error("expected error for mismatched issuer")
	}
}

func TestAdminTokens_tamperedSignature(t *testing.T) {
	tokens := newTestTokens(t)

	token, err := tokens.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'a' {
		sig[mid] = 'b'
	} else {
		sig[mid] = 'a'
	}
	parts[2] = string(sig)

	if _, err := tokens.Verify(strings.Join(parts, ".")); err == nil {
		t.Error("expected error for tampered token")
	}
}

func TestAdminTokens_wrongSecret(t *testing.T) {
	tokens := newTestTokens(t)
	other, err := handler.NewAdminTokens("a-different-secret-entirely", "https://hub.test")
	if err != nil {
		t.Fatal(err)
	}

	token, err := other.Issue("ops@hub.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(token); err == nil {
		t.Error("expected error for wrong signing secret")
	}
}
