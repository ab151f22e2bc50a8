package httpsig

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Signer produces Signature headers for outbound requests. It signs
// (request-target) and date, plus digest when the request carries a body,
// matching what the hub verifies.
type Signer struct {
	keyID   string
	key     ed25519.PrivateKey
	headers []string
	now     func() time.Time
}

// NewSigner creates a Signer for the given key. keyID should be the DID of
// the signer, optionally with a #fragment naming the verification method.
func NewSigner(keyID string, key ed25519.PrivateKey) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key is %d bytes: expected %d", len(key), ed25519.PrivateKeySize)
	}
	return &Signer{
		keyID:   keyID,
		key:     key,
		headers: strings.Fields(DefaultHeaders),
		now:     time.Now,
	}, nil
}

// SetHeaders overrides the signed-header list. (request-target) and date are
// the minimum the hub accepts.
func (s *Signer) SetHeaders(headers []string) {
	s.headers = headers
}

// SetClock overrides the time source, primarily for tests.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// Sign sets the Date, Digest, and Signature headers on r. body must be the
// exact bytes the request will send (nil for bodyless requests).
func (s *Signer) Sign(r *http.Request, body []byte) error {
	if r.Header.Get("Date") == "" {
		r.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	}

	headers := s.headers
	if len(body) > 0 {
		r.Header.Set(DigestHeader, Digest(body))
		if !contains(headers, "digest") {
			headers = append(append([]string{}, headers...), "digest")
		}
	}

	sig := &Signature{
		KeyID:     s.keyID,
		Algorithm: AlgorithmEd25519,
		Headers:   headers,
	}
	signingString, err := sig.SigningString(r)
	if err != nil {
		return fmt.Errorf("build signing string: %w", err)
	}
	sig.Signature = ed25519.Sign(s.key, []byte(signingString))
	r.Header.Set(SignatureHeader, sig.String())
	return nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
