package badge

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/multiformats/go-multibase"

	"github.com/threadring/ringhub/pkg/vc"
)

var (
	// ErrNoProof is returned when verifying a credential without a proof.
	ErrNoProof = errors.New("credential carries no proof")
	// ErrInvalidProof is returned when a proof does not verify against the
	// hub's current public key.
	ErrInvalidProof = errors.New("credential proof verification failed")
)

// IssueParams describes one badge to be issued.
type IssueParams struct {
	BadgeID         string // persisted badge id, becomes <hubURL>/badges/<id>
	ActorDID        string
	ActorName       string
	RingSlug        string
	RingName        string
	RingDescription string
	RoleName        string
	ImageURL        string
}

// Signer builds and signs membership credentials, and verifies them against
// the hub's current key. A Signer without a KeyManager can still verify
// nothing and issue nothing; Issue reports ErrNoSigningKey.
type Signer struct {
	keys    *KeyManager
	hubURL  string
	hubName string
	now     func() time.Time
}

// NewSigner creates a Signer. keys may be nil when no persistent key is
// configured; issuance is then refused.
func NewSigner(keys *KeyManager, hubURL, hubName string) *Signer {
	return &Signer{keys: keys, hubURL: hubURL, hubName: hubName, now: time.Now}
}

// SetClock overrides the time source, primarily for tests.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// CanIssue reports whether a persistent signing key is configured.
func (s *Signer) CanIssue() bool {
	return s.keys != nil
}

// VerificationMethod returns the verificationMethod written into proofs.
func (s *Signer) VerificationMethod() string {
	return s.hubURL + "#key-1"
}

// Issue builds the credential for p and signs it.
func (s *Signer) Issue(p IssueParams) (*vc.Credential, error) {
	if s.keys == nil {
		return nil, ErrNoSigningKey
	}

	cred := s.buildCredential(p)
	payload, err := cred.SigningPayload()
	if err != nil {
		return nil, err
	}
	proofValue, err := multibase.Encode(multibase.Base58BTC, s.keys.Sign(payload))
	if err != nil {
		return nil, fmt.Errorf("encode proof value: %w", err)
	}

	cred.Proof = &vc.Proof{
		Type:               vc.ProofType,
		Created:            s.now().UTC().Format(time.RFC3339),
		VerificationMethod: s.VerificationMethod(),
		ProofPurpose:       vc.ProofPurpose,
		ProofValue:         proofValue,
	}
	return cred, nil
}

// Verify checks a credential's proof against the hub's current public key.
// Revocation is a persistence concern and checked by the caller.
func (s *Signer) Verify(cred *vc.Credential) error {
	if s.keys == nil {
		return ErrNoSigningKey
	}
	if cred.Proof == nil || cred.Proof.ProofValue == "" {
		return ErrNoProof
	}
	if cred.Proof.Type != vc.ProofType {
		return fmt.Errorf("%w: unsupported proof type %q", ErrInvalidProof, cred.Proof.Type)
	}

	enc, sig, err := multibase.Decode(cred.Proof.ProofValue)
	if err != nil {
		return fmt.Errorf("%w: decode proof value: %v", ErrInvalidProof, err)
	}
	if enc != multibase.Base58BTC {
		return fmt.Errorf("%w: proof value must be base58btc", ErrInvalidProof)
	}

	payload, err := cred.SigningPayload()
	if err != nil {
		return err
	}
	if !verifyBytes(s.keys.Public(), payload, sig) {
		return ErrInvalidProof
	}
	return nil
}

func verifyBytes(key ed25519.PublicKey, payload, sig []byte) bool {
	return len(key) == ed25519.PublicKeySize && ed25519.Verify(key, payload, sig)
}

func (s *Signer) buildCredential(p IssueParams) *vc.Credential {
	description := p.RingDescription
	if description == "" {
		description = fmt.Sprintf("Membership in the %s ThreadRing", p.RingName)
	}

	achievement := vc.Achievement{
		ID:          fmt.Sprintf("%s/rings/%s/achievement", s.hubURL, p.RingSlug),
		Type:        "Achievement",
		Name:        fmt.Sprintf("%s - %s", p.RingName, p.RoleName),
		Description: description,
		Criteria: vc.Criteria{
			Narrative: fmt.Sprintf("Holds the %s role in the %s ThreadRing", p.RoleName, p.RingName),
		},
	}
	if p.ImageURL != "" {
		achievement.Image = &vc.Image{ID: p.ImageURL, Type: "Image"}
	}

	return &vc.Credential{
		Context: []string{vc.ContextCredentials, vc.ContextOpenBadges},
		ID:      fmt.Sprintf("%s/badges/%s", s.hubURL, p.BadgeID),
		Type:    []string{vc.TypeVerifiableCredential, vc.TypeOpenBadgeCredential},
		Issuer: vc.Issuer{
			ID:   s.hubURL,
			Type: "Profile",
			Name: s.hubName,
		},
		IssuanceDate: s.now().UTC().Format(time.RFC3339),
		CredentialSubject: vc.Subject{
			ID:          p.ActorDID,
			Type:        "Profile",
			Name:        p.ActorName,
			Achievement: achievement,
		},
	}
}
