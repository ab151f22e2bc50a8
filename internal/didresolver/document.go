// Package didresolver resolves did:web and did:key identifiers to DID
// documents and extracts Ed25519 verification material from them.
package didresolver

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/threadring/ringhub/pkg/did"
)

// Document is the subset of a DID document the hub consumes.
type Document struct {
	Context            any                  `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Service            []Service            `json:"service,omitempty"`
	// Optional profile hints some documents carry at the top level.
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// VerificationMethod is a key entry in a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyBase64    string `json:"publicKeyBase64,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// Service is a service entry in a DID document.
type Service struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// SelectMethod picks the verification method matching keyID, or the first
// method when keyID carries no fragment.
func (d *Document) SelectMethod(keyID string) (*VerificationMethod, error) {
	if len(d.VerificationMethod) == 0 {
		return nil, fmt.Errorf("document %s has no verification methods", d.ID)
	}
	if !strings.Contains(keyID, "#") {
		return &d.VerificationMethod[0], nil
	}
	for i := range d.VerificationMethod {
		if d.VerificationMethod[i].ID == keyID {
			return &d.VerificationMethod[i], nil
		}
	}
	return nil, fmt.Errorf("document %s has no verification method %q", d.ID, keyID)
}

// ProfileService returns the document's Profile service entry, if any.
func (d *Document) ProfileService() *Service {
	for i := range d.Service {
		if d.Service[i].Type == "Profile" {
			return &d.Service[i]
		}
	}
	return nil
}

// PublicKey extracts the raw Ed25519 key from a verification method.
// publicKeyBase64 carries the raw key directly; publicKeyMultibase carries a
// base58btc multibase string with the Ed25519 multicodec prefix.
func (m *VerificationMethod) PublicKey() (ed25519.PublicKey, error) {
	switch {
	case m.PublicKeyBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(m.PublicKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("decode publicKeyBase64: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("publicKeyBase64 is %d bytes: expected %d", len(raw), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(raw), nil
	case m.PublicKeyMultibase != "":
		if !strings.HasPrefix(m.PublicKeyMultibase, "z") {
			return nil, fmt.Errorf("publicKeyMultibase must be base58btc (z prefix)")
		}
		key, err := did.DecodeMultibaseKey(m.PublicKeyMultibase)
		if err != nil {
			return nil, fmt.Errorf("decode publicKeyMultibase: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("verification method %q carries no supported key encoding", m.ID)
	}
}
