// Package vc defines the verifiable-credential schema for membership badges.
//
// A badge is a JSON-LD Open Badges v3 credential signed by the hub with an
// Ed25519Signature2020 proof. The signing payload is the canonical JSON of
// the credential without its proof member, fields in the order declared
// here; proofValue is the multibase base58btc encoding of the signature.
package vc

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ContextCredentials = "https://www.w3.org/2018/credentials/v1"
	ContextOpenBadges  = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"

	TypeVerifiableCredential = "VerifiableCredential"
	TypeOpenBadgeCredential  = "OpenBadgeCredential"

	ProofType    = "Ed25519Signature2020"
	ProofPurpose = "assertionMethod"
)

// Credential is a membership badge. Field order is the canonical JSON order.
type Credential struct {
	Context           []string `json:"@context"`
	ID                string   `json:"id"`
	Type              []string `json:"type"`
	Issuer            Issuer   `json:"issuer"`
	IssuanceDate      string   `json:"issuanceDate"` // RFC 3339
	CredentialSubject Subject  `json:"credentialSubject"`
	Proof             *Proof   `json:"proof,omitempty"`
}

// Issuer identifies the hub that signed the credential.
type Issuer struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Subject carries the member's DID and the achievement asserted for it.
type Subject struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Name        string      `json:"name,omitempty"`
	Achievement Achievement `json:"achievement"`
}

// Achievement describes membership in a ring at a given role.
type Achievement struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Image       *Image   `json:"image,omitempty"`
	Criteria    Criteria `json:"criteria"`
}

// Image is an optional badge image reference.
type Image struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Criteria is the human-readable justification for the achievement.
type Criteria struct {
	Narrative string `json:"narrative"`
}

// Proof is an Ed25519Signature2020 proof.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"` // RFC 3339
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// Parse decodes a credential from JSON bytes and validates its shape.
func Parse(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the required fields of a credential.
func (c *Credential) Validate() error {
	if len(c.Context) == 0 {
		return fmt.Errorf("credential: @context is required")
	}
	if c.ID == "" {
		return fmt.Errorf("credential: id is required")
	}
	if !c.HasType(TypeVerifiableCredential) {
		return fmt.Errorf("credential: type must include %q", TypeVerifiableCredential)
	}
	if c.Issuer.ID == "" {
		return fmt.Errorf("credential: issuer.id is required")
	}
	if c.IssuanceDate == "" {
		return fmt.Errorf("credential: issuanceDate is required")
	}
	if c.CredentialSubject.ID == "" {
		return fmt.Errorf("credential: credentialSubject.id is required")
	}
	if !strings.HasPrefix(c.CredentialSubject.ID, "did:") {
		return fmt.Errorf("credential: credentialSubject.id must be a DID")
	}
	if c.CredentialSubject.Achievement.ID == "" {
		return fmt.Errorf("credential: credentialSubject.achievement.id is required")
	}
	return nil
}

// HasType reports whether the credential declares the given type.
func (c *Credential) HasType(t string) bool {
	for _, ct := range c.Type {
		if ct == t {
			return true
		}
	}
	return false
}

// SigningPayload returns the canonical bytes the proof signs: the credential
// without its proof member.
func (c *Credential) SigningPayload() ([]byte, error) {
	unsigned := *c
	unsigned.Proof = nil
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("marshal signing payload: %w", err)
	}
	return payload, nil
}
