package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/threadring/ringhub/pkg/did"
)

// Identity is a DID and the Ed25519 key that controls it. The DID is always
// a did:key derived from the public half, so an identity file is
// self-contained and needs no hosted document.
type Identity struct {
	DID        string
	PrivateKey ed25519.PrivateKey
}

type identityFile struct {
	DID        string `json:"did"`
	PrivateKey string `json:"privateKey"`
}

// GenerateIdentity creates a fresh Ed25519 keypair and its did:key.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	d, err := did.FromEd25519Key(pub)
	if err != nil {
		return nil, fmt.Errorf("derive did: %w", err)
	}
	return &Identity{DID: d.String(), PrivateKey: priv}, nil
}

// LoadIdentity reads an identity file written by Save and checks that the
// stored DID still matches the key it claims to control.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(f.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)

	derived, err := did.FromEd25519Key(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("derive did: %w", err)
	}
	if f.DID != derived.String() {
		return nil, fmt.Errorf("identity file %s: did %s does not match its key", path, f.DID)
	}
	return &Identity{DID: f.DID, PrivateKey: priv}, nil
}

// Save writes the identity as JSON, readable only by the owner.
func (i *Identity) Save(path string) error {
	f := identityFile{
		DID:        i.DID,
		PrivateKey: base64.StdEncoding.EncodeToString(i.PrivateKey),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

// WithIdentityFile loads an identity file and signs all requests with it.
func WithIdentityFile(path string) Option {
	return func(c *Client) error {
		id, err := LoadIdentity(path)
		if err != nil {
			return err
		}
		return WithIdentity(id)(c)
	}
}

// NewFromIdentityFile builds a signing client from a saved identity file.
func NewFromIdentityFile(hubBase, path string, opts ...Option) (*Client, error) {
	return New(hubBase, append([]Option{WithIdentityFile(path)}, opts...)...)
}