// Package badge issues and verifies membership badges: Open Badges v3
// verifiable credentials signed with the hub's Ed25519 key.
package badge

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/threadring/ringhub/pkg/did"
)

const signingKeyFile = "badge-signing.key"

// ErrNoSigningKey is returned when badge issuance is attempted without a
// persistent signing key. Issuing with an ephemeral key would produce
// credentials that stop verifying at the next restart.
var ErrNoSigningKey = errors.New("no persistent badge signing key configured")

// KeyManager holds the hub's badge signing key pair.
type KeyManager struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// FromBase64 decodes a signing key from its base64 configuration form. The
// decoded bytes may be a PKCS#8 DER structure, a 64-byte Ed25519 private
// key, or a 32-byte seed.
func FromBase64(encoded string) (*KeyManager, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		return FromPrivateKey(ed25519.PrivateKey(raw)), nil
	case ed25519.SeedSize:
		return FromPrivateKey(ed25519.NewKeyFromSeed(raw)), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T: expected Ed25519", parsed)
	}
	return FromPrivateKey(priv), nil
}

// FromPrivateKey wraps an in-memory private key.
func FromPrivateKey(priv ed25519.PrivateKey) *KeyManager {
	return &KeyManager{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// LoadOrCreate loads the signing key from dir if it exists; generates and
// persists a new one otherwise.
func LoadOrCreate(dir string) (*KeyManager, error) {
	m, err := loadKeyFile(filepath.Join(dir, signingKeyFile))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return createKeyFile(dir)
}

func loadKeyFile(path string) (*KeyManager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signing key file %q is not PEM", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T: expected Ed25519", parsed)
	}
	return FromPrivateKey(priv), nil
}

func createKeyFile(dir string) (*KeyManager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir %q: %w", dir, err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encode signing key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if err := os.WriteFile(filepath.Join(dir, signingKeyFile), keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return FromPrivateKey(priv), nil
}

// Sign signs msg with the private key.
func (m *KeyManager) Sign(msg []byte) []byte {
	return ed25519.Sign(m.priv, msg)
}

// Public returns the verification key.
func (m *KeyManager) Public() ed25519.PublicKey {
	return m.pub
}

// PublicMultibase returns the verification key in the multibase form used in
// the hub's own DID document.
func (m *KeyManager) PublicMultibase() (string, error) {
	return did.EncodeMultibaseKey(m.pub)
}
