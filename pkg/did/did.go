// Package did provides parsing and validation for the DID methods the hub
// federates with.
//
// Supported methods:
//
//	did:web:example.com                  (document at https://example.com/.well-known/did.json)
//	did:web:example.com:users:alice      (document at https://example.com/users/alice/did.json)
//	did:key:z6Mk…                        (self-describing Ed25519 public key)
//
// For did:web, a port is carried percent-encoded in the host segment
// (did:web:localhost%3A3000). For did:key, the identifier is a multibase
// base58btc string wrapping the multicodec-prefixed raw key.
package did

import (
	"crypto/ed25519"
	"fmt"
	"net/url"
	"strings"

	"github.com/multiformats/go-multibase"
)

const prefix = "did:"

// Supported method names.
const (
	MethodWeb = "web"
	MethodKey = "key"
)

// Ed25519 multicodec prefix bytes carried inside did:key identifiers.
var ed25519Multicodec = []byte{0xED, 0x01}

// DID represents a parsed decentralized identifier.
type DID struct {
	Method   string   // "web" or "key"
	Host     string   // did:web host, port decoded (e.g. "example.com", "localhost:3000")
	Segments []string // did:web path segments (e.g. ["users", "alice"])
	KeyPart  string   // did:key multibase identifier including the leading "z"
	raw      string
}

// Parse parses a DID string of a supported method.
func Parse(raw string) (*DID, error) {
	if !strings.HasPrefix(raw, prefix) {
		return nil, fmt.Errorf("invalid DID %q: missing did: prefix", raw)
	}

	rest := strings.TrimPrefix(raw, prefix)
	method, ident, ok := strings.Cut(rest, ":")
	if !ok || ident == "" {
		return nil, fmt.Errorf("invalid DID %q: missing method-specific identifier", raw)
	}

	switch method {
	case "web":
		return parseWeb(raw, ident)
	case "key":
		return parseKey(raw, ident)
	default:
		return nil, fmt.Errorf("unsupported DID method %q", method)
	}
}

// MustParse parses a DID and panics on error. Useful in tests.
func MustParse(raw string) *DID {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

func parseWeb(raw, ident string) (*DID, error) {
	parts := strings.Split(ident, ":")
	host := decodePort(strings.ToLower(parts[0]))
	if host == "" {
		return nil, fmt.Errorf("invalid DID %q: empty host", raw)
	}
	if strings.ContainsAny(host, " /\\?#@") {
		return nil, fmt.Errorf("invalid DID %q: host contains illegal characters", raw)
	}

	segments := make([]string, 0, len(parts)-1)
	for _, seg := range parts[1:] {
		if seg == "" {
			return nil, fmt.Errorf("invalid DID %q: empty path segment", raw)
		}
		if strings.ContainsAny(seg, " /\\?#") {
			return nil, fmt.Errorf("invalid DID %q: path segment %q contains illegal characters", raw, seg)
		}
		segments = append(segments, seg)
	}

	return &DID{Method: "web", Host: host, Segments: segments, raw: raw}, nil
}

func parseKey(raw, ident string) (*DID, error) {
	if !strings.HasPrefix(ident, "z") {
		return nil, fmt.Errorf("invalid DID %q: did:key requires a base58btc (z) multibase identifier", raw)
	}
	// Decode eagerly so malformed keys are rejected at parse time.
	if _, err := decodeEd25519(ident); err != nil {
		return nil, fmt.Errorf("invalid DID %q: %w", raw, err)
	}
	return &DID{Method: "key", KeyPart: ident, raw: raw}, nil
}

// String returns the canonical DID string.
func (d *DID) String() string {
	switch d.Method {
	case "web":
		ident := encodePort(d.Host)
		if len(d.Segments) > 0 {
			ident += ":" + strings.Join(d.Segments, ":")
		}
		return prefix + "web:" + ident
	case "key":
		return prefix + "key:" + d.KeyPart
	default:
		return d.raw
	}
}

// DocumentURL returns the URL of the DID document for did:web identifiers.
// Hosts without a path use the well-known location; hosts with a path
// (including the conventional users/actors layouts) append /did.json.
// Plain HTTP is permitted only for localhost hosts.
func (d *DID) DocumentURL() (string, error) {
	if d.Method != "web" {
		return "", fmt.Errorf("did:%s has no document URL", d.Method)
	}

	scheme := "https"
	if IsLocalhost(d.Host) {
		scheme = "http"
	}

	if len(d.Segments) == 0 {
		return fmt.Sprintf("%s://%s/.well-known/did.json", scheme, d.Host), nil
	}
	// Pathful DIDs, including the conventional /users/<name> and
	// /actors/<name> layouts, resolve under the path itself.
	return fmt.Sprintf("%s://%s/%s/did.json", scheme, d.Host, strings.Join(d.Segments, "/")), nil
}

// Ed25519Key returns the raw public key embedded in a did:key identifier.
func (d *DID) Ed25519Key() (ed25519.PublicKey, error) {
	if d.Method != "key" {
		return nil, fmt.Errorf("did:%s does not embed a key", d.Method)
	}
	return decodeEd25519(d.KeyPart)
}

// Domain returns the instance domain for did:web identifiers, stripped of
// any port. Empty for other methods.
func (d *DID) Domain() string {
	if d.Method != "web" {
		return ""
	}
	host, _, found := strings.Cut(d.Host, ":")
	if found {
		return host
	}
	return d.Host
}

// IsLocalhost reports whether a host (optionally with port) is a loopback
// development host.
func IsLocalhost(host string) bool {
	h, _, found := strings.Cut(host, ":")
	if !found {
		h = host
	}
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

// DecodeMultibaseKey decodes a multibase-encoded Ed25519 verification key of
// the kind found in DID document publicKeyMultibase fields.
func DecodeMultibaseKey(encoded string) (ed25519.PublicKey, error) {
	return decodeEd25519(encoded)
}

func decodeEd25519(encoded string) (ed25519.PublicKey, error) {
	enc, data, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("multibase decode: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("unsupported multibase encoding %q: expected base58btc", string(rune(enc)))
	}
	if len(data) == ed25519.PublicKeySize+len(ed25519Multicodec) &&
		data[0] == ed25519Multicodec[0] && data[1] == ed25519Multicodec[1] {
		data = data[len(ed25519Multicodec):]
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decoded key is %d bytes: expected %d", len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}

// EncodeMultibaseKey encodes a raw Ed25519 public key as a multicodec-prefixed
// multibase base58btc string, the did:key identifier form.
func EncodeMultibaseKey(key ed25519.PublicKey) (string, error) {
	if len(key) != ed25519.PublicKeySize {
		return "", fmt.Errorf("key is %d bytes: expected %d", len(key), ed25519.PublicKeySize)
	}
	buf := make([]byte, 0, len(ed25519Multicodec)+len(key))
	buf = append(buf, ed25519Multicodec...)
	buf = append(buf, key...)
	return multibase.Encode(multibase.Base58BTC, buf)
}

// FromEd25519Key builds a did:key DID for a raw public key.
func FromEd25519Key(key ed25519.PublicKey) (*DID, error) {
	encoded, err := EncodeMultibaseKey(key)
	if err != nil {
		return nil, err
	}
	return &DID{Method: "key", KeyPart: encoded, raw: prefix + "key:" + encoded}, nil
}

// FromWebURL derives the did:web identifier served at an http(s) URL, the
// form a hub uses for its own identity.
func FromWebURL(rawURL string) (*DID, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	return Parse(prefix + "web:" + encodePort(strings.ToLower(u.Host)))
}

func decodePort(host string) string {
	return strings.ReplaceAll(host, "%3a", ":")
}

func encodePort(host string) string {
	return strings.ReplaceAll(host, ":", "%3A")
}
