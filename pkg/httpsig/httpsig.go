// Package httpsig implements the HTTP message signature scheme used on every
// authenticated hub request: an Ed25519 signature over a canonical signing
// string, carried in the Signature header.
//
// The header format follows the cavage draft:
//
//	Signature: keyId="did:web:alice.example#key-1",algorithm="ed25519",
//	           headers="(request-target) host date digest",signature="<base64>"
//
// keyId names the DID (and optionally the verification method) whose key
// signed the request. Requests with a body additionally carry
// Digest: sha-256=<base64(sha256(body))>.
package httpsig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Header names and algorithm identifiers of the wire format.
const (
	SignatureHeader = "Signature"
	DigestHeader    = "Digest"

	AlgorithmEd25519 = "ed25519"
	// AlgorithmHS2019 is the draft's opaque algorithm name. The hub only
	// issues Ed25519 keys, so it is treated as an alias.
	AlgorithmHS2019 = "hs2019"
)

// DefaultHeaders is the signed-header list assumed when the Signature header
// omits the headers parameter.
const DefaultHeaders = "(request-target) date"

// Pseudo-header tokens that may appear in the headers parameter.
const (
	TokenRequestTarget = "(request-target)"
	TokenCreated       = "(created)"
	TokenExpires       = "(expires)"
)

var (
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrCreatedInFuture      = errors.New("signature created timestamp is in the future")
	ErrSignatureExpired     = errors.New("signature has expired")
	ErrMissingDate          = errors.New("date header is required")
	ErrDateOutOfRange       = errors.New("date header is outside the accepted window")
	ErrMissingDigest        = errors.New("digest header is required for requests with a body")
	ErrDigestMismatch       = errors.New("digest header does not match the request body")
	ErrInvalidSignature     = errors.New("signature verification failed")
)

// Signature is a parsed Signature header.
type Signature struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
	Created   int64 // unix seconds, 0 when absent
	Expires   int64 // unix seconds, 0 when absent
}

// Parse parses the value of a Signature header. Missing algorithm and
// headers parameters take their documented defaults; unknown parameters are
// ignored.
func Parse(header string) (*Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedSignature)
	}
	// Tolerate the "Signature keyId=..." form some clients send.
	header = strings.TrimPrefix(header, "Signature ")

	sig := &Signature{
		Algorithm: AlgorithmEd25519,
		Headers:   strings.Fields(DefaultHeaders),
	}

	var rawSignature string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("%w: parameter %q has no value", ErrMalformedSignature, part)
		}
		value = strings.Trim(value, `"`)

		switch name {
		case "keyId":
			sig.KeyID = value
		case "algorithm":
			sig.Algorithm = strings.ToLower(value)
		case "headers":
			sig.Headers = strings.Fields(strings.ToLower(value))
		case "signature":
			rawSignature = value
		case "created":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: created is not an integer", ErrMalformedSignature)
			}
			sig.Created = n
		case "expires":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: expires is not an integer", ErrMalformedSignature)
			}
			sig.Expires = n
		}
	}

	if sig.KeyID == "" {
		return nil, fmt.Errorf("%w: keyId is required", ErrMalformedSignature)
	}
	if rawSignature == "" {
		return nil, fmt.Errorf("%w: signature is required", ErrMalformedSignature)
	}
	if sig.Algorithm != AlgorithmEd25519 && sig.Algorithm != AlgorithmHS2019 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sig.Algorithm)
	}
	if len(sig.Headers) == 0 {
		return nil, fmt.Errorf("%w: headers list is empty", ErrMalformedSignature)
	}

	decoded, err := base64.StdEncoding.DecodeString(rawSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not valid base64", ErrMalformedSignature)
	}
	sig.Signature = decoded
	return sig, nil
}

// Covers reports whether name is in the declared signed-header list.
func (s *Signature) Covers(name string) bool {
	name = strings.ToLower(name)
	for _, h := range s.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// String renders the Signature header value.
func (s *Signature) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "keyId=%q,algorithm=%q", s.KeyID, s.Algorithm)
	if len(s.Headers) > 0 {
		fmt.Fprintf(&b, ",headers=%q", strings.Join(s.Headers, " "))
	}
	if s.Created > 0 {
		fmt.Fprintf(&b, ",created=%d", s.Created)
	}
	if s.Expires > 0 {
		fmt.Fprintf(&b, ",expires=%d", s.Expires)
	}
	fmt.Fprintf(&b, ",signature=%q", base64.StdEncoding.EncodeToString(s.Signature))
	return b.String()
}
