package httpsig

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const digestPrefix = "sha-256="

// SigningString builds the canonical preimage for a request: one line per
// entry in the declared header list, in declared order, joined by newlines
// with no trailing newline.
func (s *Signature) SigningString(r *http.Request) (string, error) {
	lines := make([]string, 0, len(s.Headers))
	for _, name := range s.Headers {
		switch name {
		case TokenRequestTarget:
			lines = append(lines, TokenRequestTarget+": "+requestTarget(r))
		case TokenCreated:
			if s.Created == 0 {
				return "", fmt.Errorf("%w: headers declare (created) but the parameter is absent", ErrMalformedSignature)
			}
			lines = append(lines, TokenCreated+": "+strconv.FormatInt(s.Created, 10))
		case TokenExpires:
			if s.Expires == 0 {
				return "", fmt.Errorf("%w: headers declare (expires) but the parameter is absent", ErrMalformedSignature)
			}
			lines = append(lines, TokenExpires+": "+strconv.FormatInt(s.Expires, 10))
		default:
			value, err := headerValue(r, name)
			if err != nil {
				return "", err
			}
			lines = append(lines, name+": "+value)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// requestTarget renders the (request-target) pseudo-header: lowercased
// method, a space, and the path with any query string.
func requestTarget(r *http.Request) string {
	return strings.ToLower(r.Method) + " " + r.URL.RequestURI()
}

func headerValue(r *http.Request, name string) (string, error) {
	// Go promotes the Host header onto the request struct.
	if name == "host" {
		host := r.Host
		if host == "" && r.URL != nil {
			host = r.URL.Host
		}
		if host == "" {
			return "", fmt.Errorf("%w: host header not present", ErrMalformedSignature)
		}
		return host, nil
	}
	values := r.Header.Values(name)
	if len(values) == 0 {
		return "", fmt.Errorf("%w: header %q not present", ErrMalformedSignature, name)
	}
	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
	}
	return strings.Join(trimmed, ", "), nil
}

// Digest computes the Digest header value for a request body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return digestPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

// checkDigest validates the Digest header of a body-carrying request.
func checkDigest(header string, body []byte) error {
	if header == "" {
		return ErrMissingDigest
	}
	prefix := header
	if len(prefix) > len(digestPrefix) {
		prefix = prefix[:len(digestPrefix)]
	}
	if !strings.EqualFold(prefix, digestPrefix) {
		return fmt.Errorf("%w: only sha-256 digests are supported", ErrDigestMismatch)
	}
	if header[len(digestPrefix):] != Digest(body)[len(digestPrefix):] {
		return ErrDigestMismatch
	}
	return nil
}
