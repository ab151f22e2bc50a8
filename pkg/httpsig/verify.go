package httpsig

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"time"
)

// Tolerances of the replay window.
const (
	// CreatedTolerance is how far in the future a created parameter may lie
	// before the signature is rejected.
	CreatedTolerance = 60 * time.Second
	// DateSkew is the maximum distance between the Date header and server
	// time in either direction.
	DateSkew = 300 * time.Second
)

// Verifier checks parsed signatures against request content and a resolved
// public key. The zero value is not usable; call NewVerifier.
type Verifier struct {
	now func() time.Time
}

// NewVerifier creates a Verifier using wall-clock time.
func NewVerifier() *Verifier {
	return &Verifier{now: time.Now}
}

// SetClock overrides the time source, primarily for tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Verify checks the replay window, the body digest, and the Ed25519
// signature itself. body must be the raw request body (nil or empty for
// bodyless requests). All failures map to a typed error.
func (v *Verifier) Verify(r *http.Request, body []byte, sig *Signature, key ed25519.PublicKey) error {
	if err := v.checkWindow(r, sig); err != nil {
		return err
	}
	if len(body) > 0 {
		// An unsigned digest would let the body be swapped after signing.
		if !sig.Covers(DigestHeader) {
			return fmt.Errorf("%w: requests with a body must sign the digest header", ErrMissingDigest)
		}
		if err := checkDigest(r.Header.Get(DigestHeader), body); err != nil {
			return err
		}
	}

	signingString, err := sig.SigningString(r)
	if err != nil {
		return err
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: key is %d bytes", ErrInvalidSignature, len(key))
	}
	if !ed25519.Verify(key, []byte(signingString), sig.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// checkWindow enforces the freshness rules: created must not lie more than
// CreatedTolerance in the future, expires must not have passed, and the Date
// header must be present and within DateSkew of server time.
func (v *Verifier) checkWindow(r *http.Request, sig *Signature) error {
	now := v.now()

	if sig.Created > 0 && time.Unix(sig.Created, 0).After(now.Add(CreatedTolerance)) {
		return ErrCreatedInFuture
	}
	if sig.Expires > 0 && time.Unix(sig.Expires, 0).Before(now) {
		return ErrSignatureExpired
	}

	dateHeader := r.Header.Get("Date")
	if dateHeader == "" {
		return ErrMissingDate
	}
	date, err := http.ParseTime(dateHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingDate, err)
	}
	drift := now.Sub(date)
	if drift < 0 {
		drift = -drift
	}
	if drift > DateSkew {
		return ErrDateOutOfRange
	}
	return nil
}
