package httpsig_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/threadring/ringhub/pkg/httpsig"
)

func testKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    httpsig.Signature
		wantErr error
	}{
		{
			name:   "full header",
			header: `keyId="did:web:alice.example#key-1",algorithm="ed25519",headers="(request-target) host date digest",signature="` + b64("sig") + `"`,
			want: httpsig.Signature{
				KeyID:     "did:web:alice.example#key-1",
				Algorithm: "ed25519",
				Headers:   []string{"(request-target)", "host", "date", "digest"},
				Signature: []byte("sig"),
			},
		},
		{
			name:   "defaults applied",
			header: `keyId="did:web:alice.example",signature="` + b64("sig") + `"`,
			want: httpsig.Signature{
				KeyID:     "did:web:alice.example",
				Algorithm: "ed25519",
				Headers:   []string{"(request-target)", "date"},
				Signature: []byte("sig"),
			},
		},
		{
			name:   "hs2019 accepted",
			header: `keyId="did:key:z6Mk",algorithm="hs2019",signature="` + b64("sig") + `"`,
			want: httpsig.Signature{
				KeyID:     "did:key:z6Mk",
				Algorithm: "hs2019",
				Headers:   []string{"(request-target)", "date"},
				Signature: []byte("sig"),
			},
		},
		{
			name:   "created and expires unquoted",
			header: `keyId="d",algorithm="ed25519",created=1618884475,expires=1618884775,signature="` + b64("sig") + `"`,
			want: httpsig.Signature{
				KeyID:     "d",
				Algorithm: "ed25519",
				Headers:   []string{"(request-target)", "date"},
				Signature: []byte("sig"),
				Created:   1618884475,
				Expires:   1618884775,
			},
		},
		{
			name:   "unknown parameters ignored",
			header: `keyId="d",flavor="vanilla",signature="` + b64("sig") + `"`,
			want: httpsig.Signature{
				KeyID:     "d",
				Algorithm: "ed25519",
				Headers:   []string{"(request-target)", "date"},
				Signature: []byte("sig"),
			},
		},
		{name: "empty", header: "", wantErr: httpsig.ErrMalformedSignature},
		{name: "missing keyId", header: `signature="` + b64("sig") + `"`, wantErr: httpsig.ErrMalformedSignature},
		{name: "missing signature", header: `keyId="d"`, wantErr: httpsig.ErrMalformedSignature},
		{name: "bad base64", header: `keyId="d",signature="@@@"`, wantErr: httpsig.ErrMalformedSignature},
		{name: "rsa rejected", header: `keyId="d",algorithm="rsa-sha256",signature="` + b64("sig") + `"`, wantErr: httpsig.ErrUnsupportedAlgorithm},
		{name: "created not integer", header: `keyId="d",created=soon,signature="` + b64("sig") + `"`, wantErr: httpsig.ErrMalformedSignature},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := httpsig.Parse(tc.header)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got error %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.KeyID != tc.want.KeyID {
				t.Errorf("KeyID = %q, want %q", got.KeyID, tc.want.KeyID)
			}
			if got.Algorithm != tc.want.Algorithm {
				t.Errorf("Algorithm = %q, want %q", got.Algorithm, tc.want.Algorithm)
			}
			if strings.Join(got.Headers, " ") != strings.Join(tc.want.Headers, " ") {
				t.Errorf("Headers = %v, want %v", got.Headers, tc.want.Headers)
			}
			if string(got.Signature) != string(tc.want.Signature) {
				t.Errorf("Signature = %q, want %q", got.Signature, tc.want.Signature)
			}
			if got.Created != tc.want.Created || got.Expires != tc.want.Expires {
				t.Errorf("Created/Expires = %d/%d, want %d/%d", got.Created, got.Expires, tc.want.Created, tc.want.Expires)
			}
		})
	}
}

func TestSigningString(t *testing.T) {
	r := httptest.NewRequest("POST", "http://hub.example/trp/join?dry=1", nil)
	r.Header.Set("Date", "Tue, 20 Apr 2021 02:07:55 GMT")
	r.Header.Set("Digest", "sha-256=abc")

	sig := &httpsig.Signature{
		Headers: []string{"(request-target)", "host", "date", "digest"},
	}
	got, err := sig.SigningString(r)
	if err != nil {
		t.Fatalf("SigningString: %v", err)
	}
	want := "(request-target): post /trp/join?dry=1\n" +
		"host: hub.example\n" +
		"date: Tue, 20 Apr 2021 02:07:55 GMT\n" +
		"digest: sha-256=abc"
	if got != want {
		t.Errorf("signing string:\n%q\nwant:\n%q", got, want)
	}
}

func TestSigningStringCreatedExpires(t *testing.T) {
	r := httptest.NewRequest("GET", "http://hub.example/trp/rings", nil)

	sig := &httpsig.Signature{
		Headers: []string{"(request-target)", "(created)", "(expires)"},
		Created: 1618884475,
		Expires: 1618884775,
	}
	got, err := sig.SigningString(r)
	if err != nil {
		t.Fatalf("SigningString: %v", err)
	}
	want := "(request-target): get /trp/rings\n" +
		"(created): 1618884475\n" +
		"(expires): 1618884775"
	if got != want {
		t.Errorf("signing string:\n%q\nwant:\n%q", got, want)
	}
}

func TestSigningStringErrors(t *testing.T) {
	r := httptest.NewRequest("GET", "http://hub.example/trp/rings", nil)

	tests := []struct {
		name string
		sig  httpsig.Signature
	}{
		{name: "declared header absent", sig: httpsig.Signature{Headers: []string{"date"}}},
		{name: "declared created absent", sig: httpsig.Signature{Headers: []string{"(created)"}}},
		{name: "declared expires absent", sig: httpsig.Signature{Headers: []string{"(expires)"}}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.sig.SigningString(r); !errors.Is(err, httpsig.ErrMalformedSignature) {
				t.Fatalf("got %v, want ErrMalformedSignature", err)
			}
		})
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := testKey(t)
	signer, err := httpsig.NewSigner("did:web:alice.example#key-1", priv)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	body := []byte(`{"ringSlug":"indie-web"}`)
	r := httptest.NewRequest("POST", "http://hub.example/trp/join", nil)
	if err := signer.Sign(r, body); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if got := r.Header.Get(httpsig.DigestHeader); got != httpsig.Digest(body) {
		t.Errorf("Digest header = %q, want %q", got, httpsig.Digest(body))
	}

	sig, err := httpsig.Parse(r.Header.Get(httpsig.SignatureHeader))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sig.KeyID != "did:web:alice.example#key-1" {
		t.Errorf("KeyID = %q", sig.KeyID)
	}

	if err := httpsig.NewVerifier().Verify(r, body, sig, pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv := testKey(t)
	otherPub, _ := testKey(t)

	signer, err := httpsig.NewSigner("did:web:alice.example", priv)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	r := httptest.NewRequest("GET", "http://hub.example/trp/rings", nil)
	if err := signer.Sign(r, nil); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig, err := httpsig.Parse(r.Header.Get(httpsig.SignatureHeader))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := httpsig.NewVerifier().Verify(r, nil, sig, otherPub); !errors.Is(err, httpsig.ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	pub, priv := testKey(t)
	signer, err := httpsig.NewSigner("did:web:alice.example", priv)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	body := []byte(`{"ringSlug":"indie-web"}`)
	r := httptest.NewRequest("POST", "http://hub.example/trp/join", nil)
	if err := signer.Sign(r, body); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig, err := httpsig.Parse(r.Header.Get(httpsig.SignatureHeader))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tampered := []byte(`{"ringSlug":"other-ring"}`)
	if err := httpsig.NewVerifier().Verify(r, tampered, sig, pub); !errors.Is(err, httpsig.ErrDigestMismatch) {
		t.Fatalf("got %v, want ErrDigestMismatch", err)
	}

	r.Header.Del(httpsig.DigestHeader)
	if err := httpsig.NewVerifier().Verify(r, body, sig, pub); !errors.Is(err, httpsig.ErrMissingDigest) {
		t.Fatalf("got %v, want ErrMissingDigest", err)
	}
}

func TestVerifyReplayWindow(t *testing.T) {
	pub, priv := testKey(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		date    time.Duration // offset of the Date header from base
		noDate  bool
		created time.Duration // offset from base, 0 = unset
		expires time.Duration // offset from base, 0 = unset
		now     time.Duration // verifier clock offset from base
		wantErr error
	}{
		{name: "fresh date accepted", date: 0, now: 0},
		{name: "date slightly behind accepted", date: -299 * time.Second, now: 0},
		{name: "date slightly ahead accepted", date: 299 * time.Second, now: 0},
		{name: "date too old", date: -301 * time.Second, now: 0, wantErr: httpsig.ErrDateOutOfRange},
		{name: "date too far ahead", date: 301 * time.Second, now: 0, wantErr: httpsig.ErrDateOutOfRange},
		{name: "date missing", noDate: true, now: 0, wantErr: httpsig.ErrMissingDate},
		{name: "created slightly ahead accepted", date: 0, created: 59 * time.Second, now: 0},
		{name: "created too far ahead", date: 0, created: 61 * time.Second, now: 0, wantErr: httpsig.ErrCreatedInFuture},
		{name: "expires passed", date: 0, expires: -time.Second, now: 0, wantErr: httpsig.ErrSignatureExpired},
		{name: "expires ahead accepted", date: 0, expires: time.Minute, now: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			signer, err := httpsig.NewSigner("did:web:alice.example", priv)
			if err != nil {
				t.Fatalf("NewSigner: %v", err)
			}
			signer.SetClock(func() time.Time { return base.Add(tc.date) })

			r := httptest.NewRequest("GET", "http://hub.example/trp/rings", nil)
			if err := signer.Sign(r, nil); err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if tc.noDate {
				r.Header.Del("Date")
			}

			sig, err := httpsig.Parse(r.Header.Get(httpsig.SignatureHeader))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			// created and expires are not part of the signed header list
			// here, so adjusting them after the fact keeps the signature
			// bytes valid while exercising the window checks.
			if tc.created != 0 {
				sig.Created = base.Add(tc.created).Unix()
			}
			if tc.expires != 0 {
				sig.Expires = base.Add(tc.expires).Unix()
			}

			v := httpsig.NewVerifier()
			v.SetClock(func() time.Time { return base.Add(tc.now) })

			err = v.Verify(r, nil, sig, pub)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
		})
	}
}

func TestVerifyRejectsModifiedTarget(t *testing.T) {
	pub, priv := testKey(t)
	signer, err := httpsig.NewSigner("did:web:alice.example", priv)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	r := httptest.NewRequest("DELETE", "http://hub.example/trp/rings/indie-web", nil)
	if err := signer.Sign(r, nil); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig, err := httpsig.Parse(r.Header.Get(httpsig.SignatureHeader))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	replayed := httptest.NewRequest("DELETE", "http://hub.example/trp/rings/other-ring", nil)
	replayed.Header = r.Header.Clone()

	if err := httpsig.NewVerifier().Verify(replayed, nil, sig, pub); !errors.Is(err, httpsig.ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
}

func TestSignatureString(t *testing.T) {
	sig := &httpsig.Signature{
		KeyID:     "did:web:alice.example#key-1",
		Algorithm: "ed25519",
		Headers:   []string{"(request-target)", "date"},
		Signature: []byte("sig"),
	}
	rendered := sig.String()

	parsed, err := httpsig.Parse(rendered)
	if err != nil {
		t.Fatalf("Parse(%q): %v", rendered, err)
	}
	if parsed.KeyID != sig.KeyID || parsed.Algorithm != sig.Algorithm {
		t.Errorf("round trip lost fields: %+v", parsed)
	}
	if string(parsed.Signature) != "sig" {
		t.Errorf("Signature = %q, want %q", parsed.Signature, "sig")
	}
}
