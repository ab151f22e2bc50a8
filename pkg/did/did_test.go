package did_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/threadring/ringhub/pkg/did"
)

// Ed25519 did:key identifiers from the published did:key test vectors.
const (
	keyVectorA = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"
	keyVectorB = "did:key:z6MkiTBz1ymuepAQ4HEHYSF1H8quG5GLVVQR3djdX3mDooWp"
)

func TestParse_webValid(t *testing.T) {
	cases := []struct {
		input    string
		host     string
		segments int
		domain   string
	}{
		{input: "did:web:example.com", host: "example.com", segments: 0, domain: "example.com"},
		{input: "did:web:example.com:users:alice", host: "example.com", segments: 2, domain: "example.com"},
		{input: "did:web:localhost%3A3000:actors:bob", host: "localhost:3000", segments: 2, domain: "localhost"},
		{input: "did:web:EXAMPLE.com", host: "example.com", segments: 0, domain: "example.com"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			d, err := did.Parse(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Method != "web" {
				t.Errorf("Method: got %q, want %q", d.Method, "web")
			}
			if d.Host != tc.host {
				t.Errorf("Host: got %q, want %q", d.Host, tc.host)
			}
			if len(d.Segments) != tc.segments {
				t.Errorf("Segments: got %d, want %d", len(d.Segments), tc.segments)
			}
			if d.Domain() != tc.domain {
				t.Errorf("Domain: got %q, want %q", d.Domain(), tc.domain)
			}
		})
	}
}

func TestParse_invalid(t *testing.T) {
	cases := []string{
		"https://example.com",      // not a DID
		"did:web:",                 // empty identifier
		"did:web:example.com:",     // empty path segment
		"did:web:exa mple.com",     // illegal host characters
		"did:key:6Mkh",             // missing multibase prefix
		"did:key:zzzzz!!",          // not base58btc payload
		"did:plc:abcdefghijklmnop", // unsupported method
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc, func(t *testing.T) {
			if _, err := did.Parse(tc); err == nil {
				t.Errorf("expected error for %q but got nil", tc)
			}
		})
	}
}

func TestParse_keyValid(t *testing.T) {
	d, err := did.Parse(keyVectorA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Method != "key" {
		t.Errorf("Method: got %q, want %q", d.Method, "key")
	}
	key, err := d.Ed25519Key()
	if err != nil {
		t.Fatalf("Ed25519Key: %v", err)
	}
	if len(key) != ed25519.PublicKeySize {
		t.Errorf("key length: got %d, want %d", len(key), ed25519.PublicKeySize)
	}
	if d.String() != keyVectorA {
		t.Errorf("String: got %q, want %q", d.String(), keyVectorA)
	}
}

func TestDocumentURL(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "did:web:example.com", want: "https://example.com/.well-known/did.json"},
		{input: "did:web:example.com:users:alice", want: "https://example.com/users/alice/did.json"},
		{input: "did:web:example.com:actors:bob", want: "https://example.com/actors/bob/did.json"},
		{input: "did:web:example.com:team:eng:carol", want: "https://example.com/team/eng/carol/did.json"},
		{input: "did:web:localhost%3A3000", want: "http://localhost:3000/.well-known/did.json"},
		{input: "did:web:127.0.0.1%3A8080:users:dev", want: "http://127.0.0.1:8080/users/dev/did.json"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			d, err := did.Parse(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := d.DocumentURL()
			if err != nil {
				t.Fatalf("DocumentURL: %v", err)
			}
			if got != tc.want {
				t.Errorf("DocumentURL: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDocumentURL_keyHasNone(t *testing.T) {
	d := did.MustParse(keyVectorB)
	if _, err := d.DocumentURL(); err == nil {
		t.Error("expected error for did:key document URL")
	}
}

func TestString_portRoundTrip(t *testing.T) {
	raw := "did:web:localhost%3A3000:users:alice"
	d, err := did.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := d.String(); got != raw {
		t.Errorf("String: got %q, want %q", got, raw)
	}
}

func TestMultibaseKey_roundTrip(t *testing.T) {
	d := did.MustParse(keyVectorA)
	key, err := d.Ed25519Key()
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := did.EncodeMultibaseKey(key)
	if err != nil {
		t.Fatalf("EncodeMultibaseKey: %v", err)
	}

	rebuilt, err := did.FromEd25519Key(key)
	if err != nil {
		t.Fatalf("FromEd25519Key: %v", err)
	}
	if rebuilt.KeyPart != encoded {
		t.Errorf("KeyPart: got %q, want %q", rebuilt.KeyPart, encoded)
	}
	if rebuilt.String() != keyVectorA {
		t.Errorf("String: got %q, want %q", rebuilt.String(), keyVectorA)
	}

	decoded, err := did.DecodeMultibaseKey(encoded)
	if err != nil {
		t.Fatalf("DecodeMultibaseKey: %v", err)
	}
	if !key.Equal(decoded) {
		t.Error("decoded key differs from original")
	}
}

func TestMustParse_panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustParse to panic on invalid DID")
		}
	}()
	did.MustParse("not-a-did")
}
