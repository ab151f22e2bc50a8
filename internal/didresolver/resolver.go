package didresolver

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/pkg/did"
)

var (
	// ErrNotFound means the DID host answered but no document exists there.
	ErrNotFound = errors.New("did document not found")
	// ErrUnresolvable means the DID could not be resolved at all.
	ErrUnresolvable = errors.New("did is unresolvable")
)

const (
	maxDocumentBytes = 1 << 20
	defaultTimeout   = 5 * time.Second
	defaultCacheTTL  = time.Hour
)

// Resolver turns DIDs into DID documents. did:key documents are synthesized
// locally; did:web documents are fetched over HTTPS and cached.
type Resolver struct {
	cache  DocumentCache
	http   *http.Client
	logger *zap.Logger
}

// NewResolver creates a resolver backed by cache. A nil cache gets a memory
// cache with a one hour TTL.
func NewResolver(cache DocumentCache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache(defaultCacheTTL)
	}
	return &Resolver{
		cache:  cache,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

// SetHTTPClient swaps the HTTP client, primarily for tests.
func (r *Resolver) SetHTTPClient(client *http.Client) {
	r.http = client
}

// Resolve returns the DID document for didStr, consulting the cache for
// did:web identifiers before fetching.
func (r *Resolver) Resolve(ctx context.Context, didStr string) (*Document, error) {
	d, err := did.Parse(didStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	if d.Method == did.MethodKey {
		return synthesizeKeyDocument(d)
	}

	if doc, ok := r.cache.Get(ctx, d.String()); ok {
		return doc, nil
	}

	doc, err := r.fetchWebDocument(ctx, d)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, d.String(), doc)
	return doc, nil
}

// Refresh drops any cached document for didStr and resolves it again.
func (r *Resolver) Refresh(ctx context.Context, didStr string) (*Document, error) {
	d, err := did.Parse(didStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	r.cache.Purge(ctx, d.String())
	return r.Resolve(ctx, d.String())
}

// ResolveKey resolves the DID portion of keyID and extracts the Ed25519 key
// of the matching verification method. keyID may be a bare DID or a DID with
// a #fragment naming a specific method.
func (r *Resolver) ResolveKey(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	didStr := keyID
	if idx := strings.Index(keyID, "#"); idx >= 0 {
		didStr = keyID[:idx]
	}
	doc, err := r.Resolve(ctx, didStr)
	if err != nil {
		return nil, err
	}
	method, err := doc.SelectMethod(keyID)
	if err != nil {
		return nil, err
	}
	return method.PublicKey()
}

func (r *Resolver) fetchWebDocument(ctx context.Context, d *did.DID) (*Document, error) {
	docURL, err := d.DocumentURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ringhub-resolver/1.0")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUnresolvable, docURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnresolvable, docURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read document response: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode document from %s: %v", ErrUnresolvable, docURL, err)
	}

	if err := checkDocumentID(d, &doc); err != nil {
		return nil, err
	}
	if len(doc.VerificationMethod) == 0 {
		return nil, fmt.Errorf("%w: document for %s carries no verification methods", ErrUnresolvable, d.String())
	}
	return &doc, nil
}

// checkDocumentID rejects documents whose id does not match the DID they
// were fetched for, so one host cannot serve keys for another identity.
func checkDocumentID(requested *did.DID, doc *Document) error {
	docID, err := did.Parse(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: document id %q is not a valid DID", ErrUnresolvable, doc.ID)
	}
	if docID.String() != requested.String() {
		return fmt.Errorf("%w: document id %q does not match requested %q", ErrUnresolvable, doc.ID, requested.String())
	}
	return nil
}

// synthesizeKeyDocument builds the implicit document of a did:key
// identifier. The key material is embedded in the DID itself, so there is
// nothing to fetch.
func synthesizeKeyDocument(d *did.DID) (*Document, error) {
	if _, err := d.Ed25519Key(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	didStr := d.String()
	return &Document{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      didStr,
		VerificationMethod: []VerificationMethod{{
			ID:                 didStr + "#" + d.KeyPart,
			Type:               "Ed25519VerificationKey2020",
			Controller:         didStr,
			PublicKeyMultibase: d.KeyPart,
		}},
	}, nil
}
