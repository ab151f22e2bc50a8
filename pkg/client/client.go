package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/threadring/ringhub/pkg/httpsig"
)

// Sentinel errors the SDK maps hub responses onto. Wrapped errors carry the
// hub's message; test with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
)

// Client is the Ring Hub SDK entry point.
type Client struct {
	hubBase    string
	httpClient *http.Client
	cache      *ringCache

	// signer signs every outbound request when an identity is configured.
	signer    *httpsig.Signer
	signerDID string
	// adminToken is attached as a Bearer token for operator endpoints.
	adminToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory ring caching with the given TTL. Cached
// entries serve GetRing; mutations through this client drop them.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newRingCache(ttl)
		return nil
	}
}

// WithIdentity signs every request with the identity's Ed25519 key, covering
// (request-target), host, and date, plus digest on requests with a body.
func WithIdentity(id *Identity) Option {
	return func(c *Client) error {
		signer, err := httpsig.NewSigner(id.DID, id.PrivateKey)
		if err != nil {
			return fmt.Errorf("build signer: %w", err)
		}
		signer.SetHeaders([]string{"(request-target)", "host", "date"})
		c.signer = signer
		c.signerDID = id.DID
		return nil
	}
}

// WithAdminToken attaches a hub operator Bearer token to every request.
// Operator endpoints under /trp/admin accept it in place of a signature.
func WithAdminToken(token string) Option {
	return func(c *Client) error {
		c.adminToken = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a locally-generated certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a new Ring Hub SDK Client connected to hubBase.
//
//	c, err := client.New("https://hub.example.com",
//	    client.WithIdentity(id),
//	    client.WithCacheTTL(60*time.Second),
//	)
func New(hubBase string, opts ...Option) (*Client, error) {
	c := &Client{
		hubBase:    strings.TrimRight(hubBase, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(hubBase string, opts ...Option) *Client {
	c, err := New(hubBase, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// DID returns the DID this client signs as, or "" for anonymous clients.
func (c *Client) DID() string {
	if c.signer == nil {
		return ""
	}
	return c.signerDID
}

// Health checks the hub's readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health/ready", nil)
}

// Info fetches the hub's self-description from /docs.
func (c *Client) Info(ctx context.Context) (*HubInfo, error) {
	var info HubInfo
	if err := c.get(ctx, "/docs", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats fetches hub-wide ring, actor, and membership counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/trp/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Root fetches the hub's root ring.
func (c *Client) Root(ctx context.Context) (*Ring, error) {
	var ring Ring
	if err := c.get(ctx, "/trp/root", &ring); err != nil {
		return nil, err
	}
	return &ring, nil
}

// GetRing fetches one ring by slug. Unlisted and private rings require a
// signing identity with access.
func (c *Client) GetRing(ctx context.Context, slug string) (*Ring, error) {
	if c.cache != nil {
		if ring, ok := c.cache.get(slug); ok {
			return ring, nil
		}
	}
	var ring Ring
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug), &ring); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(slug, &ring)
	}
	return &ring, nil
}

// ListRings returns rings matching the filter. Anonymous clients only see
// public rings.
func (c *Client) ListRings(ctx context.Context, f RingFilter) ([]Ring, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Visibility != "" {
		q.Set("visibility", f.Visibility)
	}
	if f.MemberDID != "" {
		q.Set("memberDid", f.MemberDID)
	}
	setPage(q, f.Limit, f.Offset)

	var wrapper struct {
		Rings []Ring `json:"rings"`
	}
	if err := c.get(ctx, "/trp/rings"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Rings, nil
}

// TrendingRings returns rings ranked by recent accepted posts. window is one
// of hour, day, week, month; empty means day.
func (c *Client) TrendingRings(ctx context.Context, window string, limit int) ([]Ring, error) {
	q := url.Values{}
	if window != "" {
		q.Set("window", window)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var wrapper struct {
		Rings []Ring `json:"rings"`
	}
	if err := c.get(ctx, "/trp/rings/trending"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Rings, nil
}

// CheckSlug reports whether a slug is valid and unclaimed.
func (c *Client) CheckSlug(ctx context.Context, slug string) (*SlugAvailability, error) {
	var avail SlugAvailability
	if err := c.get(ctx, "/trp/rings/check-availability/"+url.PathEscape(slug), &avail); err != nil {
		return nil, err
	}
	return &avail, nil
}

// Lineage fetches a ring's ancestors and descendant tree.
func (c *Client) Lineage(ctx context.Context, slug string) (*Lineage, error) {
	var lineage Lineage
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/lineage", &lineage); err != nil {
		return nil, err
	}
	return &lineage, nil
}

// Members lists a ring's members. status filters by membership status when
// non-empty; moderator-only statuses require a privileged identity.
func (c *Client) Members(ctx context.Context, slug, status string, limit, offset int) ([]Membership, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	setPage(q, limit, offset)

	var wrapper struct {
		Members []Membership `json:"members"`
	}
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/members"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Members, nil
}

// GetMembershipInfo fetches the public membership summary of a ring.
func (c *Client) GetMembershipInfo(ctx context.Context, slug string) (*MembershipInfo, error) {
	var info MembershipInfo
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/membership-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Feed returns a ring's accepted posts, optionally widened to related rings
// via opts.Scope.
func (c *Client) Feed(ctx context.Context, slug string, opts FeedOptions) ([]PostRef, error) {
	var wrapper struct {
		Posts []PostRef `json:"posts"`
	}
	path := "/trp/rings/" + url.PathEscape(slug) + "/feed" + query(feedQuery(opts))
	if err := c.get(ctx, path, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// TrendingFeed returns recent accepted posts across all public rings.
func (c *Client) TrendingFeed(ctx context.Context, opts FeedOptions) ([]PostRef, error) {
	var wrapper struct {
		Posts []PostRef `json:"posts"`
	}
	if err := c.get(ctx, "/trp/trending/feed"+query(feedQuery(opts)), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Posts, nil
}

// GetBadge fetches a stored badge by ID.
func (c *Client) GetBadge(ctx context.Context, id string) (*Badge, error) {
	var badge Badge
	if err := c.get(ctx, "/trp/badges/"+url.PathEscape(id), &badge); err != nil {
		return nil, err
	}
	return &badge, nil
}

// VerifyBadge checks a badge's signature and revocation state. When raw is
// non-nil it is verified in place of the stored credential, catching
// presented badges that diverge from what the hub issued.
func (c *Client) VerifyBadge(ctx context.Context, id string, raw json.RawMessage) (*BadgeVerification, error) {
	var in any
	if len(raw) > 0 {
		in = map[string]json.RawMessage{"badge": raw}
	}
	var verdict BadgeVerification
	if err := c.send(ctx, http.MethodPost, "/trp/badges/"+url.PathEscape(id)+"/verify", in, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// ActorBadges lists badges issued to an actor. status is active, revoked, or
// all; empty means active.
func (c *Client) ActorBadges(ctx context.Context, actorDID, status string) ([]Badge, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var wrapper struct {
		Badges []Badge `json:"badges"`
	}
	if err := c.get(ctx, "/trp/actors/"+url.PathEscape(actorDID)+"/badges"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Badges, nil
}

// Challenges lists a ring's posting prompts.
func (c *Client) Challenges(ctx context.Context, slug string, activeOnly bool) ([]Challenge, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("activeOnly", "true")
	}
	var wrapper struct {
		Challenges []Challenge `json:"challenges"`
	}
	if err := c.get(ctx, "/trp/rings/"+url.PathEscape(slug)+"/challenges"+query(q), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Challenges, nil
}

// ── HTTP plumbing ────────────────────────────────────────────────────────────

// get issues a GET and decodes the response into out (nil to discard).
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

// send issues a request with an optional JSON body, signing it when an
// identity is configured, and decodes the response into out.
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = b
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.hubBase+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req, body)
	if err != nil {
		return err
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do executes a request, attaching the admin Bearer token and signature when
// configured, and maps error statuses onto the package sentinels.
func (c *Client) do(req *http.Request, body []byte) ([]byte, error) {
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	if c.signer != nil {
		if err := c.signer.Sign(req, body); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, apiMessage(respBody, req.URL.Path))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiMessage(respBody, req.URL.Path))
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrForbidden, apiMessage(respBody, req.URL.Path))
	case resp.StatusCode == http.StatusTooManyRequests:
		msg := apiMessage(respBody, req.URL.Path)
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			msg += " (retry after " + retry + "s)"
		}
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("hub error %d: %s", resp.StatusCode, apiMessage(respBody, req.URL.Path))
	}
	return respBody, nil
}

// apiMessage extracts the hub's error field, falling back to fallback.
func apiMessage(body []byte, fallback string) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if len(body) > 0 {
		return string(body)
	}
	return fallback
}

// query renders v as a query suffix, or "" when empty.
func query(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func setPage(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}

func feedQuery(opts FeedOptions) url.Values {
	q := url.Values{}
	if opts.Scope != "" {
		q.Set("scope", opts.Scope)
	}
	if opts.ActorDID != "" {
		q.Set("actorDid", opts.ActorDID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Pinned != nil {
		q.Set("pinned", strconv.FormatBool(*opts.Pinned))
	}
	if opts.Since != nil {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Until != nil {
		q.Set("until", opts.Until.UTC().Format(time.RFC3339))
	}
	setPage(q, opts.Limit, opts.Offset)
	return q
}

// --- simple in-memory ring cache ---

type cacheEntry struct {
	ring      *Ring
	expiresAt time.Time
}

type ringCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newRingCache(ttl time.Duration) *ringCache {
	return &ringCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (rc *ringCache) get(slug string) (*Ring, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	e, ok := rc.entries[slug]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.ring, true
}

func (rc *ringCache) set(slug string, ring *Ring) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[slug] = &cacheEntry{ring: ring, expiresAt: time.Now().Add(rc.ttl)}
}

func (rc *ringCache) drop(slug string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.entries, slug)
}