package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/pkg/did"
	"github.com/threadring/ringhub/pkg/httpsig"
)

// identityKey is the gin context key the authenticated identity lives
// under.
const identityKey = "ringhub_identity"

// KeyResolver resolves a signature keyId to the Ed25519 key of the matching
// verification method. Satisfied by *didresolver.Resolver.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// actorStore is the slice of the actor repository the Authenticator needs,
// satisfied by *repository.ActorRepository.
type actorStore interface {
	GetByDID(ctx context.Context, did string) (*model.Actor, error)
	Upsert(ctx context.Context, a *model.Actor) (*model.Actor, error)
	BumpLastSeen(ctx context.Context, did string, at time.Time) error
}

// Authenticator verifies HTTP message signatures and attaches the caller's
// identity to the gin context. Admin routes additionally accept operator
// bearer tokens.
type Authenticator struct {
	keys     KeyResolver
	verifier *httpsig.Verifier
	actors   actorStore
	tokens   *AdminTokens // nil = operator tokens disabled
	logger   *zap.Logger

	// Admin signature bypass, off unless SetAdminBypass is called.
	bypassDB    auditlog.Querier
	bypassRings *repository.RingRepository
	bypassAudit auditlog.Log
	rootSlug    string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys KeyResolver, actors actorStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		keys:     keys,
		verifier: httpsig.NewVerifier(),
		actors:   actors,
		logger:   logger,
	}
}

// SetAdminTokens enables operator bearer tokens on admin routes.
func (a *Authenticator) SetAdminTokens(t *AdminTokens) { a.tokens = t }

// SetAdminBypass admits known admins whose signature fails verification.
// Every use is audited to the root ring's log.
func (a *Authenticator) SetAdminBypass(db auditlog.Querier, rings *repository.RingRepository, audit auditlog.Log, rootSlug string) {
	a.bypassDB = db
	a.bypassRings = rings
	a.bypassAudit = audit
	a.rootSlug = rootSlug
}

// IdentityFromCtx returns the authenticated identity, or nil for anonymous
// requests.
func IdentityFromCtx(c *gin.Context) *model.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	ident, ok := v.(*model.Identity)
	if !ok {
		return nil
	}
	return ident
}

// Optional authenticates when a Signature header is present and passes
// anonymous requests through. A present but invalid signature is still a
// 401: callers who ask to be authenticated must succeed.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := a.signedIdentity(c)
		if !ok {
			return
		}
		if ident != nil {
			c.Set(identityKey, ident)
		}
		c.Next()
	}
}

// Required rejects requests without a valid signature.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := a.signedIdentity(c)
		if !ok {
			return
		}
		if ident == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature required"})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// Admin accepts an operator bearer token or a signed request from a hub
// admin; everything else is rejected.
func (a *Authenticator) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if a.tokens == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator tokens are not enabled"})
				return
			}
			ident, err := a.tokens.Verify(token)
			if err != nil {
				a.logger.Warn("admin token rejected", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			c.Set(identityKey, ident)
			c.Next()
			return
		}

		ident, ok := a.signedIdentity(c)
		if !ok {
			return
		}
		if ident == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature required"})
			return
		}
		if !ident.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// signedIdentity parses and verifies the Signature header. It returns
// (nil, true) when no Signature header is present, (ident, true) on
// success, and (nil, false) after writing a 401.
func (a *Authenticator) signedIdentity(c *gin.Context) (*model.Identity, bool) {
	header := c.GetHeader(httpsig.SignatureHeader)
	if header == "" {
		return nil, true
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return nil, false
	}
	// Binding reads the body again downstream.
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	sig, err := httpsig.Parse(header)
	if err != nil {
		a.logger.Warn("signature rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return nil, false
	}

	didStr := sig.KeyID
	if idx := strings.Index(didStr, "#"); idx >= 0 {
		didStr = didStr[:idx]
	}
	d, err := did.Parse(didStr)
	if err != nil {
		a.logger.Warn("signature rejected", zap.String("key_id", sig.KeyID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return nil, false
	}
	didStr = d.String()

	ctx := c.Request.Context()
	key, err := a.keys.ResolveKey(ctx, sig.KeyID)
	if err == nil {
		err = a.verifier.Verify(c.Request, body, sig, key)
	}
	if err != nil {
		RecordSignatureCheck(false)
		if ident := a.adminBypass(c, didStr); ident != nil {
			return ident, true
		}
		a.logger.Warn("signature rejected",
			zap.String("did", didStr),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return nil, false
	}
	RecordSignatureCheck(true)

	return a.registerActor(ctx, didStr, key), true
}

// registerActor records the verified DID: first sight inserts the actor,
// later sightings bump last_seen_at. A valid signature proves ownership
// even when the row cannot be stored, so store failures degrade to a bare
// verified identity.
func (a *Authenticator) registerActor(ctx context.Context, didStr string, key ed25519.PublicKey) *model.Identity {
	actor, err := a.actors.GetByDID(ctx, didStr)
	if errors.Is(err, repository.ErrNotFound) {
		actor, err = a.actors.Upsert(ctx, &model.Actor{
			DID:       didStr,
			Type:      model.ActorTypeUser,
			Verified:  true,
			PublicKey: base64.StdEncoding.EncodeToString(key),
		})
	} else if err == nil {
		if berr := a.actors.BumpLastSeen(ctx, didStr, time.Now().UTC()); berr != nil {
			a.logger.Warn("bump last seen", zap.String("did", didStr), zap.Error(berr))
		}
	}
	if err != nil {
		a.logger.Warn("actor registration failed", zap.String("did", didStr), zap.Error(err))
		return &model.Identity{DID: didStr, Verified: true}
	}
	return &model.Identity{
		DID:      didStr,
		Verified: true,
		Trusted:  actor.Trusted,
		IsAdmin:  actor.IsAdmin,
		Name:     actor.Name,
	}
}

// adminBypass admits a known admin whose signature failed, when configured.
// Returns nil when the bypass does not apply.
func (a *Authenticator) adminBypass(c *gin.Context, didStr string) *model.Identity {
	if a.bypassDB == nil {
		return nil
	}
	ctx := c.Request.Context()
	actor, err := a.actors.GetByDID(ctx, didStr)
	if err != nil || !actor.IsAdmin {
		return nil
	}

	a.logger.Warn("admin signature bypass used",
		zap.String("did", didStr),
		zap.String("path", c.Request.URL.Path))

	root, err := a.bypassRings.GetBySlug(ctx, a.rootSlug)
	if err != nil {
		a.logger.Error("resolve root ring for bypass audit", zap.Error(err))
		return &model.Identity{DID: didStr, Verified: true, Trusted: actor.Trusted, IsAdmin: true, Name: actor.Name}
	}
	if _, err := a.bypassAudit.Append(ctx, a.bypassDB, auditlog.Record{
		RingID:   root.ID,
		Action:   auditlog.ActionAdminBypassUsed,
		ActorDID: didStr,
		Metadata: map[string]any{"path": c.Request.URL.Path, "method": c.Request.Method},
	}); err != nil {
		a.logger.Error("audit admin bypass", zap.Error(err))
	}
	return &model.Identity{DID: didStr, Verified: true, Trusted: actor.Trusted, IsAdmin: true, Name: actor.Name}
}

// bearerToken extracts a Bearer token from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
