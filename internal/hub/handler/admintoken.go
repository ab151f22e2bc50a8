package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/threadring/ringhub/internal/hub/model"
)

// ErrNoTokenSecret means security.jwt_secret is unset, which disables
// operator tokens entirely.
var ErrNoTokenSecret = errors.New("no admin token secret configured")

const defaultAdminTokenTTL = 8 * time.Hour

// AdminTokenClaims are the JWT claims of a hub operator token.
type AdminTokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"` // always "admin"
}

// AdminTokens issues and verifies HS256 operator tokens. They are accepted
// only on admin routes and identify an operator without a DID signature.
type AdminTokens struct {
	secret []byte
	issuer string
}

// NewAdminTokens creates an AdminTokens. secret must be the configured
// security.jwt_secret; issuer is the hub URL.
func NewAdminTokens(secret, issuer string) (*AdminTokens, error) {
	if secret == "" {
		return nil, ErrNoTokenSecret
	}
	return &AdminTokens{secret: []byte(secret), issuer: issuer}, nil
}

// Issue creates a signed operator token for the named subject.
func (t *AdminTokens) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultAdminTokenTTL
	}
	now := time.Now().UTC()
	claims := AdminTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Type: "admin",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an operator token and returns the admin
// identity it grants. The identity is not DID-verified; only admin routes
// accept it.
func (t *AdminTokens) Verify(tokenStr string) (*model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AdminTokenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify admin token: %w", err)
	}
	claims, ok := token.Claims.(*AdminTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	if claims.Type != "admin" {
		return nil, fmt.Errorf("not an admin token")
	}
	return &model.Identity{
		DID:     claims.Subject,
		IsAdmin: true,
		Name:    claims.Subject,
	}, nil
}
