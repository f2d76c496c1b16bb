// Package auth verifies bearer tokens and exposes the caller as a
// models.User.
package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means the request carried no bearer token.
	ErrNoToken = errors.New("auth: no bearer token")

	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Role     string `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User maps the claims onto a models.User. Roles are lowercased so
// "Admin" and "admin" resolve the same way.
func (c *Claims) User() models.User {
	return models.User{
		ID:       c.Subject,
		Role:     strings.ToLower(c.Role),
		SchoolID: c.SchoolID,
		TenantID: c.TenantID,
		Name:     c.Name,
		Email:    c.Email,
	}
}

// Config selects the verification key and the claims every token must
// carry. Empty Issuer or Audience skips that check.
type Config struct {
	// SigningKey is an HMAC secret or a PEM encoded RSA/ECDSA public key.
	SigningKey string
	Issuer     string
	Audience   string
}

// Authenticator verifies tokens with one key.
type Authenticator struct {
	key     any
	methods []string
	opts    []jwt.ParserOption
}

// New builds an Authenticator. A SigningKey that decodes as PEM is a
// public key and pins the RS* or ES* methods to match; anything else is
// an HMAC secret and pins HS*.
func New(cfg Config) (*Authenticator, error) {
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return nil, errors.New("auth: signing key is required")
	}

	a := &Authenticator{}
	if block, _ := pem.Decode([]byte(cfg.SigningKey)); block != nil {
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		switch pub.(type) {
		case *rsa.PublicKey:
			a.methods = []string{"RS256", "RS384", "RS512"}
		case *ecdsa.PublicKey:
			a.methods = []string{"ES256", "ES384", "ES512"}
		default:
			return nil, fmt.Errorf("auth: unsupported public key type %T", pub)
		}
		a.key = pub
	} else {
		a.key = []byte(cfg.SigningKey)
		a.methods = []string{"HS256", "HS384", "HS512"}
	}

	a.opts = []jwt.ParserOption{jwt.WithValidMethods(a.methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		a.opts = append(a.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		a.opts = append(a.opts, jwt.WithAudience(cfg.Audience))
	}
	return a, nil
}

// Verify parses and validates raw, returning its claims.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, a.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: sub and role are required", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(token), nil
}

type contextKey struct{}

type principal struct {
	user  models.User
	token string
}

// WithUser returns ctx carrying user and the raw token that proved it.
func WithUser(ctx context.Context, user models.User, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, principal{user: user, token: token})
}

// UserFromContext reports the authenticated caller, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	p, ok := ctx.Value(contextKey{}).(principal)
	return p.user, ok
}

// TokenFromContext returns the caller's raw bearer token for forwarding
// to the backend, or "".
func TokenFromContext(ctx context.Context) string {
	p, _ := ctx.Value(contextKey{}).(principal)
	return p.token
}
