// Package auth implements the single-admin-shared-secret auth model from
// spec.md §6: a constant-time comparison against ADMIN_API_KEY gates the
// admin content endpoints, and a short-lived HS256 JWT (issued only after
// that comparison succeeds) gives the MCP bearer-auth convention a real
// token to validate for write-tool access, adapted from the teacher's
// auth.Middleware (internal/auth/jwt.go) which did the RS256/JWKS/HS256
// dual-mode dance this spec's single-admin model doesn't need.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
)

const adminTokenIssuer = "portfoliobridge-api"

// AdminTokenTTL is how long a token from IssueAdminToken stays valid.
const AdminTokenTTL = 15 * time.Minute
const adminTokenTTL = AdminTokenTTL

type ctxKey string

const changedByKey ctxKey = "changedBy"

// ChangedBy extracts the deterministic admin identity attached to ctx by
// Middleware, for use as ContentHistory.changedBy (spec.md §11 Open
// Question 3: bound to a stable, non-secret-revealing derivative of the
// admin credential rather than left unbound).
func ChangedBy(ctx context.Context) *string {
	if v, ok := ctx.Value(changedByKey).(string); ok {
		return &v
	}
	return nil
}

// fingerprint derives a stable, non-reversible identity for secret: the
// first 12 hex characters of its SHA-256 digest. Never logs or returns the
// raw secret.
func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:12]
}

// Middleware checks the X-Admin-Key header against secret using a
// constant-time comparison (spec.md §6 "Admin auth"). On success it
// attaches the admin's fingerprint to the request context for ChangedBy.
// devMode is threaded through to the error envelope per spec.md §7.
func Middleware(secret string, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				log.Warn().Str("path", r.URL.Path).Msg("auth: admin key mismatch")
				apierr.WriteHTTP(w, r, apierr.NewUnauthorized("invalid admin key"), devMode)
				return
			}

			ctx := context.WithValue(r.Context(), changedByKey, fingerprint(secret))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adminClaims is the short-lived admin session token's claim set, used only
// to authenticate the MCP bearer-auth convention for write-tool access.
type adminClaims struct {
	jwt.RegisteredClaims
}

// IssueAdminToken signs a short-lived HS256 token after the caller has
// already verified key against the admin secret (see Middleware). The
// returned token is what an MCP client presents as a Bearer credential to
// reach write tools.
func IssueAdminToken(secret string) (string, error) {
	now := time.Now()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    adminTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// ValidateAdminToken verifies an HS256 admin token minted by IssueAdminToken
// against secret, returning an error if it is malformed, unsigned by secret,
// expired, or not issued by this service.
func ValidateAdminToken(tokenString, secret string) error {
	if tokenString == "" {
		return errors.New("token is empty")
	}
	claims := &adminClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return fmt.Errorf("admin token validation failed: %w", err)
	}
	if claims.Issuer != adminTokenIssuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or "" if absent/malformed.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
