package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"marketplace-service/internal/catalog"
)

var ErrInvalidToken = errors.New("invalid token")

type contextKey string

const claimsKey contextKey = "claims"

// Claims are the JWT claims the service reads. Subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HMAC-signed bearer tokens issued by the identity
// service.
type Authenticator struct {
	secret    []byte
	adminRole string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(secret, adminRole string) *Authenticator {
	return &Authenticator{secret: []byte(secret), adminRole: adminRole}
}

// ParseToken validates tokenString and returns its claims.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			respondWithError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		claims, err := a.ParseToken(tokenString)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after Middleware.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok || claims.Role != a.adminRole {
			respondWithError(w, http.StatusForbidden, "Insufficient privileges")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor derives the product writer from the verified claims.
func (a *Authenticator) actor(ctx context.Context) (catalog.Actor, bool) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return catalog.Actor{}, false
	}
	return catalog.Actor{UserID: claims.Subject, Admin: claims.Role == a.adminRole}, true
}

func claimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

func extractToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 7 && strings.ToUpper(bearer[0:7]) == "BEARER " {
		return strings.TrimSpace(bearer[7:])
	}
	return ""
}
