package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// TokenAuthority issues and verifies the bearer tokens the api hands out
// at login. Claims carry the user id and role so every request can build
// its session context without a user lookup.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenAuthority(secret string, ttl time.Duration) *TokenAuthority {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenAuthority{secret: []byte(secret), ttl: ttl}
}

type identity struct {
	UserID   string
	Username string
	Role     domain.UserRole
}

func (a *TokenAuthority) Issue(user *domain.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(a.ttl)
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      expiresAt.Unix(),
		"iat":      time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

func (a *TokenAuthority) Verify(tokenString string) (identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return identity{}, domain.WrapError(domain.ErrAuthorizationDenied, "verify token", fmt.Errorf("invalid token"))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}, domain.WrapError(domain.ErrAuthorizationDenied, "verify token", fmt.Errorf("unexpected claims"))
	}

	id := identity{
		UserID:   claimString(claims, "sub"),
		Username: claimString(claims, "username"),
		Role:     domain.UserRole(claimString(claims, "role")),
	}
	if id.UserID == "" || id.Role == "" {
		return identity{}, domain.WrapError(domain.ErrAuthorizationDenied, "verify token", fmt.Errorf("incomplete claims"))
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

type identityContextKey struct{}

func identityFromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(identity)
	return id, ok
}

// authMiddleware rejects requests without a valid bearer token and stows
// the verified identity in the request context.
func (rt *Router) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const bearerPrefix = "Bearer "
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bearer token is required"})
			return
		}

		id, err := rt.auth.Verify(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, id)
		next(w, r.WithContext(ctx))
	}
}
