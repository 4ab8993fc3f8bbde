package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims carried by access tokens. Tokens are issued by the identity service.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTAuth validates the bearer token, loads the active user it names and
// stores the principal in the request context.
func JWTAuth(secret []byte, users identity.UserRepository, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Access denied. No token provided.")
				return
			}

			claims, err := ParseToken(secret, raw)
			if err != nil {
				log.Debug("rejected token", zap.Error(err))
				WriteError(w, http.StatusUnauthorized, "Invalid token.")
				return
			}

			user, err := users.Get(r.Context(), claims.UserID)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				WriteError(w, http.StatusUnauthorized, "Invalid token. User not found.")
				return
			case err != nil:
				log.Error("load user for token", zap.String("user_id", claims.UserID), zap.Error(err))
				WriteError(w, http.StatusInternalServerError, "Internal server error")
				return
			case !user.Active:
				WriteError(w, http.StatusUnauthorized, "Account is deactivated.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user.Principal())))
		})
	}
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no userId claim")
	}
	return claims, nil
}

// Support both "Bearer <token>" and "<token>" formats
func bearer(header string) (string, bool) {
	token := strings.TrimSpace(header)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token, token != ""
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated principal.
func PrincipalFrom(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey).(identity.Principal)
	return p, ok
}
