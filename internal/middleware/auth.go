package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
)

type contextKey string

const principalKey contextKey = "principal"

// Authenticator verifies a bearer token.
type Authenticator interface {
	Authenticate(token string) (models.Principal, error)
}

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by AuthMiddleware.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// AuthMiddleware checks the bearer token and stores the caller in the request context
func AuthMiddleware(auth Authenticator, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, http.StatusUnauthorized, "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteError(w, r, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			p, err := auth.Authenticate(parts[1])
			if err != nil {
				log.WithError(err).Warn("JWT validation failed")
				WriteError(w, r, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole lets through only callers holding role. It must run after AuthMiddleware.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				WriteError(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			if p.Role != role {
				WriteError(w, r, http.StatusForbidden, models.ErrForbidden.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
