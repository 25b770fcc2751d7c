package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/marketplace/internal/identity"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts the bearer token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const principalContextKey contextKey = "principal"

// resolvePrincipal tries the bearer token first, then the X-API-Key header
// for headless collaborators (relay workers, ops tooling)
func resolvePrincipal(r *http.Request, tokens *identity.TokenResolver, keys *identity.APIKeyResolver) (identity.Principal, bool) {
	if tokenString := ExtractToken(r); tokenString != "" {
		principal, err := tokens.Resolve(tokenString)
		return principal, err == nil
	}
	if key := r.Header.Get("X-API-Key"); key != "" && keys != nil {
		principal, err := keys.Resolve(key)
		return principal, err == nil
	}
	return identity.Principal{}, false
}

// Auth validates credentials and puts the resolved principal on the
// request context. Requests without a valid token or API key are rejected.
func Auth(tokens *identity.TokenResolver, keys *identity.APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := resolvePrincipal(r, tokens, keys)
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves a principal if credentials are present but lets
// anonymous requests through with the zero principal.
func OptionalAuth(tokens *identity.TokenResolver, keys *identity.APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, ok := resolvePrincipal(r, tokens, keys); ok {
				ctx := context.WithValue(r.Context(), principalContextKey, principal)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects principals lacking the given permission
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := r.Context().Value(principalContextKey).(identity.Principal)
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !principal.Has(permission) {
				respondError(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal retrieves the resolved principal from the request context.
// The zero principal is returned for anonymous requests.
func GetPrincipal(ctx context.Context) identity.Principal {
	principal, _ := ctx.Value(principalContextKey).(identity.Principal)
	return principal
}
