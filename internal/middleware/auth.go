package middleware

import (
	"context"
	"net/http"
	"strings"

	"fauxto-booth-backend/internal/services"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityMiddleware requires the opaque guest identity token on every
// request. The token is minted by the client and never validated beyond
// presence; it only has to be stable per device.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := r.Header.Get("X-Identity-Token")
		if identity == "" {
			if cookie, err := r.Cookie("identity_token"); err == nil {
				identity = cookie.Value
			}
		}
		if identity == "" {
			respondError(w, "Identity token required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the guest identity from context
func GetIdentity(ctx context.Context) string {
	identity, ok := ctx.Value(identityKey).(string)
	if !ok {
		return ""
	}
	return identity
}

// AdminAuthMiddleware creates a middleware guarding the admin surface
func AdminAuthMiddleware(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			if err := authService.ValidateAdminToken(parts[1]); err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
