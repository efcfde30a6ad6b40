package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/signalix/reverseotp/internal/auth"
)

type contextKey string

const claimsKey contextKey = "credential_claims"

// CredentialVerifier validates bearer credentials issued after a reverse OTP verification
type CredentialVerifier interface {
	Verify(token string) (*auth.CredentialClaims, error)
}

// CredentialAuth validates the bearer credential and attaches its claims to the context
func CredentialAuth(verifier CredentialVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the credential claims attached by CredentialAuth
func GetClaims(ctx context.Context) (*auth.CredentialClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.CredentialClaims)
	return c, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
