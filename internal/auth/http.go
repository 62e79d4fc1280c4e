// ABOUTME: HTTP middleware for JWT authentication on admin endpoints
// ABOUTME: Extracts the bearer token, loads the account and adds it to the request context

package auth

import (
	"net/http"
	"strings"

	"github.com/2389/support-gateway/internal/store"
)

// ExtractBearerToken pulls a token from an Authorization header. The second
// return value is an error message, empty on success.
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware rejects requests without a valid admin token.
func HTTPAuthMiddleware(accounts store.AccountStore, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			account, err := Authenticate(r, accounts, verifier, token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// Authenticate verifies token and loads its account.
func Authenticate(r *http.Request, accounts store.AccountStore, verifier TokenVerifier, token string) (*store.Account, error) {
	accountID, err := verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return accounts.GetAccount(r.Context(), accountID)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
