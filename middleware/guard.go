package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by Guard.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return c, ok
}

// VerifyFunc validates a bearer token on the server side.
type VerifyFunc func(ctx context.Context, token string) (*jwt.Claims, error)

// Guard rejects requests without a valid bearer token using failureStatus
// (401 when zero).
func Guard(verify VerifyFunc, failureStatus int) func(http.Handler) http.Handler {
	if failureStatus == 0 {
		failureStatus = http.StatusUnauthorized
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verify == nil {
				http.Error(w, "unauthorized", failureStatus)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", failureStatus)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", failureStatus)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
