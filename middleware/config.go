package middleware

import (
	"net/http"
	"strings"
)

// PathMatcher decides whether a request path is excluded from token handling.
type PathMatcher interface {
	Match(path string) bool
}

// Contains matches paths containing the string anywhere.
type Contains string

func (c Contains) Match(path string) bool { return strings.Contains(path, string(c)) }

// Exact matches one path.
type Exact string

func (e Exact) Match(path string) bool { return path == string(e) }

// Prefix matches paths starting with the string.
type Prefix string

func (p Prefix) Match(path string) bool { return strings.HasPrefix(path, string(p)) }

// Config is the immutable pipeline configuration built at client construction.
type Config struct {
	// ExcludedPaths never carry the access token and never trigger a refresh.
	ExcludedPaths []PathMatcher
	// AuthFailureStatusCodes trigger the refresh-and-replay path.
	AuthFailureStatusCodes map[int]struct{}
}

// DefaultConfig excludes the auth endpoints and treats 401 and 403 as auth failures.
func DefaultConfig() Config {
	return Config{
		ExcludedPaths: []PathMatcher{
			Contains("/auth/login"),
			Contains("/auth/signup"),
			Contains("/auth/check-email"),
			Contains("/auth/refresh"),
		},
		AuthFailureStatusCodes: StatusSet(http.StatusUnauthorized, http.StatusForbidden),
	}
}

// StatusSet builds a status-code set.
func StatusSet(codes ...int) map[int]struct{} {
	out := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		out[c] = struct{}{}
	}
	return out
}

// Excluded reports whether path matches any excluded matcher.
func (c Config) Excluded(path string) bool {
	for _, m := range c.ExcludedPaths {
		if m != nil && m.Match(path) {
			return true
		}
	}
	return false
}

// IsAuthFailure reports whether code triggers a refresh.
func (c Config) IsAuthFailure(code int) bool {
	_, ok := c.AuthFailureStatusCodes[code]
	return ok
}
