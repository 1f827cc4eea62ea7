package jwt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token is empty or does not have three segments.
	ErrMalformed = errors.New("token is malformed")
	// ErrPayloadEncoding is returned when the payload segment is not base64url.
	ErrPayloadEncoding = errors.New("token payload is not base64url")
	// ErrPayloadJSON is returned when the decoded payload is not a claims object.
	ErrPayloadJSON = errors.New("token payload is not a claims object")
)

// Claims is the payload shape issued by the bank API: the subject is the user's
// email and role carries the account role.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

var segmentDecoder = jwt.NewParser(jwt.WithPaddingAllowed())

// Parse decodes the claims of a compact JWT without verifying it. The header and
// signature segments are not inspected, so "abc.eyJleHAiOjB9.sig" yields exp=0.
//
// Parse never panics; every malformed input is reported as an error.
func Parse(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	payload, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return nil, ErrPayloadEncoding
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrPayloadJSON
	}
	return &claims, nil
}

// Expiry reports the exp claim. ok is false when the token carries none.
func (c *Claims) Expiry() (t time.Time, ok bool) {
	if c == nil || c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.RegisteredClaims.ExpiresAt.Time, true
}

// Remaining returns the time left until exp, clamped at zero. Tokens without exp
// have no time left.
func (c *Claims) Remaining(now time.Time) time.Duration {
	exp, ok := c.Expiry()
	if !ok {
		return 0
	}
	d := exp.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the token has no time left at now.
func (c *Claims) Expired(now time.Time) bool {
	return c.Remaining(now) <= 0
}
