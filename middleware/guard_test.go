package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/goSession/jwt"
)

func TestGuardInjectsClaims(t *testing.T) {
	verify := func(_ context.Context, token string) (*jwt.Claims, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		c := &jwt.Claims{Role: "USER"}
		c.Subject = "alice@example.com"
		return c, nil
	}

	var seen string
	h := Guard(verify, http.StatusForbidden)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		seen = c.Subject
	}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusForbidden},
		{"Basic abc", http.StatusForbidden},
		{"Bearer ", http.StatusForbidden},
		{"Bearer bad", http.StatusForbidden},
		{"Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/accounts/my", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("header %q: expected %d, got %d", tc.header, tc.want, rec.Code)
		}
	}
	if seen != "alice@example.com" {
		t.Fatalf("expected subject to reach handler, got %q", seen)
	}
}

func TestGuardDefaultsToUnauthorized(t *testing.T) {
	h := Guard(nil, 0)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
