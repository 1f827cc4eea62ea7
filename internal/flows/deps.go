package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
)

// ErrPersist marks failures to write the token pair.
var ErrPersist = errors.New("persist token pair")

// Deps groups flow dependency sets. The Client builds this once and delegates
// session methods to the matching flow.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// TokenStore is the subset of tokenstore.Store the flows use.
type TokenStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	SetMany(ctx context.Context, entries map[string]string) error
	Remove(ctx context.Context, name string) error
	ClearAll(ctx context.Context) error
}

// StorePair writes the access token and, when present, the refresh token in one
// operation. An empty RefreshToken keeps the stored one.
func StorePair(ctx context.Context, store TokenStore, pair refresh.TokenPair) error {
	entries := map[string]string{tokenstore.AccessTokenKey: pair.AccessToken}
	if pair.RefreshToken != "" {
		entries[tokenstore.RefreshTokenKey] = pair.RefreshToken
	}
	if err := store.SetMany(ctx, entries); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
