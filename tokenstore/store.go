package tokenstore

import (
	"context"
	"errors"
	"sort"
	"strings"
)

const (
	// AccessTokenKey is the store name of the current access token.
	AccessTokenKey = "jwtToken"
	// RefreshTokenKey is the store name of the current refresh token.
	RefreshTokenKey = "refreshToken"
)

// ErrUnavailable wraps backend failures (disk, network) so callers can tell them
// apart from a missing entry.
var ErrUnavailable = errors.New("token store unavailable")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("token store closed")

// Store is durable string key/value storage.
//
// A missing entry is reported as ok=false with a nil error. Removing an absent name
// is not an error.
type Store interface {
	Get(ctx context.Context, name string) (value string, ok bool, err error)
	Set(ctx context.Context, name, value string) error
	// SetMany writes all entries in one atomic operation.
	SetMany(ctx context.Context, entries map[string]string) error
	Remove(ctx context.Context, name string) error
	// ClearAll removes every entry in the store's namespace.
	ClearAll(ctx context.Context) error
	// List returns the names starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// RemoveMany deletes names one by one, stopping at the first failure.
func RemoveMany(ctx context.Context, s Store, names ...string) error {
	for _, name := range names {
		if err := s.Remove(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func sortedWithPrefix(names []string, prefix string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
