package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureStoreRead
	RefreshFailureNoToken
	RefreshFailureRejected
	RefreshFailureMalformed
	RefreshFailureTransport
	RefreshFailurePersist
	RefreshFailureCanceled
)

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	AccessToken string
	// Rotated reports whether the server returned a new refresh token.
	Rotated bool
	// Shared reports that the exchange was performed by a concurrent caller.
	Shared bool
	// Reused reports that a newer access token was already stored and no
	// exchange happened.
	Reused     bool
	StatusCode int
}

// RotateFunc exchanges a refresh token and persists the resulting pair.
type RotateFunc func(ctx context.Context, refreshToken string) (pair refresh.TokenPair, shared bool, err error)

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Store  TokenStore
	Rotate RotateFunc
	// ReuseNewerAccess skips the exchange when the stored access token no
	// longer matches the one the failed request carried.
	ReuseNewerAccess bool
}

// RunRefresh obtains a new access token for a request that failed while
// carrying stale.
func RunRefresh(ctx context.Context, stale string, deps RefreshDeps) RefreshResult {
	if deps.ReuseNewerAccess && stale != "" {
		current, ok, err := deps.Store.Get(ctx, tokenstore.AccessTokenKey)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStoreRead, Err: err}
		}
		if ok && current != "" && current != stale {
			return RefreshResult{AccessToken: current, Reused: true}
		}
	}

	refreshToken, ok, err := deps.Store.Get(ctx, tokenstore.RefreshTokenKey)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStoreRead, Err: err}
	}
	if !ok || refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoToken, Err: refresh.ErrNoRefreshToken}
	}

	pair, shared, err := deps.Rotate(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: classifyRefreshError(ctx, err), Err: err, Shared: shared, StatusCode: rejectedStatus(err)}
	}
	return RefreshResult{
		AccessToken: pair.AccessToken,
		Rotated:     pair.RefreshToken != "" && pair.RefreshToken != refreshToken,
		Shared:      shared,
	}
}

// NewRotateFunc builds the exchange-and-store step. With coalesce set, concurrent
// calls for the same refresh token share one exchange and one write.
func NewRotateFunc(ex *refresh.Exchanger, store TokenStore, coalesce bool) RotateFunc {
	base := func(ctx context.Context, refreshToken string) (refresh.TokenPair, error) {
		pair, err := ex.Exchange(ctx, refreshToken)
		if err != nil {
			return refresh.TokenPair{}, err
		}
		if err := StorePair(ctx, store, pair); err != nil {
			return refresh.TokenPair{}, err
		}
		return pair, nil
	}
	if !coalesce {
		return func(ctx context.Context, refreshToken string) (refresh.TokenPair, bool, error) {
			pair, err := base(ctx, refreshToken)
			return pair, false, err
		}
	}
	c := refresh.NewCoalescer(base)
	return c.Do
}

func classifyRefreshError(ctx context.Context, err error) RefreshFailureKind {
	var rejected *refresh.RejectedError
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return RefreshFailureCanceled
	case errors.Is(err, ErrPersist):
		return RefreshFailurePersist
	case errors.As(err, &rejected):
		return RefreshFailureRejected
	case errors.Is(err, refresh.ErrMalformedResponse):
		return RefreshFailureMalformed
	case errors.Is(err, refresh.ErrNoRefreshToken):
		return RefreshFailureNoToken
	default:
		return RefreshFailureTransport
	}
}

func rejectedStatus(err error) int {
	var rejected *refresh.RejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode
	}
	return 0
}

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureStoreRead:
		return "store_read"
	case RefreshFailureNoToken:
		return "no_refresh_token"
	case RefreshFailureRejected:
		return "rejected"
	case RefreshFailureMalformed:
		return "malformed_response"
	case RefreshFailureTransport:
		return "transport"
	case RefreshFailurePersist:
		return "persist"
	case RefreshFailureCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}
