package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
)

// LoginFailureKind classifies login flow failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRequest
	LoginFailureMalformed
	LoginFailurePersist
)

// LoginResult is the flow-local login outcome.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	AccessToken string
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Store TokenStore
	// Authenticate performs the credential exchange and decodes the token pair.
	Authenticate func(ctx context.Context, email, password string) (refresh.TokenPair, error)
}

// RunLogin exchanges credentials for a token pair and stores it. A response
// without a refresh token drops any refresh token left by an earlier session.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	pair, err := deps.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, refresh.ErrMalformedResponse) {
			return LoginResult{Failure: LoginFailureMalformed, Err: err}
		}
		return LoginResult{Failure: LoginFailureRequest, Err: err}
	}
	if pair.AccessToken == "" {
		return LoginResult{Failure: LoginFailureMalformed, Err: refresh.ErrMalformedResponse}
	}

	if err := StorePair(ctx, deps.Store, pair); err != nil {
		return LoginResult{Failure: LoginFailurePersist, Err: err}
	}
	if pair.RefreshToken == "" {
		if err := deps.Store.Remove(ctx, tokenstore.RefreshTokenKey); err != nil {
			return LoginResult{Failure: LoginFailurePersist, Err: err}
		}
	}
	return LoginResult{AccessToken: pair.AccessToken}
}
