package flows

import (
	"context"

	"github.com/MrEthical07/goSession/tokenstore"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store TokenStore
	// Revoke notifies the server. Nil skips the call.
	Revoke func(ctx context.Context, accessToken string) error
	// PurgeAll clears the whole store instead of only the token pair.
	PurgeAll bool
	Navigate func(ctx context.Context)
	Warn     func(msg string, args ...any)
}

// LogoutResult reports what the logout flow did.
type LogoutResult struct {
	Revoked   bool
	RevokeErr error
	Err       error
}

// RunLogout tells the server (best effort), removes the local session and
// navigates to login. Navigation happens even when local cleanup fails.
func RunLogout(ctx context.Context, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	if deps.Revoke != nil {
		access, ok, err := deps.Store.Get(ctx, tokenstore.AccessTokenKey)
		switch {
		case err != nil:
			res.RevokeErr = err
		case ok && access != "":
			res.RevokeErr = deps.Revoke(ctx, access)
			res.Revoked = res.RevokeErr == nil
		}
		if res.RevokeErr != nil && deps.Warn != nil {
			deps.Warn("server logout failed", "error", res.RevokeErr)
		}
	}

	if deps.PurgeAll {
		res.Err = deps.Store.ClearAll(ctx)
	} else {
		for _, name := range []string{tokenstore.AccessTokenKey, tokenstore.RefreshTokenKey} {
			if err := deps.Store.Remove(ctx, name); err != nil && res.Err == nil {
				res.Err = err
			}
		}
	}

	if deps.Navigate != nil {
		deps.Navigate(ctx)
	}
	return res
}
