package refresh

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// ExchangeFunc performs one refresh exchange.
type ExchangeFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Coalescer shares one in-flight exchange between callers presenting the same
// refresh token.
type Coalescer struct {
	group singleflight.Group
	fn    ExchangeFunc
}

// NewCoalescer wraps fn.
func NewCoalescer(fn ExchangeFunc) *Coalescer {
	return &Coalescer{fn: fn}
}

// Do runs or joins the exchange for refreshToken. shared reports whether the
// result was delivered to more than one caller. The exchange itself is detached
// from ctx so that one caller giving up does not fail the others.
func (c *Coalescer) Do(ctx context.Context, refreshToken string) (pair TokenPair, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshToken, func() (any, error) {
		return c.fn(detached, refreshToken)
	})

	select {
	case <-ctx.Done():
		return TokenPair{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Shared, res.Err
		}
		return res.Val.(TokenPair), res.Shared, nil
	}
}
