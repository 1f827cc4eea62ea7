package goSession

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/MrEthical07/goSession/idempotency"
)

// ListAccounts returns the caller's accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	if err := c.call(ctx, http.MethodGet, "/accounts/my", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBanks returns every bank the API knows.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	var out []Bank
	if err := c.call(ctx, http.MethodGet, "/banks", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListScheduledTransfers returns the caller's scheduled transfers.
func (c *Client) ListScheduledTransfers(ctx context.Context) ([]ScheduledTransfer, error) {
	var out []ScheduledTransfer
	if err := c.call(ctx, http.MethodGet, "/scheduled-transfers/my", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PendingOperations lists the current user's retained idempotency keys across
// both scopes. Each entry is a mutation whose outcome is unknown; resubmitting
// the same mutation reuses its key.
func (c *Client) PendingOperations(ctx context.Context) ([]PendingOperation, error) {
	userID := c.session.UserID(ctx)
	var out []PendingOperation
	for _, mgr := range []*idempotency.Manager{c.transfers, c.accounts} {
		records, err := mgr.Pending(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("pending %s keys: %w", mgr.Scope(), err)
		}
		for _, r := range records {
			out = append(out, PendingOperation{
				Scope:          mgr.Scope(),
				Fingerprint:    r.Fingerprint,
				IdempotencyKey: r.Value,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

// SessionInfo summarizes the stored session. It fails with ErrNoSession when
// nobody is logged in.
func (c *Client) SessionInfo(ctx context.Context) (SessionInfo, error) {
	return c.session.Info(ctx)
}
