package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/goSession/idempotency"
	"github.com/MrEthical07/goSession/middleware"
)

// API paths of the idempotent mutations.
const (
	TransferPath          = "/accounts/transfer"
	ScheduledTransferPath = "/scheduled-transfers"
	AccountsPath          = "/accounts"
)

// Transfer moves funds now. Resubmitting the same transfer (same banks,
// accounts and amount) after an ambiguous failure reuses the earlier
// Idempotency-Key, so the server can apply it at most once.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := validateTransfer(req.FromAccountNumber, req.ToAccountNumber, req.Amount, req.Password); err != nil {
		return nil, err
	}
	fields := idempotency.Fields{
		"fromBankId":        req.FromBankID,
		"toBankId":          req.ToBankID,
		"fromAccountNumber": req.FromAccountNumber,
		"toAccountNumber":   req.ToAccountNumber,
		"amount":            req.Amount,
	}

	var out TransferResult
	var message string
	sub, err := c.submit(ctx, c.transfers, idempotency.TransferSchema, TransferPath, fields, req, &message)
	if err != nil {
		return nil, err
	}
	out.Message = extractMessage(message)
	out.Submission = sub
	return &out, nil
}

// CreateScheduledTransfer registers a transfer for ScheduledAt. It shares the
// transfer key scope; the fingerprint has a null fromBankId because the request
// carries none.
func (c *Client) CreateScheduledTransfer(ctx context.Context, req ScheduledTransferRequest) (*ScheduledTransferReceipt, error) {
	if err := validateTransfer(req.FromAccountNumber, req.ToAccountNumber, req.Amount, req.Password); err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduledAt is required", ErrInvalidRequest)
	}
	fields := idempotency.Fields{
		"toBankId":          req.ToBankID,
		"fromAccountNumber": req.FromAccountNumber,
		"toAccountNumber":   req.ToAccountNumber,
		"amount":            req.Amount,
	}

	var out ScheduledTransferReceipt
	sub, err := c.submit(ctx, c.transfers, idempotency.TransferSchema, ScheduledTransferPath, fields, req, &out)
	if err != nil {
		return nil, err
	}
	out.Submission = sub
	return &out, nil
}

// CreateAccount opens an account. Keys live in the account scope, fingerprinted
// by bank, type and opening balance.
func (c *Client) CreateAccount(ctx context.Context, req AccountRequest) (*CreatedAccount, error) {
	if req.BankID <= 0 || strings.TrimSpace(req.AccountType) == "" {
		return nil, fmt.Errorf("%w: bankId and accountType are required", ErrInvalidRequest)
	}
	if req.Balance < 0 {
		return nil, fmt.Errorf("%w: balance must be >= 0", ErrInvalidRequest)
	}
	if !isPIN(req.Password) {
		return nil, fmt.Errorf("%w: password must be 4 digits", ErrInvalidRequest)
	}
	fields := idempotency.Fields{
		"bankId":      req.BankID,
		"accountType": req.AccountType,
		"balance":     req.Balance,
	}

	var out CreatedAccount
	sub, err := c.submit(ctx, c.accounts, idempotency.AccountSchema, AccountsPath, fields, req, &out)
	if err != nil {
		return nil, err
	}
	out.Submission = sub
	return &out, nil
}

func validateTransfer(from, to string, amount int64, password string) error {
	switch {
	case strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "":
		return fmt.Errorf("%w: both account numbers are required", ErrInvalidRequest)
	case amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidRequest)
	}
	return nil
}

func isPIN(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil && !strings.ContainsAny(s, "+-")
}

// submit sends one idempotent mutation and settles its key: a 2xx or terminal
// status clears it, anything else (no response, 5xx, 429, forced logout)
// retains it for the next attempt.
func (c *Client) submit(ctx context.Context, mgr *idempotency.Manager, schema idempotency.Schema, path string, fields idempotency.Fields, body, out any) (Submission, error) {
	userID := c.session.UserID(ctx)
	fp := schema.Fingerprint(fields)

	key, err := mgr.GetOrCreateKey(ctx, userID, fp)
	if err != nil {
		return Submission{}, fmt.Errorf("idempotency key: %w", err)
	}
	if key.Reused {
		c.metricInc(MetricIdempotencyKeyReused)
	} else {
		c.metricInc(MetricIdempotencyKeyIssued)
	}
	sub := Submission{IdempotencyKey: key.Value, Reused: key.Reused}

	err = c.call(middleware.WithIdempotencyKey(ctx, key.Value), http.MethodPost, path, nil, body, out)
	c.settle(ctx, mgr, key, path, userID, err)
	return sub, err
}

func (c *Client) settle(ctx context.Context, mgr *idempotency.Manager, key idempotency.Key, path, userID string, err error) {
	status := StatusCode(err)
	meta := map[string]string{"scope": mgr.Scope()}
	// Settling must finish even if the caller's ctx is gone.
	bg := context.WithoutCancel(ctx)

	if !c.definite(err) {
		c.metricInc(MetricIdempotencyKeyRetained)
		c.emitAudit(bg, AuditEvent{
			EventType:  AuditIdempotencyKeyRetained,
			UserID:     userID,
			Path:       path,
			StatusCode: status,
			Success:    true,
			Error:      errString(err),
			Metadata:   meta,
		})
		c.logger.WarnContext(bg, "outcome unknown, idempotency key retained",
			slog.String("path", path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		return
	}

	clearErr := mgr.ClearKey(bg, key.StorageKey)
	if clearErr != nil {
		c.logger.WarnContext(bg, "clearing idempotency key failed", slog.String("path", path), slog.Any("error", clearErr))
	} else {
		c.metricInc(MetricIdempotencyKeyCleared)
	}
	c.emitAudit(bg, AuditEvent{
		EventType:  AuditIdempotencyKeyCleared,
		UserID:     userID,
		Path:       path,
		StatusCode: status,
		Success:    clearErr == nil,
		Error:      errString(clearErr),
		Metadata:   meta,
	})
}

// definite reports whether the server gave an answer that makes retrying with
// the same key pointless.
func (c *Client) definite(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrSessionTerminated) {
		return false
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	_, ok := c.terminal[se.StatusCode]
	return ok
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// extractMessage reads {"message": ...} bodies and passes plain text through.
func extractMessage(body string) string {
	var dto struct {
		Message string `json:"message"`
	}
	if decodeBody([]byte(body), &dto) == nil && dto.Message != "" {
		return dto.Message
	}
	return body
}
