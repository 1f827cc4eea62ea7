package goSession

import (
	"context"
	"time"
)

// Navigator moves the user to the login view after the session ends.
type Navigator interface {
	ToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

func (f NavigatorFunc) ToLogin(ctx context.Context) { f(ctx) }

type noopNavigator struct{}

func (noopNavigator) ToLogin(context.Context) {}

// SignupRequest registers a user. Phone is reduced to digits and Role defaults
// to RoleUser before sending.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// Roles accepted by the API.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// TransferRequest moves funds between two accounts immediately.
type TransferRequest struct {
	FromBankID        int64  `json:"fromBankId"`
	ToBankID          int64  `json:"toBankId"`
	FromAccountNumber string `json:"fromAccountNumber"`
	ToAccountNumber   string `json:"toAccountNumber"`
	Amount            int64  `json:"amount"`
	// Password is the account PIN. It is sent but never fingerprinted.
	Password string `json:"password"`
}

// ScheduledTransferRequest registers a transfer for later execution.
type ScheduledTransferRequest struct {
	FromAccountNumber string    `json:"fromAccountNumber"`
	ToAccountNumber   string    `json:"toAccountNumber"`
	ToBankID          int64     `json:"toBankId"`
	Amount            int64     `json:"amount"`
	ScheduledAt       LocalTime `json:"scheduledAt"`
	Password          string    `json:"password"`
}

// AccountRequest opens an account.
type AccountRequest struct {
	BankID      int64  `json:"bankId"`
	AccountType string `json:"accountType"`
	Balance     int64  `json:"balance"`
	Password    string `json:"password"`
}

// Submission describes the idempotency key a mutation was sent with.
type Submission struct {
	IdempotencyKey string
	// Reused is true when the key came from an earlier attempt.
	Reused bool
}

// TransferResult is the API's transfer acknowledgement.
type TransferResult struct {
	Message    string `json:"message"`
	Submission `json:"-"`
}

// ScheduledTransferReceipt is the API's answer to a scheduled transfer.
type ScheduledTransferReceipt struct {
	ScheduledTransferID int64     `json:"scheduledTransferId"`
	Message             string    `json:"message"`
	Amount              int64     `json:"amount"`
	ScheduledAt         LocalTime `json:"scheduledAt"`
	Status              string    `json:"status"`
	Submission          `json:"-"`
}

// CreatedAccount is the account returned by CreateAccount.
type CreatedAccount struct {
	Account
	Submission `json:"-"`
}

// Account is one of the user's accounts.
type Account struct {
	ID            int64  `json:"id"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	Balance       int64  `json:"balance"`
	BankID        int64  `json:"bankId"`
}

// Bank is a bank known to the API.
type Bank struct {
	ID       int64  `json:"id"`
	Code     string `json:"code,omitempty"`
	BankName string `json:"bankName"`
}

// ScheduledTransfer is one of the user's scheduled transfers.
type ScheduledTransfer struct {
	ID                int64     `json:"id"`
	FromAccountNumber string    `json:"fromAccountNumber"`
	ToAccountNumber   string    `json:"toAccountNumber"`
	Amount            int64     `json:"amount"`
	ScheduledAt       LocalTime `json:"scheduledAt"`
	Status            string    `json:"status"`
}

// PendingOperation is a mutation whose key is still retained because its
// outcome was never settled.
type PendingOperation struct {
	Scope          string
	Fingerprint    string
	IdempotencyKey string
}

// SessionInfo summarizes the stored session.
type SessionInfo struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
	Remaining time.Duration
	// HasRefreshToken reports whether a refresh is possible.
	HasRefreshToken bool
}
