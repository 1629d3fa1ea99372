package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the two directions money can move.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Status is the transaction lifecycle state. Pending is the only non-terminal
// state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// User is a transport-identified participant. The id is assigned by the chat
// transport and is stable; handle and bank details are optional.
type User struct {
	ID            int64
	Handle        string
	Balance       decimal.Decimal
	BankName      string
	AccountNumber string
}

// HasBankDetails reports whether both fields required before a user may
// transact have been set.
func (u User) HasBankDetails() bool {
	return u.BankName != "" && u.AccountNumber != ""
}

// Transaction is a deposit or withdrawal request. Amount is null for deposits
// until the approver resolves them.
type Transaction struct {
	ID        int64
	UserID    int64
	Kind      Kind
	Amount    decimal.NullDecimal
	Status    Status
	Reason    string
	CreatedAt time.Time
}

// TransactionDetail joins a transaction with the owner's profile fields, for
// rendering listings.
type TransactionDetail struct {
	Transaction
	Handle        string
	BankName      string
	AccountNumber string
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	UserID int64
	Status Status
	Limit  int
}

// Outcome describes how a pending transaction is resolved. Approved outcomes
// carry the final amount (the approver supplies it for deposits); rejected
// outcomes carry a reason and never touch balance.
type Outcome struct {
	Status Status
	Amount decimal.Decimal
	Reason string
}

// ApproveOutcome resolves a transaction as approved with the given amount.
func ApproveOutcome(amount decimal.Decimal) Outcome {
	return Outcome{Status: StatusApproved, Amount: amount}
}

// RejectOutcome resolves a transaction as rejected with the given reason.
func RejectOutcome(reason string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

// DashboardStats aggregates the approver dashboard counters. The user and
// transaction aggregates come from separate queries and are not guaranteed to
// be point-in-time consistent with each other.
type DashboardStats struct {
	TotalUsers           int64
	UsersWithBankDetails int64
	TotalBalance         decimal.Decimal
	ApprovedDeposits     int64
	ApprovedWithdrawals  int64
	PendingTransactions  int64
}
