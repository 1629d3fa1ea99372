// Package engine implements the transaction lifecycle: the pending to
// approved/rejected state machine, its balance invariants, and the party
// notifications each transition produces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paymebot/payrelay/internal/correlate"
	"github.com/paymebot/payrelay/internal/domain"
	"github.com/paymebot/payrelay/internal/store"
	"github.com/paymebot/payrelay/internal/transport"
)

// DepositImageKey is the config entry holding the deposit instruction image.
const DepositImageKey = "deposit_image_url"

// Ledger is the durable state the engine mutates. All balance and status
// changes go through ResolveTransaction; the engine never caches balances.
type Ledger interface {
	EnsureUser(ctx context.Context, id int64, handle string) error
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetBalance(ctx context.Context, id int64) (decimal.Decimal, error)
	SetBankName(ctx context.Context, id int64, name string) error
	SetAccountNumber(ctx context.Context, id int64, number string) error
	CreateTransaction(ctx context.Context, userID int64, kind domain.Kind, amount decimal.NullDecimal) (int64, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionDetail, error)
	ResolveTransaction(ctx context.Context, id int64, outcome domain.Outcome) (domain.Transaction, error)
	ConfigValue(ctx context.Context, key string) (string, error)
	SetConfigValue(ctx context.Context, key, value string) error
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
}

type Engine struct {
	ledger     Ledger
	sender     transport.Sender
	approverID int64
	log        *zap.Logger
}

// New builds an engine. approverID is the single trusted principal allowed to
// resolve transactions and manage global configuration.
func New(ledger Ledger, sender transport.Sender, approverID int64, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{ledger: ledger, sender: sender, approverID: approverID, log: log}
}

// IsApprover reports whether id is the configured approver identity.
func (e *Engine) IsApprover(id int64) bool {
	return id == e.approverID
}

// EnsureUser registers the sender if unseen. Store failures are mirrored to
// the approver so silent registration loss is visible.
func (e *Engine) EnsureUser(ctx context.Context, id int64, handle string) error {
	if err := e.ledger.EnsureUser(ctx, id, handle); err != nil {
		e.log.Error("ensure user", zap.Int64("user_id", id), zap.Error(err))
		e.send(ctx, e.approverID, fmt.Sprintf("Error registering user %d: %v", id, err))
		return err
	}
	return nil
}

// Start registers the user and sends the welcome message.
func (e *Engine) Start(ctx context.Context, ev transport.Event) error {
	if err := e.EnsureUser(ctx, ev.SenderID, ev.Handle); err != nil {
		return err
	}
	name := ev.FirstName
	if name == "" {
		name = ev.DisplayName()
	}
	e.send(ctx, ev.SenderID, fmt.Sprintf(
		"Hello %s!\nWelcome to PayMe.\n"+
			"Please set your bank details using /bank and /account before making transactions.\n"+
			"Use /help to see available commands.", name))
	return nil
}

// Help sends the command list; the approver also sees the approver-only set.
func (e *Engine) Help(ctx context.Context, callerID int64) error {
	e.send(ctx, callerID, helpText(e.IsApprover(callerID)))
	return nil
}

// Balance reports the caller's current balance.
func (e *Engine) Balance(ctx context.Context, userID int64) error {
	balance, err := e.ledger.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			balance = decimal.Zero
		} else {
			return e.storeFailure(ctx, userID, "fetching balance", err)
		}
	}
	e.send(ctx, userID, fmt.Sprintf("Your current balance is: Rs. %s", balance.String()))
	return nil
}

// Profile reports the caller's registered details.
func (e *Engine) Profile(ctx context.Context, userID int64) error {
	u, err := e.ledger.GetUser(ctx, userID)
	if err != nil {
		return e.storeFailure(ctx, userID, "fetching profile", err)
	}
	e.send(ctx, userID, formatProfile(u))
	return nil
}

// SetBank updates the caller's bank name.
func (e *Engine) SetBank(ctx context.Context, userID int64, name string) error {
	if name == "" || len(name) > 100 {
		err := validationf("Please provide a valid bank name (1-100 characters).")
		e.send(ctx, userID, err.Error())
		return err
	}
	if err := e.ledger.SetBankName(ctx, userID, name); err != nil {
		return e.storeFailure(ctx, userID, "setting bank name", err)
	}
	e.send(ctx, userID, fmt.Sprintf("Bank name set to: %s", name))
	return nil
}

var accountNumberPattern = regexp.MustCompile(`^\d{8,20}$`)

// SetAccount updates the caller's account number.
func (e *Engine) SetAccount(ctx context.Context, userID int64, number string) error {
	if !accountNumberPattern.MatchString(number) {
		err := validationf("Please provide a valid account number (8-20 digits).")
		e.send(ctx, userID, err.Error())
		return err
	}
	if err := e.ledger.SetAccountNumber(ctx, userID, number); err != nil {
		return e.storeFailure(ctx, userID, "setting account number", err)
	}
	e.send(ctx, userID, fmt.Sprintf("Account number set to: %s", number))
	return nil
}

// Transactions sends the caller their ten most recent transactions.
func (e *Engine) Transactions(ctx context.Context, userID int64) error {
	list, err := e.ledger.ListTransactions(ctx, domain.TransactionFilter{UserID: userID, Limit: 10})
	if err != nil {
		return e.storeFailure(ctx, userID, "fetching transactions", err)
	}
	e.send(ctx, userID, formatTransactions(list, false))
	return nil
}

// RequestDeposit checks preconditions and sends the deposit instruction image
// the user will attach evidence against.
func (e *Engine) RequestDeposit(ctx context.Context, userID int64) error {
	u, err := e.ledger.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return e.storeFailure(ctx, userID, "fetching user", err)
	}
	if !u.HasBankDetails() {
		verr := bankDetailsRequired()
		e.send(ctx, userID, verr.Error())
		return verr
	}

	imageURL, err := e.ledger.ConfigValue(ctx, DepositImageKey)
	if errors.Is(err, store.ErrNotFound) {
		verr := validationf("Deposit image not set by admin yet.")
		e.send(ctx, userID, verr.Error())
		return verr
	}
	if err != nil {
		return e.storeFailure(ctx, userID, "fetching deposit instructions", err)
	}

	caption := "Please send your " + correlate.MarkerDepositReceipt + " here as a photo.\n" +
		"You can reply to this message with your screenshot."
	if err := e.sender.SendPhoto(ctx, userID, imageURL, caption); err != nil {
		e.log.Error("send deposit instructions", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// RecordDepositEvidence creates the pending deposit (amount unknown until
// approval) and forwards the evidence to the approver with an embedded
// reference block.
func (e *Engine) RecordDepositEvidence(ctx context.Context, ev transport.Event) error {
	if err := e.EnsureUser(ctx, ev.SenderID, ev.Handle); err != nil {
		return err
	}

	txID, err := e.ledger.CreateTransaction(ctx, ev.SenderID, domain.KindDeposit, decimal.NullDecimal{})
	if err != nil {
		return e.storeFailure(ctx, ev.SenderID, "recording deposit", err)
	}

	u, err := e.ledger.GetUser(ctx, ev.SenderID)
	if err != nil {
		return e.storeFailure(ctx, ev.SenderID, "fetching user", err)
	}

	caption := fmt.Sprintf("%s\nUser: @%s\n%s\nBank: %s\nAccount: %s\n\nReply with:\n/approve {amount} = %d or /reject %d = {reason}",
		correlate.MarkerDepositRequest,
		ev.DisplayName(),
		correlate.Encode(txID, ev.SenderID, decimal.NullDecimal{}, domain.KindDeposit),
		orNotSet(u.BankName), orNotSet(u.AccountNumber),
		txID, txID)
	if err := e.sender.SendPhoto(ctx, e.approverID, ev.PhotoRef, caption); err != nil {
		e.log.Error("forward deposit evidence", zap.Int64("tx_id", txID), zap.Error(err))
		return err
	}

	e.send(ctx, ev.SenderID, fmt.Sprintf("Your receipt has been sent to the admin (ID: %d). Awaiting approval.", txID))
	return nil
}

// RequestWithdraw creates a pending withdrawal with a fixed amount. The
// balance check is advisory: funds are not reserved, and overlapping pending
// withdrawals may together exceed the balance. The approver re-validates at
// resolution time.
func (e *Engine) RequestWithdraw(ctx context.Context, ev transport.Event, amount decimal.Decimal) (int64, error) {
	if err := e.EnsureUser(ctx, ev.SenderID, ev.Handle); err != nil {
		return 0, err
	}

	u, err := e.ledger.GetUser(ctx, ev.SenderID)
	if err != nil {
		return 0, e.storeFailure(ctx, ev.SenderID, "fetching user", err)
	}
	if !u.HasBankDetails() {
		verr := bankDetailsRequired()
		e.send(ctx, ev.SenderID, verr.Error())
		return 0, verr
	}
	if !amount.IsPositive() {
		verr := validationf("Please enter a valid withdrawal amount.")
		e.send(ctx, ev.SenderID, verr.Error())
		return 0, verr
	}
	if u.Balance.LessThan(amount) {
		verr := validationf("Insufficient balance for withdrawal.")
		e.send(ctx, ev.SenderID, verr.Error())
		return 0, verr
	}

	txID, err := e.ledger.CreateTransaction(ctx, ev.SenderID, domain.KindWithdraw,
		decimal.NewNullDecimal(amount))
	if err != nil {
		return 0, e.storeFailure(ctx, ev.SenderID, "creating withdrawal", err)
	}

	e.send(ctx, ev.SenderID, fmt.Sprintf(
		"Withdraw request for Rs. %s submitted (ID: %d). Please wait for admin approval.",
		amount.String(), txID))

	notice := fmt.Sprintf("%s\nUser: @%s\n%s\nBank: %s\nAccount: %s\n\nReply with the payment receipt photo or use /approve %s = %d or /reject %d = {reason}.",
		correlate.MarkerWithdrawRequest,
		ev.DisplayName(),
		correlate.Encode(txID, ev.SenderID, decimal.NewNullDecimal(amount), domain.KindWithdraw),
		orNotSet(u.BankName), orNotSet(u.AccountNumber),
		amount.String(), txID, txID)
	e.send(ctx, e.approverID, notice)
	return txID, nil
}

// Approve resolves a pending transaction as approved with the supplied
// amount. Deposits get their amount here; withdrawals are normally approved
// with the requested amount but the approver's figure wins.
func (e *Engine) Approve(ctx context.Context, callerID int64, amount decimal.Decimal, txID int64) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}
	if !amount.IsPositive() {
		verr := validationf("Please provide a positive amount.")
		e.send(ctx, callerID, verr.Error())
		return verr
	}

	t, err := e.ledger.ResolveTransaction(ctx, txID, domain.ApproveOutcome(amount))
	if err != nil {
		return e.resolveFailure(ctx, txID, err)
	}

	e.send(ctx, t.UserID, fmt.Sprintf("Your %s of Rs. %s (ID: %d) has been approved!", t.Kind, amount.String(), txID))
	e.send(ctx, e.approverID, fmt.Sprintf("%s #%d approved and balance updated.", titleKind(t.Kind), txID))
	return nil
}

// ApproveWithEvidence finalizes a withdrawal from an evidence photo replying
// to the original notification; the decoded reference supplies amount, user
// and transaction. The receipt is attached to the user's notification.
func (e *Engine) ApproveWithEvidence(ctx context.Context, callerID int64, ref correlate.Reference, evidenceRef string) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}
	if !ref.HasAmount {
		return fmt.Errorf("%w: no amount", correlate.ErrMalformed)
	}

	t, err := e.ledger.ResolveTransaction(ctx, ref.TransactionID, domain.ApproveOutcome(ref.Amount))
	if err != nil {
		return e.resolveFailure(ctx, ref.TransactionID, err)
	}

	caption := fmt.Sprintf("Your withdrawal of Rs. %s (ID: %d) has been approved. Receipt attached.",
		ref.Amount.String(), t.ID)
	if err := e.sender.SendPhoto(ctx, t.UserID, evidenceRef, caption); err != nil {
		e.log.Error("send approval receipt", zap.Int64("tx_id", t.ID), zap.Error(err))
	}
	e.send(ctx, e.approverID, fmt.Sprintf("Withdrawal #%d approved and user balance updated.", t.ID))
	return nil
}

// Reject resolves a pending transaction as rejected. Balance is untouched.
func (e *Engine) Reject(ctx context.Context, callerID, txID int64, reason string) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}

	t, err := e.ledger.ResolveTransaction(ctx, txID, domain.RejectOutcome(reason))
	if err != nil {
		return e.resolveFailure(ctx, txID, err)
	}

	e.send(ctx, t.UserID, fmt.Sprintf("Your %s request (ID: %d) was rejected. Reason: %s", t.Kind, txID, reason))
	e.send(ctx, e.approverID, fmt.Sprintf("Transaction #%d rejected with reason: %s", txID, reason))
	return nil
}

// Pending sends the approver all pending transactions.
func (e *Engine) Pending(ctx context.Context, callerID int64) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}
	list, err := e.ledger.ListTransactions(ctx, domain.TransactionFilter{Status: domain.StatusPending})
	if err != nil {
		return e.storeFailure(ctx, callerID, "fetching pending transactions", err)
	}
	e.send(ctx, e.approverID, formatTransactions(list, true))
	return nil
}

// Dashboard sends the approver the aggregate summary.
func (e *Engine) Dashboard(ctx context.Context, callerID int64) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}
	stats, err := e.ledger.DashboardStats(ctx)
	if err != nil {
		return e.storeFailure(ctx, callerID, "generating dashboard", err)
	}
	e.send(ctx, e.approverID, formatDashboard(stats))
	return nil
}

// DashboardSnapshot exposes the aggregates for the ops HTTP surface.
func (e *Engine) DashboardSnapshot(ctx context.Context) (domain.DashboardStats, error) {
	return e.ledger.DashboardStats(ctx)
}

var imageURLPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)$`)

// SetDepositImage updates the deposit instruction image URL.
func (e *Engine) SetDepositImage(ctx context.Context, callerID int64, url string) error {
	if err := e.authorize(ctx, callerID); err != nil {
		return err
	}
	if !imageURLPattern.MatchString(url) {
		verr := validationf("Please provide a direct image URL (ending with .jpg, .png, etc.)")
		e.send(ctx, callerID, verr.Error())
		return verr
	}
	if err := e.ledger.SetConfigValue(ctx, DepositImageKey, url); err != nil {
		return e.storeFailure(ctx, callerID, "updating deposit image", err)
	}
	e.send(ctx, e.approverID, "Deposit image URL has been updated.")
	return nil
}

func (e *Engine) authorize(ctx context.Context, callerID int64) error {
	if e.IsApprover(callerID) {
		return nil
	}
	e.log.Warn("unauthorized approver operation", zap.Int64("caller_id", callerID))
	e.send(ctx, callerID, "Admin only command.")
	return ErrUnauthorized
}

// resolveFailure handles ResolveTransaction errors. NotFound and
// AlreadyResolved are reported to the approver only; the user must not get a
// second notification for an already settled transaction.
func (e *Engine) resolveFailure(ctx context.Context, txID int64, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyResolved) {
		e.send(ctx, e.approverID, fmt.Sprintf("Transaction #%d not found or already processed.", txID))
		return err
	}
	e.log.Error("resolve transaction", zap.Int64("tx_id", txID), zap.Error(err))
	e.send(ctx, e.approverID, fmt.Sprintf("Error resolving transaction #%d.", txID))
	return err
}

// storeFailure reports a persistence error to the initiator and mirrors it to
// the approver. The process never crashes on store errors.
func (e *Engine) storeFailure(ctx context.Context, initiatorID int64, action string, err error) error {
	e.log.Error("store failure", zap.String("action", action), zap.Int64("initiator", initiatorID), zap.Error(err))
	e.send(ctx, initiatorID, fmt.Sprintf("Error %s. Please try again later.", action))
	if initiatorID != e.approverID {
		e.send(ctx, e.approverID, fmt.Sprintf("Store error %s for user %d: %v", action, initiatorID, err))
	}
	return err
}

func (e *Engine) send(ctx context.Context, recipientID int64, text string) {
	if err := e.sender.SendMessage(ctx, recipientID, text); err != nil {
		e.log.Error("send message", zap.Int64("recipient", recipientID), zap.Error(err))
	}
}

func bankDetailsRequired() error {
	return validationf("Please set your bank name (/bank) and account number (/account) before making transactions.")
}
