// Package correlate implements the stateless correlation grammar between
// outbound notifications and the replies they later receive.
//
// The chat transport carries no structured request identifiers, so every
// outbound notification that may be acted on embeds a fixed set of field lines
// (Encode). A later inbound reply is attributed by re-reading the replied-to
// content (Decode), never the reply's own text. Nothing is persisted; the
// encoder and decoder must stay in lockstep.
package correlate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/domain"
)

// Markers identify what kind of notification a reply refers to. They are part
// of the rendered notification text and of the decode grammar.
const (
	MarkerWithdrawRequest = "Withdraw Request"
	MarkerDepositRequest  = "New Deposit Request"
	MarkerDepositReceipt  = "payment receipt"
)

// ErrMalformed means a required reference field was absent or non-numeric.
// Decoding fails closed: ambiguity must never produce a wrong match.
var ErrMalformed = errors.New("malformed correlation reference")

// Reference is the correlation key recovered from a prior notification.
// Amount is absent on deposit notifications, where it is unknown until the
// approver resolves the transaction.
type Reference struct {
	TransactionID int64
	UserID        int64
	Amount        decimal.Decimal
	HasAmount     bool
}

var (
	transactionIDPattern = regexp.MustCompile(`Transaction ID: (\d+)`)
	userIDPattern        = regexp.MustCompile(`User ID: (\d+)`)
	amountPattern        = regexp.MustCompile(`Amount: Rs\. (\d+(?:\.\d+)?)`)
	genericIDPattern     = regexp.MustCompile(`ID: (\d+)`)
)

// Encode renders the field lines embedded in outbound notifications. The
// field names are stable so the decoder stays forward-compatible when the
// wording around them changes. User ID is rendered before Transaction ID so
// the generic first-ID match used for free-form relay resolves to the user.
func Encode(transactionID, userID int64, amount decimal.NullDecimal, kind domain.Kind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %d\n", userID)
	fmt.Fprintf(&b, "Transaction ID: %d\n", transactionID)
	if amount.Valid {
		fmt.Fprintf(&b, "Amount: Rs. %s\n", amount.Decimal.String())
	}
	fmt.Fprintf(&b, "Type: %s", kind)
	return b.String()
}

// Decode extracts the reference from a prior notification's content. It
// returns ErrMalformed unless both the transaction id and user id parse;
// the amount line is optional.
func Decode(priorText string) (Reference, error) {
	var ref Reference

	m := transactionIDPattern.FindStringSubmatch(priorText)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: no transaction id", ErrMalformed)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: transaction id %q", ErrMalformed, m[1])
	}
	ref.TransactionID = id

	m = userIDPattern.FindStringSubmatch(priorText)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: no user id", ErrMalformed)
	}
	uid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: user id %q", ErrMalformed, m[1])
	}
	ref.UserID = uid

	if m = amountPattern.FindStringSubmatch(priorText); m != nil {
		amount, err := decimal.NewFromString(m[1])
		if err != nil {
			return Reference{}, fmt.Errorf("%w: amount %q", ErrMalformed, m[1])
		}
		ref.Amount = amount
		ref.HasAmount = true
	}

	return ref, nil
}

// UserID extracts the first well-formed "ID: {n}" token from a prior message.
// This loose form routes free-form counterparty chat only; it is never used
// for balance mutation.
func UserID(priorText string) (int64, bool) {
	m := genericIDPattern.FindStringSubmatch(priorText)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
