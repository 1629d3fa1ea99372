package relay

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/transport"
)

var (
	approveArgsPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*=\s*(\d+)$`)
	rejectArgsPattern  = regexp.MustCompile(`^(\d+)\s*=\s*(.+)$`)
)

// splitCommand separates the command keyword from its argument text.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	name, args, _ := strings.Cut(text, " ")
	return name, strings.TrimSpace(args)
}

// handleCommand dispatches a recognized command and reports whether the event
// was consumed. Malformed arguments get a validation reply and still count as
// consumed; unknown commands fall back to the caller.
func (r *Router) handleCommand(ctx context.Context, ev transport.Event) bool {
	name, args := splitCommand(ev.Text)

	// Commands operate against a registered user row; registration is an
	// idempotent upsert, so doing it up front for every command is safe.
	_ = r.engine.EnsureUser(ctx, ev.SenderID, ev.Handle)

	switch name {
	case "/start":
		r.engine.Start(ctx, ev)
	case "/help":
		r.engine.Help(ctx, ev.SenderID)
	case "/balance":
		r.engine.Balance(ctx, ev.SenderID)
	case "/profile":
		r.engine.Profile(ctx, ev.SenderID)
	case "/transactions":
		r.engine.Transactions(ctx, ev.SenderID)
	case "/deposit":
		r.engine.RequestDeposit(ctx, ev.SenderID)
	case "/bank":
		r.engine.SetBank(ctx, ev.SenderID, args)
	case "/account":
		r.engine.SetAccount(ctx, ev.SenderID, args)
	case "/withdraw":
		amount, err := decimal.NewFromString(args)
		if err != nil {
			r.reply(ctx, ev.SenderID, "Please enter a valid withdrawal amount.")
			return true
		}
		_, err = r.engine.RequestWithdraw(ctx, ev, amount)
		resolutionsTotal.WithLabelValues("withdraw_request", outcomeLabel(err)).Inc()
	case "/qr":
		r.engine.SetDepositImage(ctx, ev.SenderID, args)
	case "/approve":
		m := approveArgsPattern.FindStringSubmatch(args)
		if m == nil {
			r.reply(ctx, ev.SenderID, "Usage: /approve {amount} = {transaction id}")
			return true
		}
		amount, err := decimal.NewFromString(m[1])
		if err != nil {
			r.reply(ctx, ev.SenderID, "Usage: /approve {amount} = {transaction id}")
			return true
		}
		txID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			r.reply(ctx, ev.SenderID, "Usage: /approve {amount} = {transaction id}")
			return true
		}
		err = r.engine.Approve(ctx, ev.SenderID, amount, txID)
		resolutionsTotal.WithLabelValues("approve", outcomeLabel(err)).Inc()
	case "/reject":
		m := rejectArgsPattern.FindStringSubmatch(args)
		if m == nil {
			r.reply(ctx, ev.SenderID, "Usage: /reject {transaction id} = {reason}")
			return true
		}
		txID, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			r.reply(ctx, ev.SenderID, "Usage: /reject {transaction id} = {reason}")
			return true
		}
		err = r.engine.Reject(ctx, ev.SenderID, txID, strings.TrimSpace(m[2]))
		resolutionsTotal.WithLabelValues("reject", outcomeLabel(err)).Inc()
	case "/pending":
		r.engine.Pending(ctx, ev.SenderID)
	case "/dashboard":
		r.engine.Dashboard(ctx, ev.SenderID)
	default:
		return false
	}
	return true
}
