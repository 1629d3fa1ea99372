// Package relay classifies every inbound transport event and dispatches it to
// the lifecycle engine or forwards it verbatim to the counterparty.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/paymebot/payrelay/internal/correlate"
	"github.com/paymebot/payrelay/internal/engine"
	"github.com/paymebot/payrelay/internal/store"
	"github.com/paymebot/payrelay/internal/transport"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrelay_events_total",
		Help: "Inbound events processed, labeled by classification",
	}, []string{"class"})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrelay_resolutions_total",
		Help: "Transaction lifecycle calls, labeled by path and outcome",
	}, []string{"path", "outcome"})
)

type Router struct {
	engine     *engine.Engine
	sender     transport.Sender
	approverID int64
	log        *zap.Logger
}

func New(eng *engine.Engine, sender transport.Sender, approverID int64, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{engine: eng, sender: sender, approverID: approverID, log: log}
}

// Handle classifies one inbound event. First match wins:
//
//  1. recognized command
//  2. approver evidence photo replying to a withdrawal notification
//  3. user evidence photo replying to deposit instructions
//  4. approver reply to other forwarded content, relayed to the decoded user
//  5. other non-approver event, forwarded to the approver
//
// Everything else is dropped silently; an open inbound channel carries noise.
func (r *Router) Handle(ctx context.Context, ev transport.Event) {
	isApprover := ev.SenderID == r.approverID

	if strings.HasPrefix(ev.Text, "/") {
		if r.handleCommand(ctx, ev) {
			eventsTotal.WithLabelValues("command").Inc()
			return
		}
		eventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	if isApprover && ev.PhotoRef != "" && ev.ReplyTo != nil {
		prior := ev.ReplyTo.Content()
		if strings.Contains(prior, correlate.MarkerWithdrawRequest) {
			if ref, err := correlate.Decode(prior); err == nil && ref.HasAmount {
				err := r.engine.ApproveWithEvidence(ctx, ev.SenderID, ref, ev.PhotoRef)
				resolutionsTotal.WithLabelValues("evidence_approve", outcomeLabel(err)).Inc()
				eventsTotal.WithLabelValues("implicit_approval").Inc()
				return
			}
			// Malformed reference: treat as ordinary uncorrelated chat.
			r.log.Debug("withdrawal reference failed to decode", zap.Int64("sender", ev.SenderID))
		}
	}

	if !isApprover && ev.PhotoRef != "" && ev.ReplyTo != nil &&
		strings.Contains(ev.ReplyTo.Content(), correlate.MarkerDepositReceipt) {
		if err := r.engine.RecordDepositEvidence(ctx, ev); err != nil {
			r.log.Error("record deposit evidence", zap.Int64("sender", ev.SenderID), zap.Error(err))
		}
		eventsTotal.WithLabelValues("deposit_evidence").Inc()
		return
	}

	if isApprover && ev.ReplyTo != nil {
		if userID, ok := correlate.UserID(ev.ReplyTo.Content()); ok {
			r.relayToUser(ctx, userID, ev)
			eventsTotal.WithLabelValues("approver_relay").Inc()
			return
		}
		eventsTotal.WithLabelValues("dropped").Inc()
		return
	}

	if !isApprover && (ev.Text != "" || ev.PhotoRef != "" || ev.DocumentRef != "") {
		r.forwardToApprover(ctx, ev)
		eventsTotal.WithLabelValues("user_relay").Inc()
		return
	}

	eventsTotal.WithLabelValues("dropped").Inc()
}

// relayToUser delivers an approver reply verbatim, preserving media kind.
func (r *Router) relayToUser(ctx context.Context, userID int64, ev transport.Event) {
	var err error
	switch {
	case ev.PhotoRef != "":
		caption := ev.Caption
		if caption == "" {
			caption = "Admin sent you a photo."
		}
		err = r.sender.SendPhoto(ctx, userID, ev.PhotoRef, caption)
	case ev.DocumentRef != "":
		caption := ev.Caption
		if caption == "" {
			caption = "Admin sent you a document."
		}
		err = r.sender.SendDocument(ctx, userID, ev.DocumentRef, caption)
	case ev.Text != "":
		err = r.sender.SendMessage(ctx, userID, "Admin replied:\n"+ev.Text)
	default:
		return
	}
	if err != nil {
		r.log.Error("relay to user", zap.Int64("user_id", userID), zap.Error(err))
		r.reply(ctx, ev.SenderID, fmt.Sprintf("Error replying to user %d.", userID))
	}
}

// forwardToApprover relays a user's free-form message, tagging it with the
// sender identity so a later approver reply can be routed back.
func (r *Router) forwardToApprover(ctx context.Context, ev transport.Event) {
	_ = r.engine.EnsureUser(ctx, ev.SenderID, ev.Handle)

	tag := fmt.Sprintf("@%s (ID: %d)", ev.DisplayName(), ev.SenderID)
	var err error
	switch {
	case ev.PhotoRef != "":
		err = r.sender.SendPhoto(ctx, r.approverID, ev.PhotoRef, "Photo from "+tag)
	case ev.DocumentRef != "":
		err = r.sender.SendDocument(ctx, r.approverID, ev.DocumentRef, "Document from "+tag)
	default:
		err = r.sender.SendMessage(ctx, r.approverID, fmt.Sprintf("From %s:\n%s", tag, ev.Text))
	}
	if err != nil {
		r.log.Error("forward to approver", zap.Int64("sender", ev.SenderID), zap.Error(err))
	}
}

func (r *Router) reply(ctx context.Context, recipientID int64, text string) {
	if err := r.sender.SendMessage(ctx, recipientID, text); err != nil {
		r.log.Error("send reply", zap.Int64("recipient", recipientID), zap.Error(err))
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	default:
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			return "validation"
		}
		return "error"
	}
}
