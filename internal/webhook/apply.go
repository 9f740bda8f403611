package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/payment/signature"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// plan is what the DB transaction decided; side effects run from it after commit.
type plan struct {
	result     Result
	kind       Kind
	note       string
	transition *subscriptiondomain.TransitionResult
}

func (o *Orchestrator) apply(ctx context.Context, out Outcome, payload paymentdomain.WebhookPayload, amount decimal.Decimal, occurredAt time.Time, detail subscriptiondomain.SubscriptionDetail) (Outcome, error) {
	mapped := out.MappedStatus
	paymentDate := o.paymentDate(payload, mapped, occurredAt)

	var p plan
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := o.clock.Now()

		txn, err := o.transactions.FindByOrderID(ctx, tx, payload.OrderID)
		if err != nil {
			return err
		}
		if txn == nil {
			txn = &paymentdomain.Transaction{
				ID:             o.genID.Generate(),
				SubscriptionID: detail.Subscription.ID,
				GatewayOrderID: payload.OrderID,
				Amount:         amount,
				Currency:       detail.Tier.Currency,
				Status:         paymentdomain.TransactionStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := o.transactions.Insert(ctx, tx, txn); err != nil {
				return err
			}
		}

		if !txn.Status.CanAdvanceTo(mapped) {
			p = plan{result: ResultAlreadyProcessed, note: fmt.Sprintf("transaction already %s", txn.Status)}
			return o.events.MarkProcessed(ctx, tx, out.EventID, &p.note, now)
		}
		if !txn.Amount.Equal(amount) {
			o.log.Warn("gross amount differs from checkout amount",
				zap.String("order_id", payload.OrderID),
				zap.String("expected", txn.Amount.String()),
				zap.String("received", amount.String()),
			)
		}

		gatewayTxnID := strings.TrimSpace(payload.TransactionID)
		changed, err := o.transactions.UpdateStatus(ctx, tx, paymentdomain.StatusUpdate{
			GatewayOrderID:       payload.OrderID,
			From:                 txn.Status,
			Status:               mapped,
			GatewayTransactionID: &gatewayTxnID,
			PaymentDate:          paymentDate,
			UpdatedAt:            now,
		})
		if err != nil {
			return err
		}
		if !changed {
			p = plan{result: ResultAlreadyProcessed, note: "transaction changed by a concurrent delivery"}
			return o.events.MarkProcessed(ctx, tx, out.EventID, &p.note, now)
		}

		p = plan{result: ResultApplied}
		if target, ok := targetStatus(mapped, payload.TransactionStatus); ok {
			input := subscriptiondomain.TransitionInput{
				PaymentDate: paymentDate,
				Reason:      "webhook:" + payload.TransactionStatus,
			}
			if mapped == paymentdomain.TransactionStatusSuccess {
				input.PaymentAmount = decimal.NewNullDecimal(amount)
			}

			res, err := o.subscriptions.TransitionTx(ctx, tx, detail.Subscription.ID, target, input)
			switch {
			case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
				// the transaction status is still recorded
				p.kind = KindInvalidTransition
				p.note = err.Error()
			case err != nil:
				return err
			default:
				p.transition = &res
			}
		}

		var note *string
		if p.note != "" {
			note = &p.note
		}
		return o.events.MarkProcessed(ctx, tx, out.EventID, note, now)
	})
	if err != nil {
		out.Result = ResultRejected
		return out, storageFailure("apply", err)
	}

	out.Result = p.result
	out.Kind = p.kind
	out.Note = p.note
	if p.transition == nil {
		return out, nil
	}

	out.From = p.transition.From
	out.To = p.transition.Subscription.Status
	detail.Subscription = p.transition.Subscription

	if failure := o.runEffects(ctx, payload, mapped, detail, *p.transition); failure != "" {
		out.Kind = KindCollaboratorFailure
		out.Note = failure
	}
	return out, nil
}

func (o *Orchestrator) paymentDate(payload paymentdomain.WebhookPayload, mapped paymentdomain.TransactionStatus, occurredAt time.Time) *time.Time {
	if raw := strings.TrimSpace(payload.PaymentDate); raw != "" {
		if t, err := signature.ParseTransactionTime(raw, o.loc); err == nil {
			return &t
		}
	}
	if mapped == paymentdomain.TransactionStatusSuccess {
		t := occurredAt
		return &t
	}
	return nil
}

// runEffects performs role and notification work for a committed transition.
// It returns a description of the first collaborator failure, if any.
func (o *Orchestrator) runEffects(ctx context.Context, payload paymentdomain.WebhookPayload, mapped paymentdomain.TransactionStatus, detail subscriptiondomain.SubscriptionDetail, res subscriptiondomain.TransitionResult) string {
	sub := detail.Subscription
	target := entitlement.TargetFor(detail)
	details := map[string]any{
		"order_id":           payload.OrderID,
		"transaction_status": payload.TransactionStatus,
		"from":               string(res.From),
	}

	var failure string
	fail := func(what string, err error) {
		if failure == "" {
			failure = fmt.Sprintf("%s: %v", what, err)
		}
	}

	switch {
	case sub.Status == subscriptiondomain.SubscriptionStatusActive:
		for _, old := range res.Superseded {
			if err := o.supersede(ctx, old, detail); err != nil {
				fail("revoke superseded role", err)
			}
		}

		activated := map[string]any{"gross_amount": payload.GrossAmount}
		if sub.ExpiryDate != nil {
			activated["expiry_date"] = sub.ExpiryDate.UTC().Format(time.RFC3339)
		}
		o.record(ctx, sub.ID, activitydomain.ActionSubscriptionActivated, merge(details, activated))

		if err := o.entitlements.Grant(ctx, target, details); err != nil {
			fail("grant role", err)
			return failure
		}
		if _, err := o.notifier.Notify(ctx, notification.KindActivated, detail); err != nil {
			fail("notify", err)
		}

	case mapped == paymentdomain.TransactionStatusRefunded:
		o.record(ctx, sub.ID, activitydomain.ActionSubscriptionRefunded, details)
		kind := notification.KindCheckoutVoid
		if heldRole(res.From, sub) {
			kind = notification.KindRefunded
			if err := o.entitlements.Revoke(ctx, target, details); err != nil {
				fail("revoke role", err)
			}
		}
		if _, err := o.notifier.Notify(ctx, kind, detail); err != nil {
			fail("notify", err)
		}

	default:
		action := activitydomain.ActionSubscriptionFailed
		if sub.Status == subscriptiondomain.SubscriptionStatusCancelled {
			action = activitydomain.ActionSubscriptionCancelled
		}
		o.record(ctx, sub.ID, action, details)
		if res.From == subscriptiondomain.SubscriptionStatusActive {
			if err := o.entitlements.Revoke(ctx, target, details); err != nil {
				fail("revoke role", err)
			}
		}
		if _, err := o.notifier.Notify(ctx, notification.KindPaymentFailed, detail); err != nil {
			fail("notify", err)
		}
	}
	return failure
}

// heldRole reports whether the member could hold the role before the
// transition: an Active subscription, or a renewal checkout of one.
func heldRole(from subscriptiondomain.SubscriptionStatus, sub subscriptiondomain.Subscription) bool {
	switch from {
	case subscriptiondomain.SubscriptionStatusActive:
		return true
	case subscriptiondomain.SubscriptionStatusPending:
		return sub.StartDate != nil
	default:
		return false
	}
}

// supersede logs the replaced subscription and drops its role when it differs
// from the one just granted.
func (o *Orchestrator) supersede(ctx context.Context, old subscriptiondomain.Subscription, current subscriptiondomain.SubscriptionDetail) error {
	o.record(ctx, old.ID, activitydomain.ActionSubscriptionSuperseded, map[string]any{
		"superseded_by": current.Subscription.ID.String(),
	})

	oldDetail, err := o.subscriptions.GetDetail(ctx, old.ID)
	if err != nil {
		return err
	}
	if oldDetail.Tier.DiscordRoleID == current.Tier.DiscordRoleID {
		return nil
	}
	return o.entitlements.Revoke(ctx, entitlement.TargetFor(*oldDetail), map[string]any{
		"reason":        "superseded",
		"superseded_by": current.Subscription.ID.String(),
	})
}

func (o *Orchestrator) record(ctx context.Context, subscriptionID snowflake.ID, action string, details map[string]any) {
	if o.activity == nil {
		return
	}
	err := o.activity.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: subscriptionID,
		ActorType:      activitydomain.ActorTypeSystem,
		Action:         action,
		Details:        details,
	})
	if err != nil {
		o.log.Warn("failed to record activity",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
