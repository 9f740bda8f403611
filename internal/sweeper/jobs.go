package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/payment/statusmap"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"github.com/smallbiznis/guildpass/internal/sweeper/guard"
	"go.uber.org/zap"
)

const (
	reasonCheckoutAbandoned = "checkout_abandoned"
	reasonRenewalAbandoned  = "renewal_abandoned"
	reasonLapsed            = "lapsed"
)

// ExpirePendingJob moves Pending subscriptions untouched for longer than the
// abandonment threshold out of Pending.
func (s *Sweeper) ExpirePendingJob(ctx context.Context) error {
	cfg := s.config.Get()
	now := s.clock.Now()
	cutoff := now.Add(-cfg.AbandonAfter)

	subs, err := s.subscriptions.ListStalePending(ctx, cutoff, cfg.BatchSize)
	if err != nil {
		return err
	}

	run := jobRunFromContext(ctx)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.expirePending(ctx, sub, cutoff, now)
		switch {
		case err != nil:
			s.logJobError(ctx, "abandoned checkout not expired", sub.ID, err)
		case done:
			run.AddProcessed(1)
		default:
			run.IncSkipped()
		}
	}
	return nil
}

func (s *Sweeper) expirePending(ctx context.Context, sub subscriptiondomain.Subscription, cutoff, now time.Time) (bool, error) {
	if err := guard.EnsureAbandoned(sub, cutoff); err != nil {
		return false, nil
	}

	gatewayStatus, known := s.gatewayStatus(ctx, sub.ID)
	action, err := guard.DecideAbandoned(sub, gatewayStatus, known, now)
	log := s.logger(ctx).With(zap.String("subscription_id", sub.ID.String()))

	switch action {
	case guard.ActionSkip:
		log.Warn("gateway reports a settled payment for abandoned checkout, leaving it for the webhook", zap.Error(err))
		return false, nil

	case guard.ActionRestore:
		result, err := s.subscriptions.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.TransitionInput{
			Reason:  reasonRenewalAbandoned,
			Restore: true,
		})
		if err != nil {
			return false, raced(err)
		}
		s.record(ctx, sub.ID, activitydomain.ActionRenewalAbandoned, map[string]any{
			"from":        string(result.From),
			"to":          string(result.Subscription.Status),
			"expiry_date": formatTime(result.Subscription.ExpiryDate),
		})
		log.Info("abandoned renewal restored to paid window")
		return true, nil
	}

	result, err := s.subscriptions.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusCancelled, subscriptiondomain.TransitionInput{
		Reason: reasonCheckoutAbandoned,
	})
	if err != nil {
		return false, raced(err)
	}
	s.record(ctx, sub.ID, activitydomain.ActionSubscriptionCancelled, map[string]any{
		"from":   string(result.From),
		"reason": reasonCheckoutAbandoned,
	})
	log.Info("abandoned checkout cancelled")

	// a renewal that outlived its paid window may still hold the role
	if sub.StartDate != nil {
		s.revoke(ctx, sub.ID, reasonCheckoutAbandoned)
	}
	return true, nil
}

// ExpireLapsedJob moves Active subscriptions past their expiry to Expired and
// removes the role.
func (s *Sweeper) ExpireLapsedJob(ctx context.Context) error {
	cfg := s.config.Get()
	now := s.clock.Now()

	subs, err := s.subscriptions.ListLapsed(ctx, now, cfg.BatchSize)
	if err != nil {
		return err
	}

	run := jobRunFromContext(ctx)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.expireLapsed(ctx, sub, now)
		switch {
		case err != nil:
			s.logJobError(ctx, "lapsed subscription not expired", sub.ID, err)
		case done:
			run.AddProcessed(1)
		default:
			run.IncSkipped()
		}
	}
	return nil
}

func (s *Sweeper) expireLapsed(ctx context.Context, sub subscriptiondomain.Subscription, now time.Time) (bool, error) {
	if err := guard.EnsureLapsed(sub, now); err != nil {
		return false, nil
	}

	result, err := s.subscriptions.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.TransitionInput{
		Reason: reasonLapsed,
	})
	if err != nil {
		return false, raced(err)
	}
	s.record(ctx, sub.ID, activitydomain.ActionSubscriptionExpired, map[string]any{
		"from":        string(result.From),
		"expiry_date": formatTime(sub.ExpiryDate),
	})
	s.logger(ctx).Info("subscription expired", zap.String("subscription_id", sub.ID.String()))

	detail := s.revoke(ctx, sub.ID, reasonLapsed)
	if detail != nil {
		if _, err := s.notifier.Notify(ctx, notification.KindExpired, *detail); err != nil {
			s.logger(ctx).Warn("expiry notification undelivered",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// gatewayStatus asks the gateway about the latest order of a subscription.
// Any lookup failure reports the status as unknown.
func (s *Sweeper) gatewayStatus(ctx context.Context, subscriptionID snowflake.ID) (paymentdomain.TransactionStatus, bool) {
	txn, err := s.transactions.FindLatestBySubscriptionID(ctx, s.db, subscriptionID)
	if err != nil || txn == nil {
		if err != nil {
			s.logger(ctx).Warn("latest transaction lookup failed",
				zap.String("subscription_id", subscriptionID.String()),
				zap.Error(err),
			)
		}
		return "", false
	}

	raw, err := s.gateway.GetTransactionStatus(ctx, txn.GatewayOrderID)
	if err != nil {
		s.logger(ctx).Debug("gateway status lookup failed",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("order_id", txn.GatewayOrderID),
			zap.Error(err),
		)
		return "", false
	}
	return statusmap.Map(raw)
}

// revoke removes the role of a subscription and returns its detail for
// follow-up work. Failures are recorded by the synchronizer.
func (s *Sweeper) revoke(ctx context.Context, subscriptionID snowflake.ID, trigger string) *subscriptiondomain.SubscriptionDetail {
	detail, err := s.subscriptions.GetDetail(ctx, subscriptionID)
	if err != nil {
		s.logger(ctx).Warn("subscription detail unavailable for revoke",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err),
		)
		return nil
	}
	if err := s.entitlements.Revoke(ctx, entitlement.TargetFor(*detail), map[string]any{"trigger": trigger}); err != nil {
		s.logger(ctx).Warn("role revoke failed",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err),
		)
	}
	return detail
}

func (s *Sweeper) record(ctx context.Context, subscriptionID snowflake.ID, action string, details map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: subscriptionID,
		ActorType:      activitydomain.ActorTypeSystem,
		ActorID:        "sweeper",
		Action:         action,
		Details:        details,
	})
	if err != nil {
		s.logger(ctx).Warn("failed to record activity",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// raced hides transitions lost to a concurrent webhook: the row moved on and
// there is nothing left to sweep.
func raced(err error) error {
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) || errors.Is(err, subscriptiondomain.ErrConcurrentTransition) {
		return nil
	}
	return err
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
