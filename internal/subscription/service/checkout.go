package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/providers/gateway"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"github.com/smallbiznis/guildpass/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reasonSupersededByCheckout = "superseded_by_checkout"

// Checkout opens a payment attempt for a member on a tier. The subscription
// for that tier is created or moved back to Pending, and any other Pending
// subscription of the member on the same server is cancelled.
func (s *Service) Checkout(ctx context.Context, req subscriptiondomain.CheckoutRequest) (subscriptiondomain.CheckoutResponse, error) {
	memberID, err := parseID(req.MemberID, subscriptiondomain.ErrInvalidMember)
	if err != nil {
		return subscriptiondomain.CheckoutResponse{}, err
	}
	tierID, err := parseID(req.TierID, subscriptiondomain.ErrInvalidTier)
	if err != nil {
		return subscriptiondomain.CheckoutResponse{}, err
	}

	var (
		sub       subscriptiondomain.Subscription
		txn       paymentdomain.Transaction
		tier      *subscriptiondomain.Tier
		member    *subscriptiondomain.Member
		cancelled []subscriptiondomain.Subscription
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tier, err = s.repo.FindTier(ctx, tx, tierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return subscriptiondomain.ErrTierNotFound
		}
		member, err = s.repo.FindMember(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return subscriptiondomain.ErrMemberNotFound
		}

		existing, err := s.repo.FindLatestForTier(ctx, tx, member.ID, tier.ID)
		if err != nil {
			return err
		}

		pending, err := s.repo.ListByMemberServer(ctx, tx, member.ID, tier.ServerID, subscriptiondomain.SubscriptionStatusPending)
		if err != nil {
			return err
		}
		for _, item := range pending {
			if existing != nil && item.ID == existing.ID {
				continue
			}
			res, err := s.apply(ctx, tx, item, subscriptiondomain.SubscriptionStatusCancelled, subscriptiondomain.TransitionInput{
				Reason: reasonSupersededByCheckout,
			})
			if err != nil {
				return err
			}
			cancelled = append(cancelled, res.Subscription)
		}

		now := s.clock.Now()
		switch {
		case existing == nil:
			sub = subscriptiondomain.Subscription{
				ID:        s.genID.Generate(),
				MemberID:  member.ID,
				ServerID:  tier.ServerID,
				TierID:    tier.ID,
				Status:    subscriptiondomain.SubscriptionStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.Insert(ctx, tx, &sub); err != nil {
				return err
			}
		case existing.Status == subscriptiondomain.SubscriptionStatusPending:
			// reused; touching updated_at restarts the abandonment clock
			sub = *existing
			sub.UpdatedAt = now
			updated, err := s.repo.UpdateLifecycle(ctx, tx, &sub, subscriptiondomain.SubscriptionStatusPending)
			if err != nil {
				return err
			}
			if !updated {
				return subscriptiondomain.ErrConcurrentTransition
			}
		default:
			res, err := s.apply(ctx, tx, *existing, subscriptiondomain.SubscriptionStatusPending, subscriptiondomain.TransitionInput{
				Reason: "checkout",
			})
			if err != nil {
				return err
			}
			sub = res.Subscription
		}

		txn = paymentdomain.Transaction{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			GatewayOrderID: paymentdomain.FormatOrderID(sub.ID, now),
			Amount:         tier.Price,
			Currency:       tier.Currency,
			Status:         paymentdomain.TransactionStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.transactions.Insert(ctx, tx, &txn); err != nil {
			if db.IsDuplicateOn(err, "ux_transactions_gateway_order_id", "transactions.gateway_order_id") {
				return subscriptiondomain.ErrCheckoutConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.CheckoutResponse{}, err
	}

	for _, item := range cancelled {
		s.recordActivity(ctx, item.ID, activitydomain.ActionSubscriptionCancelled, map[string]any{
			"reason":          reasonSupersededByCheckout,
			"superseded_by":   sub.ID.String(),
			"previous_status": string(subscriptiondomain.SubscriptionStatusPending),
		})
	}

	customerEmail := ""
	if member.Email != nil {
		customerEmail = *member.Email
	}
	created, err := s.gateway.CreateTransaction(ctx, gateway.CreateTransactionRequest{
		OrderID:       txn.GatewayOrderID,
		Amount:        txn.Amount,
		CustomerEmail: customerEmail,
		ItemID:        tier.ID.String(),
		ItemName:      tier.Name,
	})
	if err != nil {
		s.log.Warn("gateway checkout failed",
			zap.String("order_id", txn.GatewayOrderID),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		if _, markErr := s.transactions.UpdateStatus(ctx, s.db, paymentdomain.StatusUpdate{
			GatewayOrderID: txn.GatewayOrderID,
			Status:         paymentdomain.TransactionStatusFailed,
			UpdatedAt:      s.clock.Now(),
		}); markErr != nil {
			s.log.Error("failed to mark transaction failed",
				zap.String("order_id", txn.GatewayOrderID),
				zap.Error(markErr),
			)
		}
		return subscriptiondomain.CheckoutResponse{}, fmt.Errorf("%w: %v", subscriptiondomain.ErrGatewayUnavailable, err)
	}

	s.log.Info("checkout created",
		zap.String("order_id", txn.GatewayOrderID),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("tier_id", tier.ID.String()),
	)

	return subscriptiondomain.CheckoutResponse{
		SubscriptionID: sub.ID.String(),
		OrderID:        txn.GatewayOrderID,
		RedirectURL:    created.RedirectURL,
		Token:          created.Token,
	}, nil
}

func (s *Service) recordActivity(ctx context.Context, subscriptionID snowflake.ID, action string, details map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: subscriptionID,
		ActorType:      activitydomain.ActorTypeSystem,
		Action:         action,
		Details:        details,
	})
	if err != nil {
		s.log.Warn("failed to record activity",
			zap.String("subscription_id", subscriptionID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
