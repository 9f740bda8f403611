package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/clock"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/providers/gateway"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	repo         subscriptiondomain.Repository
	transactions paymentdomain.TransactionRepository

	gateway  gateway.Client
	activity activitydomain.Service
}

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         subscriptiondomain.Repository
	Transactions paymentdomain.TransactionRepository

	Gateway  gateway.Client
	Activity activitydomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		transactions: p.Transactions,

		gateway:  p.Gateway,
		activity: p.Activity,
	}
}

func (s *Service) GetDetail(ctx context.Context, id snowflake.ID) (*subscriptiondomain.SubscriptionDetail, error) {
	if id == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	item, err := s.repo.FindDetail(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return item, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, to subscriptiondomain.SubscriptionStatus, input subscriptiondomain.TransitionInput) (subscriptiondomain.TransitionResult, error) {
	var result subscriptiondomain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.TransitionTx(ctx, tx, id, to, input)
		return err
	})
	if err != nil {
		return subscriptiondomain.TransitionResult{}, err
	}
	return result, nil
}

func (s *Service) TransitionTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, to subscriptiondomain.SubscriptionStatus, input subscriptiondomain.TransitionInput) (subscriptiondomain.TransitionResult, error) {
	if id == 0 {
		return subscriptiondomain.TransitionResult{}, subscriptiondomain.ErrInvalidSubscription
	}
	if !to.IsValid() {
		return subscriptiondomain.TransitionResult{}, subscriptiondomain.ErrInvalidTargetStatus
	}

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return subscriptiondomain.TransitionResult{}, err
	}
	if current == nil {
		return subscriptiondomain.TransitionResult{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	return s.apply(ctx, tx, *current, to, input)
}

// apply validates and writes one transition. The write is conditional on the
// row still holding current.Status.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, current subscriptiondomain.Subscription, to subscriptiondomain.SubscriptionStatus, input subscriptiondomain.TransitionInput) (subscriptiondomain.TransitionResult, error) {
	if err := subscriptiondomain.ValidateTransition(current.Status, to); err != nil {
		return subscriptiondomain.TransitionResult{}, err
	}

	now := s.clock.Now()
	next := current
	next.Status = to
	next.UpdatedAt = now

	result := subscriptiondomain.TransitionResult{From: current.Status}

	switch to {
	case subscriptiondomain.SubscriptionStatusActive:
		superseded, err := s.supersedeActive(ctx, tx, current, now)
		if err != nil {
			return subscriptiondomain.TransitionResult{}, err
		}
		result.Superseded = superseded

		next.CancelledAt = nil
		if !input.Restore {
			if err := s.activate(ctx, tx, &next, input, now); err != nil {
				return subscriptiondomain.TransitionResult{}, err
			}
		}
	case subscriptiondomain.SubscriptionStatusCancelled:
		next.CancelledAt = &now
		endWindow(&next, now)
	case subscriptiondomain.SubscriptionStatusPending:
		next.CancelledAt = nil
	}

	updated, err := s.repo.UpdateLifecycle(ctx, tx, &next, current.Status)
	if err != nil {
		return subscriptiondomain.TransitionResult{}, err
	}
	if !updated {
		return subscriptiondomain.TransitionResult{}, subscriptiondomain.ErrConcurrentTransition
	}

	s.log.Info("subscription transitioned",
		zap.String("subscription_id", next.ID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("reason", strings.TrimSpace(input.Reason)),
		zap.Int("superseded", len(result.Superseded)),
	)

	result.Subscription = next
	return result, nil
}

// activate fills the payment and validity window of a subscription entering Active.
func (s *Service) activate(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, input subscriptiondomain.TransitionInput, now time.Time) error {
	tier, err := s.repo.FindTier(ctx, tx, sub.TierID)
	if err != nil {
		return err
	}
	if tier == nil {
		return subscriptiondomain.ErrTierNotFound
	}

	if sub.StartDate == nil {
		start := now
		sub.StartDate = &start
	}

	if tier.DurationDays != nil && *tier.DurationDays > 0 {
		base := now
		if sub.ExpiryDate != nil && sub.ExpiryDate.After(now) {
			base = *sub.ExpiryDate
		}
		expiry := base.AddDate(0, 0, *tier.DurationDays)
		sub.ExpiryDate = &expiry
	} else {
		sub.ExpiryDate = nil
	}

	paidAt := now
	if input.PaymentDate != nil {
		paidAt = *input.PaymentDate
	}
	sub.LastPaymentDate = &paidAt
	if input.PaymentAmount.Valid {
		sub.LastPaymentAmount = input.PaymentAmount
	}
	return nil
}

// endWindow closes the paid window of a started subscription at now, so a
// later renewal checkout has nothing to fall back to.
func endWindow(sub *subscriptiondomain.Subscription, now time.Time) {
	if sub.StartDate == nil {
		return
	}
	if sub.ExpiryDate == nil || sub.ExpiryDate.After(now) {
		end := now
		sub.ExpiryDate = &end
	}
}

// supersedeActive cancels any other Active subscription of the same member and
// server so the one-active invariant holds once current is activated.
func (s *Service) supersedeActive(ctx context.Context, tx *gorm.DB, current subscriptiondomain.Subscription, now time.Time) ([]subscriptiondomain.Subscription, error) {
	actives, err := s.repo.ListByMemberServer(ctx, tx, current.MemberID, current.ServerID, subscriptiondomain.SubscriptionStatusActive)
	if err != nil {
		return nil, err
	}

	var superseded []subscriptiondomain.Subscription
	for _, other := range actives {
		if other.ID == current.ID {
			continue
		}
		cancelledAt := now
		other.Status = subscriptiondomain.SubscriptionStatusCancelled
		other.CancelledAt = &cancelledAt
		other.UpdatedAt = now
		endWindow(&other, now)

		updated, err := s.repo.UpdateLifecycle(ctx, tx, &other, subscriptiondomain.SubscriptionStatusActive)
		if err != nil {
			return nil, err
		}
		if !updated {
			return nil, subscriptiondomain.ErrConcurrentTransition
		}
		superseded = append(superseded, other)
	}
	return superseded, nil
}

func (s *Service) ListStalePending(ctx context.Context, before time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListByStatusUpdatedBefore(ctx, s.db, subscriptiondomain.SubscriptionStatusPending, before, normalizeLimit(limit))
}

func (s *Service) ListLapsed(ctx context.Context, at time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListActiveExpiredBefore(ctx, s.db, at, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, invalidErr
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id <= 0 {
		return 0, invalidErr
	}
	return id, nil
}
