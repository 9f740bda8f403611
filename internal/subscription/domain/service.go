package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CheckoutRequest struct {
	MemberID string `json:"member_id"`
	TierID   string `json:"tier_id"`
}

type CheckoutResponse struct {
	SubscriptionID string `json:"subscription_id"`
	OrderID        string `json:"order_id"`
	RedirectURL    string `json:"redirect_url"`
	Token          string `json:"token,omitempty"`
}

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)
	GetDetail(ctx context.Context, id snowflake.ID) (*SubscriptionDetail, error)
	// Transition applies one state machine step in its own DB transaction.
	Transition(ctx context.Context, id snowflake.ID, to SubscriptionStatus, input TransitionInput) (TransitionResult, error)
	// TransitionTx is Transition inside a caller-owned DB transaction.
	TransitionTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, to SubscriptionStatus, input TransitionInput) (TransitionResult, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]Subscription, error)
	ListLapsed(ctx context.Context, at time.Time, limit int) ([]Subscription, error)
}
