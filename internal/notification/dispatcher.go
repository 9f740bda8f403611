// Package notification tells members about subscription changes. A direct
// message is tried first; email is the fallback when one is on file.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/providers/discord"
	"github.com/smallbiznis/guildpass/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Kind string

const (
	KindActivated     Kind = "activated"
	KindPaymentFailed Kind = "payment_failed"
	KindRefunded      Kind = "refunded"
	KindCheckoutVoid  Kind = "checkout_void"
	KindExpired       Kind = "expired"
)

type Channel string

const (
	ChannelNone  Channel = ""
	ChannelDM    Channel = "dm"
	ChannelEmail Channel = "email"
)

var ErrUndelivered = errors.New("notification_undelivered")

type Params struct {
	fx.In

	Log      *zap.Logger
	Discord  discord.Client
	Email    email.Provider
	Activity activitydomain.Service
}

type Dispatcher struct {
	log      *zap.Logger
	discord  discord.Client
	email    email.Provider
	activity activitydomain.Service
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		discord:  p.Discord,
		email:    p.Email,
		activity: p.Activity,
	}
}

// Notify delivers one message and reports the channel that succeeded.
// Failure of every channel is logged and returned as ErrUndelivered.
func (d *Dispatcher) Notify(ctx context.Context, kind Kind, detail subscriptiondomain.SubscriptionDetail) (Channel, error) {
	subject, body := render(kind, detail)
	fields := []zap.Field{
		zap.String("subscription_id", detail.Subscription.ID.String()),
		zap.String("kind", string(kind)),
	}

	dmErr := d.discord.SendDM(ctx, detail.Member.DiscordUserID, body)
	if dmErr == nil {
		d.log.Debug("notification sent", append(fields, zap.String("channel", string(ChannelDM)))...)
		return ChannelDM, nil
	}
	d.log.Info("direct message failed", append(fields, zap.Error(dmErr))...)

	to := ""
	if detail.Member.Email != nil {
		to = strings.TrimSpace(*detail.Member.Email)
	}
	if to == "" {
		d.undelivered(ctx, kind, detail, dmErr, nil)
		return ChannelNone, ErrUndelivered
	}

	emailErr := d.email.Send(ctx, email.Message{To: to, Subject: subject, Body: body})
	if emailErr == nil {
		d.log.Debug("notification sent", append(fields, zap.String("channel", string(ChannelEmail)))...)
		return ChannelEmail, nil
	}

	d.undelivered(ctx, kind, detail, dmErr, emailErr)
	return ChannelNone, ErrUndelivered
}

func (d *Dispatcher) undelivered(ctx context.Context, kind Kind, detail subscriptiondomain.SubscriptionDetail, dmErr, emailErr error) {
	details := map[string]any{
		"kind":     string(kind),
		"dm_error": dmErr.Error(),
	}
	if emailErr != nil {
		details["email_error"] = emailErr.Error()
	} else {
		details["email_error"] = "no email on file"
	}

	d.log.Warn("notification undelivered",
		zap.String("subscription_id", detail.Subscription.ID.String()),
		zap.String("kind", string(kind)),
		zap.NamedError("dm_error", dmErr),
		zap.NamedError("email_error", emailErr),
	)

	if d.activity == nil {
		return
	}
	if err := d.activity.Record(ctx, activitydomain.RecordRequest{
		SubscriptionID: detail.Subscription.ID,
		ActorType:      activitydomain.ActorTypeSystem,
		Action:         activitydomain.ActionNotificationFailed,
		Details:        details,
	}); err != nil {
		d.log.Warn("failed to record activity", zap.Error(err))
	}
}

func render(kind Kind, detail subscriptiondomain.SubscriptionDetail) (string, string) {
	tier := detail.Tier.Name
	server := detail.Server.Name

	switch kind {
	case KindActivated:
		body := fmt.Sprintf("Your %s subscription on %s is active and your role has been granted.", tier, server)
		if expiry := detail.Subscription.ExpiryDate; expiry != nil {
			body += fmt.Sprintf(" It is valid until %s.", expiry.UTC().Format(time.DateOnly))
		}
		return fmt.Sprintf("Your %s subscription is active", tier), body
	case KindPaymentFailed:
		return "Your payment did not go through",
			fmt.Sprintf("We could not complete the payment for %s on %s. You can start a new checkout at any time.", tier, server)
	case KindRefunded:
		return fmt.Sprintf("Your %s subscription was refunded", tier),
			fmt.Sprintf("Your payment for %s on %s was refunded and the role has been removed.", tier, server)
	case KindCheckoutVoid:
		return fmt.Sprintf("Your %s checkout was refunded", tier),
			fmt.Sprintf("Your payment for %s on %s was refunded before the subscription started. No role was granted.", tier, server)
	case KindExpired:
		return fmt.Sprintf("Your %s subscription has expired", tier),
			fmt.Sprintf("Your %s subscription on %s has expired. Renew it to get the role back.", tier, server)
	default:
		return "Subscription update", fmt.Sprintf("Your %s subscription on %s was updated.", tier, server)
	}
}
