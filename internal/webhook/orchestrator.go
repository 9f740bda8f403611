// Package webhook turns one inbound payment gateway delivery into at most one
// subscription transition plus its side effects.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	"github.com/smallbiznis/guildpass/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/payment/signature"
	"github.com/smallbiznis/guildpass/internal/payment/statusmap"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Delivery is one inbound webhook call.
type Delivery struct {
	Body      []byte
	Signature string
}

type Result string

const (
	ResultApplied          Result = "applied"
	ResultAlreadyProcessed Result = "already_processed"
	ResultAcknowledged     Result = "acknowledged"
	ResultRejected         Result = "rejected"
)

// Outcome describes what a delivery did. Kind is set whenever something was
// not applied or a side effect failed.
type Outcome struct {
	EventID           snowflake.ID
	OrderID           string
	Result            Result
	Kind              Kind
	Note              string
	TransactionStatus string
	MappedStatus      paymentdomain.TransactionStatus
	SubscriptionID    snowflake.ID
	From              subscriptiondomain.SubscriptionStatus
	To                subscriptiondomain.SubscriptionStatus
}

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock

	Events        paymentdomain.WebhookEventRepository
	Transactions  paymentdomain.TransactionRepository
	Subscriptions subscriptiondomain.Service
	Activity      activitydomain.Service
	Entitlements  *entitlement.Synchronizer
	Notifier      *notification.Dispatcher
}

type Orchestrator struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	validate *validator.Validate

	secret string
	window time.Duration
	loc    *time.Location

	events        paymentdomain.WebhookEventRepository
	transactions  paymentdomain.TransactionRepository
	subscriptions subscriptiondomain.Service
	activity      activitydomain.Service
	entitlements  *entitlement.Synchronizer
	notifier      *notification.Dispatcher
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		db:       p.DB,
		log:      p.Log.Named("webhook.orchestrator"),
		genID:    p.GenID,
		clock:    p.Clock,
		validate: validator.New(),

		secret: p.Config.Gateway.ServerKey,
		window: p.Config.Webhook.FreshnessWindow,
		loc:    p.Config.WebhookLocation(),

		events:        p.Events,
		transactions:  p.Transactions,
		subscriptions: p.Subscriptions,
		activity:      p.Activity,
		entitlements:  p.Entitlements,
		notifier:      p.Notifier,
	}
}

// Handle processes one delivery. A non-nil error means the gateway should be
// told the delivery failed; its Kind picks the response code.
func (o *Orchestrator) Handle(ctx context.Context, d Delivery) (out Outcome, err error) {
	started := time.Now()
	defer func() {
		o.logOutcome(ctx, out, err, time.Since(started))
	}()

	payload, amount, err := o.parse(d.Body)
	if err != nil {
		return Outcome{Result: ResultRejected, Kind: KindRejectedInput}, err
	}

	now := o.clock.Now()
	out = Outcome{OrderID: payload.OrderID, TransactionStatus: payload.TransactionStatus}
	event := paymentdomain.WebhookEvent{
		ID:             o.genID.Generate(),
		GatewayOrderID: payload.OrderID,
		Payload:        datatypes.JSON(d.Body),
		Signature:      strings.TrimSpace(d.Signature),
		ReceivedAt:     now,
	}
	out.EventID = event.ID

	if verr := o.verifySignature(payload, event.Signature); verr != nil {
		return o.reject(ctx, out, &event, "verify_signature", verr)
	}

	occurredAt, terr := signature.ParseTransactionTime(payload.TransactionTime, o.loc)
	if terr == nil && !signature.Fresh(occurredAt, now, o.window) {
		terr = fmt.Errorf("%w: transaction_time %s is outside the %s window", ErrStaleEvent, payload.TransactionTime, o.window)
	}
	if terr != nil {
		return o.reject(ctx, out, &event, "check_freshness", terr)
	}

	event.Verified = true
	if err := o.events.Insert(ctx, o.db, &event); err != nil {
		out.Result = ResultRejected
		return out, storageFailure("record_event", err)
	}

	mapped, ok := statusmap.Map(payload.TransactionStatus)
	if !ok {
		return o.acknowledge(ctx, out, KindUnrecognized, "unknown transaction_status "+payload.TransactionStatus)
	}
	out.MappedStatus = mapped

	subscriptionID, err := paymentdomain.ParseOrderID(payload.OrderID)
	if err != nil {
		return o.acknowledge(ctx, out, KindUnrecognized, "order id does not name a subscription")
	}
	out.SubscriptionID = subscriptionID

	detail, err := o.subscriptions.GetDetail(ctx, subscriptionID)
	if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		return o.acknowledge(ctx, out, KindUnrecognized, "subscription not found")
	}
	if err != nil {
		out.Result = ResultRejected
		return out, storageFailure("load_subscription", err)
	}

	return o.apply(ctx, out, payload, amount, occurredAt, *detail)
}

func (o *Orchestrator) parse(body []byte) (paymentdomain.WebhookPayload, decimal.Decimal, error) {
	var payload paymentdomain.WebhookPayload
	if len(body) == 0 {
		return payload, decimal.Zero, rejected("parse", paymentdomain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, decimal.Zero, rejected("parse", fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err))
	}
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	payload.TransactionStatus = strings.ToLower(strings.TrimSpace(payload.TransactionStatus))

	if err := o.validate.Struct(payload); err != nil {
		return payload, decimal.Zero, rejected("validate", fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err))
	}

	amount, err := decimal.NewFromString(payload.GrossAmount)
	if err != nil || amount.IsNegative() {
		return payload, decimal.Zero, rejected("validate", paymentdomain.ErrInvalidAmount)
	}
	return payload, amount, nil
}

func (o *Orchestrator) verifySignature(payload paymentdomain.WebhookPayload, received string) error {
	if received == "" {
		return ErrMissingSignature
	}
	if !signature.Verify(payload.OrderID, payload.StatusCode, payload.GrossAmount, received, o.secret) {
		return ErrInvalidSignature
	}
	return nil
}

// reject records an unverified delivery and stops.
func (o *Orchestrator) reject(ctx context.Context, out Outcome, event *paymentdomain.WebhookEvent, op string, cause error) (Outcome, error) {
	note := cause.Error()
	event.ProcessingError = &note
	out.Result = ResultRejected
	out.Kind = KindUnverified
	out.Note = note

	if err := o.events.Insert(ctx, o.db, event); err != nil {
		return out, storageFailure("record_event", err)
	}
	return out, unverified(op, cause)
}

// acknowledge closes a verified delivery that cannot be acted on.
func (o *Orchestrator) acknowledge(ctx context.Context, out Outcome, kind Kind, note string) (Outcome, error) {
	out.Result = ResultAcknowledged
	out.Kind = kind
	out.Note = note

	if err := o.events.MarkProcessed(ctx, o.db, out.EventID, &note, o.clock.Now()); err != nil {
		o.log.Error("failed to mark webhook event processed",
			zap.String("event_id", out.EventID.String()),
			zap.Error(err),
		)
	}
	return out, nil
}

// targetStatus picks the subscription status a mapped gateway status leads to.
func targetStatus(mapped paymentdomain.TransactionStatus, gatewayStatus string) (subscriptiondomain.SubscriptionStatus, bool) {
	switch mapped {
	case paymentdomain.TransactionStatusSuccess:
		return subscriptiondomain.SubscriptionStatusActive, true
	case paymentdomain.TransactionStatusFailed:
		if statusmap.IsCancellation(gatewayStatus) {
			return subscriptiondomain.SubscriptionStatusCancelled, true
		}
		return subscriptiondomain.SubscriptionStatusFailed, true
	case paymentdomain.TransactionStatusRefunded:
		return subscriptiondomain.SubscriptionStatusCancelled, true
	default:
		return "", false
	}
}

func (o *Orchestrator) logOutcome(ctx context.Context, out Outcome, err error, elapsed time.Duration) {
	kind := out.Kind
	if k := KindOf(err); k != "" {
		kind = k
	}

	fields := []zap.Field{
		zap.String("order_id", out.OrderID),
		zap.String("outcome", string(out.Result)),
		zap.String("kind", string(kind)),
		zap.String("transaction_status", out.TransactionStatus),
		zap.String("mapped_status", string(out.MappedStatus)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if out.SubscriptionID != 0 {
		fields = append(fields, zap.String("subscription_id", out.SubscriptionID.String()))
	}
	if out.To != "" {
		fields = append(fields, zap.String("from", string(out.From)), zap.String("to", string(out.To)))
	}
	if out.Note != "" {
		fields = append(fields, zap.String("note", out.Note))
	}

	log := logger.WithContext(ctx, o.log)
	switch kind {
	case KindStorageFailure:
		log.Error("webhook.outcome", append(fields, zap.Error(err))...)
	case KindRejectedInput, KindUnverified, KindCollaboratorFailure:
		log.Warn("webhook.outcome", append(fields, zap.Error(err))...)
	default:
		log.Info("webhook.outcome", fields...)
	}
}
