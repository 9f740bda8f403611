package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	activityrepo "github.com/smallbiznis/guildpass/internal/activity/repository"
	activityservice "github.com/smallbiznis/guildpass/internal/activity/service"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	paymentrepo "github.com/smallbiznis/guildpass/internal/payment/repository"
	"github.com/smallbiznis/guildpass/internal/payment/signature"
	"github.com/smallbiznis/guildpass/internal/providers/discord"
	"github.com/smallbiznis/guildpass/internal/providers/providertest"
	subscriptionrepo "github.com/smallbiznis/guildpass/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/guildpass/internal/subscription/service"
	"github.com/smallbiznis/guildpass/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	testSecret = "server-key"
	orderID    = "SUB-1-1792224000"
)

type harness struct {
	orch    *Orchestrator
	conn    *gorm.DB
	clock   *clock.FakeClock
	discord *providertest.FakeDiscord
	mail    *providertest.FakeEmail
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	cfg := config.Config{
		Gateway: config.GatewayConfig{ServerKey: testSecret},
		Webhook: config.WebhookConfig{FreshnessWindow: 24 * time.Hour, TimeZone: "UTC"},
	}

	activity := activityservice.NewService(activityservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  activityrepo.Provide(),
	})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:           conn,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         subscriptionrepo.Provide(),
		Transactions: paymentrepo.ProvideTransactions(),
		Gateway:      &providertest.FakeGateway{},
		Activity:     activity,
	})

	dc := &providertest.FakeDiscord{}
	mail := &providertest.FakeEmail{}

	orch := NewOrchestrator(Params{
		Config:        cfg,
		DB:            conn,
		Log:           log,
		GenID:         node,
		Clock:         clk,
		Events:        paymentrepo.ProvideWebhookEvents(),
		Transactions:  paymentrepo.ProvideTransactions(),
		Subscriptions: subs,
		Activity:      activity,
		Entitlements: entitlement.NewSynchronizer(entitlement.Params{
			Log:           log,
			Discord:       dc,
			Activity:      activity,
			Subscriptions: subs,
		}),
		Notifier: notification.NewDispatcher(notification.Params{
			Log:      log,
			Discord:  dc,
			Email:    mail,
			Activity: activity,
		}),
	})

	days := 30
	dbtest.SeedTier(t, conn, dbtest.Tier{
		ServerID:      100,
		GuildID:       "guild-1",
		MemberID:      200,
		DiscordUserID: "user-1",
		Email:         "member@example.com",
		TierID:        300,
		Price:         "50000",
		DurationDays:  &days,
		DiscordRoleID: "role-1",
	})

	return &harness{orch: orch, conn: conn, clock: clk, discord: dc, mail: mail}
}

func (h *harness) seed(t *testing.T, subStatus, txnStatus string) {
	t.Helper()
	at := h.clock.Now().Add(-5 * time.Minute)
	dbtest.SeedSubscription(t, h.conn, 1, 200, 100, 300, subStatus, at)
	dbtest.SeedTransaction(t, h.conn, 11, 1, orderID, "50000", txnStatus, at)
}

func (h *harness) delivery(t *testing.T, status string, at time.Time) Delivery {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"order_id":           orderID,
		"status_code":        "200",
		"gross_amount":       "50000.00",
		"transaction_status": status,
		"transaction_id":     "gw-123",
		"transaction_time":   at.UTC().Format(signature.TransactionTimeLayout),
	})
	require.NoError(t, err)
	return Delivery{
		Body:      body,
		Signature: signature.Compute(orderID, "200", "50000.00", testSecret),
	}
}

func (h *harness) subscriptionStatus(t *testing.T) string {
	t.Helper()
	var status string
	require.NoError(t, h.conn.Raw(`SELECT status FROM subscriptions WHERE id = 1`).Scan(&status).Error)
	return status
}

func (h *harness) transactionStatus(t *testing.T) string {
	t.Helper()
	var status string
	require.NoError(t, h.conn.Raw(`SELECT status FROM transactions WHERE gateway_order_id = ?`, orderID).Scan(&status).Error)
	return status
}

func TestSettlementActivatesAndGrantsRole(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)
	assert.Empty(t, out.Kind)

	assert.Equal(t, "ACTIVE", h.subscriptionStatus(t))
	assert.Equal(t, "SUCCESS", h.transactionStatus(t))
	require.Equal(t, 1, h.discord.AssignedCount())
	assert.Equal(t, "role-1", h.discord.Assigned[0].RoleID)
	assert.Equal(t, 1, h.discord.DMCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "webhook_events", "verified = ? AND processed = ?", true, true))
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "role_granted"))
}

func TestReplayedSettlementIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	d := h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute))

	results := make([]Result, 0, 3)
	for i := 0; i < 3; i++ {
		out, err := h.orch.Handle(context.Background(), d)
		require.NoError(t, err)
		results = append(results, out.Result)
	}

	assert.Equal(t, []Result{ResultApplied, ResultAlreadyProcessed, ResultAlreadyProcessed}, results)
	assert.Equal(t, 1, h.discord.AssignedCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "subscription_activated"))
	assert.Equal(t, int64(3), dbtest.Count(t, h.conn, "webhook_events", "gateway_order_id = ?", orderID))
	assert.Equal(t, "ACTIVE", h.subscriptionStatus(t))
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	d := h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute))
	d.Signature = signature.Compute(orderID, "200", "1.00", testSecret)

	out, err := h.orch.Handle(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, KindUnverified, KindOf(err))
	assert.True(t, errors.Is(err, ErrInvalidSignature))
	assert.Equal(t, ResultRejected, out.Result)

	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "webhook_events", "verified = ?", false))
	assert.Equal(t, "PENDING", h.subscriptionStatus(t))
	assert.Equal(t, 0, h.discord.AssignedCount())
}

func TestMissingSignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	d := h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute))
	d.Signature = ""

	_, err := h.orch.Handle(context.Background(), d)
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.Equal(t, KindUnverified, KindOf(err))
	assert.Equal(t, "PENDING", h.subscriptionStatus(t))
}

func TestStaleEventIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")

	_, err := h.orch.Handle(context.Background(), h.delivery(t, "settlement", h.clock.Now().Add(-25*time.Hour)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleEvent)
	assert.Equal(t, KindUnverified, KindOf(err))

	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "webhook_events", "processing_error IS NOT NULL"))
	assert.Equal(t, "PENDING", h.subscriptionStatus(t))
	assert.Equal(t, "PENDING", h.transactionStatus(t))
}

func TestMalformedBodyWritesNothing(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Handle(context.Background(), Delivery{Body: []byte(`{"order_id":`), Signature: "x"})
	assert.Equal(t, KindRejectedInput, KindOf(err))

	_, err = h.orch.Handle(context.Background(), Delivery{Body: []byte(`{"order_id":"SUB-1-1","status_code":"200"}`), Signature: "x"})
	assert.Equal(t, KindRejectedInput, KindOf(err))

	assert.Equal(t, int64(0), dbtest.Count(t, h.conn, "webhook_events", ""))
}

func TestRefundCancelsAndRevokes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ACTIVE", "SUCCESS")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "refund", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)

	assert.Equal(t, "CANCELLED", h.subscriptionStatus(t))
	assert.Equal(t, "REFUNDED", h.transactionStatus(t))
	assert.Equal(t, 1, h.discord.RemovedCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "subscription_refunded"))
}

func TestUnknownStatusIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "chargeback_pending", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultAcknowledged, out.Result)
	assert.Equal(t, KindUnrecognized, out.Kind)

	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "webhook_events", "processed = ?", true))
	assert.Equal(t, "PENDING", h.subscriptionStatus(t))
	assert.Equal(t, "PENDING", h.transactionStatus(t))
}

func TestUnknownOrderIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"order_id":"INV-77","status_code":"200","gross_amount":"10.00","transaction_status":"settlement","transaction_id":"gw","transaction_time":"2026-10-17 07:59:00"}`)

	out, err := h.orch.Handle(context.Background(), Delivery{
		Body:      body,
		Signature: signature.Compute("INV-77", "200", "10.00", testSecret),
	})
	require.NoError(t, err)
	assert.Equal(t, ResultAcknowledged, out.Result)
	assert.Equal(t, KindUnrecognized, out.Kind)
	assert.Equal(t, int64(0), dbtest.Count(t, h.conn, "transactions", ""))
}

func TestDenyFailsAndExpireCancels(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")

	_, err := h.orch.Handle(context.Background(), h.delivery(t, "deny", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "FAILED", h.subscriptionStatus(t))
	assert.Equal(t, 0, h.discord.RemovedCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "subscription_failed"))

	h2 := newHarness(t)
	h2.seed(t, "PENDING", "PENDING")
	_, err = h2.orch.Handle(context.Background(), h2.delivery(t, "expire", h2.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", h2.subscriptionStatus(t))
}

func TestGrantFailureStillAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	h.discord.PermissionErr = discord.ErrMissingPermission

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)
	assert.Equal(t, KindCollaboratorFailure, out.Kind)

	assert.Equal(t, "ACTIVE", h.subscriptionStatus(t))
	assert.Equal(t, 0, h.discord.AssignedCount())
	assert.Equal(t, 0, h.discord.DMCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "role_assignment_failed"))
}

func TestLateSettlementOnCancelledSubscription(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "CANCELLED", "PENDING")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "settlement", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, KindInvalidTransition, out.Kind)

	assert.Equal(t, "CANCELLED", h.subscriptionStatus(t))
	assert.Equal(t, "SUCCESS", h.transactionStatus(t))
	assert.Equal(t, 0, h.discord.AssignedCount())
}

func TestPendingAfterSuccessIsStale(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "ACTIVE", "SUCCESS")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "pending", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyProcessed, out.Result)
	assert.Equal(t, "SUCCESS", h.transactionStatus(t))
}

func TestFailureAfterSuccessKeepsSettlement(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	at := h.clock.Now().Add(-time.Minute)

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "settlement", at))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, out.Result)

	for _, status := range []string{"deny", "settlement"} {
		out, err := h.orch.Handle(context.Background(), h.delivery(t, status, at))
		require.NoError(t, err)
		assert.Equal(t, ResultAlreadyProcessed, out.Result, status)
		assert.Empty(t, out.Kind, status)
	}

	assert.Equal(t, "SUCCESS", h.transactionStatus(t))
	assert.Equal(t, "ACTIVE", h.subscriptionStatus(t))
	assert.Equal(t, 1, h.discord.AssignedCount())
	assert.Equal(t, 0, h.discord.RemovedCount())
	assert.Equal(t, int64(1), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "subscription_activated"))
	assert.Equal(t, int64(0), dbtest.Count(t, h.conn, "activity_logs", "action = ?", "subscription_failed"))
}

func TestRefundBeforeActivationKeepsRoleUntouched(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")

	out, err := h.orch.Handle(context.Background(), h.delivery(t, "refund", h.clock.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, out.Result)

	assert.Equal(t, "CANCELLED", h.subscriptionStatus(t))
	assert.Equal(t, "REFUNDED", h.transactionStatus(t))
	assert.Equal(t, 0, h.discord.RemovedCount())
	require.Equal(t, 1, h.discord.DMCount())
	assert.Contains(t, h.discord.DMs[0].Text, "No role was granted")
	assert.NotContains(t, h.discord.DMs[0].Text, "role has been removed")
}

func TestRefundOfRenewalCheckoutRevokes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "PENDING", "PENDING")
	now := h.clock.Now()
	require.NoError(t, h.conn.Exec(`UPDATE subscriptions SET start_date = ?, expiry_date = ? WHERE id = 1`, now.AddDate(0, 0, -20), now.AddDate(0, 0, 10)).Error)

	_, err := h.orch.Handle(context.Background(), h.delivery(t, "refund", now.Add(-time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, "CANCELLED", h.subscriptionStatus(t))
	assert.Equal(t, 1, h.discord.RemovedCount())
	require.Equal(t, 1, h.discord.DMCount())
	assert.Contains(t, h.discord.DMs[0].Text, "role has been removed")
}
