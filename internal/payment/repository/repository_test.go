package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/pkg/db"
	"github.com/smallbiznis/guildpass/pkg/db/dbtest"
	"gorm.io/datatypes"
)

func TestTransactionUpdateStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := ProvideTransactions()
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	tx := &domain.Transaction{
		ID:             snowflake.ID(1),
		SubscriptionID: snowflake.ID(10),
		GatewayOrderID: "SUB-10-1792224000",
		Amount:         decimal.RequireFromString("50000.00"),
		Currency:       "IDR",
		Status:         domain.TransactionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.Insert(ctx, conn, tx); err != nil {
		t.Fatalf("insert: %v", err)
	}

	gatewayID := "gw-1"
	update := domain.StatusUpdate{
		GatewayOrderID:       tx.GatewayOrderID,
		Status:               domain.TransactionStatusSuccess,
		GatewayTransactionID: &gatewayID,
		PaymentDate:          &now,
		UpdatedAt:            now,
	}
	changed, err := repo.UpdateStatus(ctx, conn, update)
	if err != nil || !changed {
		t.Fatalf("first update: changed=%v err=%v", changed, err)
	}
	changed, err = repo.UpdateStatus(ctx, conn, update)
	if err != nil || changed {
		t.Fatalf("second update should be a no-op: changed=%v err=%v", changed, err)
	}

	stored, err := repo.FindByOrderID(ctx, conn, tx.GatewayOrderID)
	if err != nil || stored == nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", stored.Status)
	}
	if stored.GatewayTransactionID == nil || *stored.GatewayTransactionID != gatewayID {
		t.Fatalf("expected gateway transaction id to be stored")
	}
	if !stored.Amount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected amount %s", stored.Amount)
	}
}

func TestTransactionUpdateStatusHonoursFrom(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := ProvideTransactions()
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	dbtest.SeedTransaction(t, conn, 1, 10, "SUB-10-1", "1000", "SUCCESS", now)

	changed, err := repo.UpdateStatus(ctx, conn, domain.StatusUpdate{
		GatewayOrderID: "SUB-10-1",
		From:           domain.TransactionStatusPending,
		Status:         domain.TransactionStatusFailed,
		UpdatedAt:      now,
	})
	if err != nil || changed {
		t.Fatalf("stale from must not match: changed=%v err=%v", changed, err)
	}

	changed, err = repo.UpdateStatus(ctx, conn, domain.StatusUpdate{
		GatewayOrderID: "SUB-10-1",
		From:           domain.TransactionStatusSuccess,
		Status:         domain.TransactionStatusRefunded,
		UpdatedAt:      now,
	})
	if err != nil || !changed {
		t.Fatalf("expected refund to apply: changed=%v err=%v", changed, err)
	}
}

func TestTransactionInsertRejectsDuplicateOrderID(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := ProvideTransactions()
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	for i, id := range []int64{1, 2} {
		err := repo.Insert(ctx, conn, &domain.Transaction{
			ID:             snowflake.ID(id),
			SubscriptionID: snowflake.ID(10),
			GatewayOrderID: "SUB-10-1792224000",
			Amount:         decimal.NewFromInt(1000),
			Currency:       "IDR",
			Status:         domain.TransactionStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if i == 0 && err != nil {
			t.Fatalf("insert: %v", err)
		}
		if i == 1 && !db.IsDuplicateKeyErr(err) {
			t.Fatalf("expected duplicate key error, got %v", err)
		}
	}
}

func TestFindMissingTransactionReturnsNil(t *testing.T) {
	conn := dbtest.Open(t)
	item, err := ProvideTransactions().FindByOrderID(context.Background(), conn, "SUB-404-1")
	if err != nil || item != nil {
		t.Fatalf("expected nil, nil; got %v, %v", item, err)
	}
}

func TestFindLatestBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	base := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	dbtest.SeedTransaction(t, conn, 1, 10, "SUB-10-1", "1000", "FAILED", base)
	dbtest.SeedTransaction(t, conn, 2, 10, "SUB-10-2", "1000", "PENDING", base.Add(time.Minute))

	latest, err := ProvideTransactions().FindLatestBySubscriptionID(ctx, conn, snowflake.ID(10))
	if err != nil || latest == nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.GatewayOrderID != "SUB-10-2" {
		t.Fatalf("expected newest transaction, got %s", latest.GatewayOrderID)
	}
}

func TestWebhookEventMarkProcessedOnce(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := ProvideWebhookEvents()
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	event := &domain.WebhookEvent{
		ID:             snowflake.ID(7),
		GatewayOrderID: "SUB-10-1",
		Payload:        datatypes.JSON(`{"order_id":"SUB-10-1"}`),
		Signature:      "abc",
		Verified:       true,
		ReceivedAt:     now,
	}
	if err := repo.Insert(ctx, conn, event); err != nil {
		t.Fatalf("insert: %v", err)
	}

	note := "unknown_status"
	if err := repo.MarkProcessed(ctx, conn, event.ID, &note, now); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	other := "ignored"
	if err := repo.MarkProcessed(ctx, conn, event.ID, &other, now.Add(time.Minute)); err != nil {
		t.Fatalf("mark processed again: %v", err)
	}

	events, err := repo.ListByOrderID(ctx, conn, "SUB-10-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if !got.Processed || got.ProcessingError == nil || *got.ProcessingError != note {
		t.Fatalf("unexpected event state: %+v", got)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(now) {
		t.Fatalf("processed_at should keep the first flip, got %v", got.ProcessedAt)
	}
}
