package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guildpass/internal/payment/domain"
	"gorm.io/gorm"
)

type webhookEventRepo struct{}

func ProvideWebhookEvents() domain.WebhookEventRepository {
	return &webhookEventRepo{}
}

func (r *webhookEventRepo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, gateway_order_id, payload, signature, verified, processed,
			processing_error, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.GatewayOrderID,
		event.Payload,
		event.Signature,
		event.Verified,
		event.Processed,
		event.ProcessingError,
		event.ReceivedAt,
		event.ProcessedAt,
	).Error
}

// MarkProcessed flips processed once. note is kept only when the row has no error yet.
func (r *webhookEventRepo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		SET processed = ?,
			processed_at = ?,
			processing_error = COALESCE(processing_error, ?)
		WHERE id = ? AND processed = ?`,
		true,
		processedAt,
		note,
		id,
		false,
	).Error
}

func (r *webhookEventRepo) ListByOrderID(ctx context.Context, db *gorm.DB, orderID string) ([]domain.WebhookEvent, error) {
	var items []domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway_order_id, payload, signature, verified, processed,
			processing_error, received_at, processed_at
		FROM webhook_events
		WHERE gateway_order_id = ?
		ORDER BY received_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
