package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guildpass/internal/payment/domain"
	"gorm.io/gorm"
)

type transactionRepo struct{}

func ProvideTransactions() domain.TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, subscription_id, gateway_order_id, amount, currency, status,
	gateway_transaction_id, payment_date, created_at, updated_at`

func (r *transactionRepo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.SubscriptionID,
		tx.GatewayOrderID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.GatewayTransactionID,
		tx.PaymentDate,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *transactionRepo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		FROM transactions
		WHERE gateway_order_id = ?
		LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *transactionRepo) FindLatestBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		FROM transactions
		WHERE subscription_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		subscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (bool, error) {
	query := `UPDATE transactions
		SET status = ?,
			gateway_transaction_id = COALESCE(?, gateway_transaction_id),
			payment_date = COALESCE(?, payment_date),
			updated_at = ?
		WHERE gateway_order_id = ? AND status <> ?`
	args := []any{
		update.Status,
		update.GatewayTransactionID,
		update.PaymentDate,
		update.UpdatedAt,
		update.GatewayOrderID,
		update.Status,
	}
	if update.From != "" {
		query += ` AND status = ?`
		args = append(args, update.From)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
