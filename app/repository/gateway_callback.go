package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type GatewayCallbackRepository struct {
	db DBTX
}

func NewGatewayCallbackRepository(db DBTX) *GatewayCallbackRepository {
	return &GatewayCallbackRepository{db: db}
}

func (r *GatewayCallbackRepository) Create(ctx context.Context, callback *entity.GatewayCallback) error {
	query := `
		INSERT INTO gateway_callbacks (
			gateway, transaction_id, order_id, event_type, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		callback.Gateway,
		callback.TransactionID,
		nullableStringValue(callback.OrderID),
		callback.EventType,
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	callback.ID = uint64(id)

	return nil
}

// HasProcessed reports whether the same gateway event was already applied.
func (r *GatewayCallbackRepository) HasProcessed(ctx context.Context, gateway, transactionID, eventType string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gateway_callbacks WHERE gateway = ? AND transaction_id = ? AND event_type = ? AND status = ?`,
		gateway, transactionID, eventType, entity.GatewayCallbackProcessed,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
