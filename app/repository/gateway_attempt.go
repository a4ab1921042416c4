package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type GatewayAttemptRepository struct {
	db DBTX
}

func NewGatewayAttemptRepository(db DBTX) *GatewayAttemptRepository {
	return &GatewayAttemptRepository{db: db}
}

func (r *GatewayAttemptRepository) Create(ctx context.Context, attempt *entity.GatewayAttempt) error {
	query := `
		INSERT INTO gateway_attempts (
			gateway, order_id, method, attempt, success, error, latency_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		attempt.Gateway,
		attempt.OrderID,
		attempt.Method,
		attempt.Attempt,
		attempt.Success,
		nullableStringValue(attempt.Error),
		attempt.LatencyMS,
		attempt.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	attempt.ID = uint64(id)

	return nil
}
