package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// errAbort rolls the transaction back while still returning a business result.
var errAbort = errors.New("abort transaction")

// AtomicRepository holds the transactional reservation and completion
// routines. Inventory rows are locked with SELECT ... FOR UPDATE so
// concurrent checkouts for the same session type are serialized.
type AtomicRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAtomicRepository(db *sql.DB) *AtomicRepository {
	return &AtomicRepository{db: db, now: time.Now}
}

// ReserveSessions marks quantity available files of sessionType as reserved
// for the order. Calling it again for an order that already holds a
// reservation returns the existing reservation.
func (r *AtomicRepository) ReserveSessions(ctx context.Context, sessionType string, quantity int32, orderID string) (*entity.ReservationResult, error) {
	result := &entity.ReservationResult{}
	if quantity <= 0 {
		result.Error = "quantity must be positive"
		return result, nil
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var stock int32
		err := tx.QueryRowContext(ctx,
			`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`,
			sessionType,
		).Scan(&stock)
		if err == sql.ErrNoRows {
			result.Error = "session type not found"
			return errAbort
		}
		if err != nil {
			return fmt.Errorf("lock inventory: %w", err)
		}

		var existing int32
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM session_files WHERE reserved_for_order = ? AND status = 'reserved'`,
			orderID,
		).Scan(&existing); err != nil {
			return fmt.Errorf("count existing reservation: %w", err)
		}
		if existing > 0 {
			result.Success = true
			result.ReservedCount = existing
			result.AvailableCount = stock
			return nil
		}

		var available int32
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`,
			sessionType,
		).Scan(&available); err != nil {
			return fmt.Errorf("count available files: %w", err)
		}
		if available < quantity {
			result.AvailableCount = available
			result.Error = "insufficient stock"
			return errAbort
		}

		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE session_files
			SET status = 'reserved', reserved_for_order = ?, reserved_at = ?
			WHERE type = ? AND status = 'available'
			ORDER BY uploaded_at ASC
			LIMIT ?
		`, orderID, now, sessionType, quantity)
		if err != nil {
			return fmt.Errorf("reserve files: %w", err)
		}
		reserved, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if int32(reserved) < quantity {
			result.AvailableCount = int32(reserved)
			result.Error = "insufficient stock"
			return errAbort
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions_inventory SET quantity = quantity - ?, updated_at = ? WHERE type = ?`,
			quantity, now, sessionType,
		); err != nil {
			return fmt.Errorf("decrement inventory: %w", err)
		}

		result.Success = true
		result.ReservedCount = quantity
		result.AvailableCount = available - quantity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseReservation returns the files reserved for the order to stock. It
// reports how many files were released; zero means nothing was held.
func (r *AtomicRepository) ReleaseReservation(ctx context.Context, orderID string) (int32, error) {
	var released int32

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT type FROM session_files WHERE reserved_for_order = ? AND status = 'reserved' FOR UPDATE`,
			orderID,
		)
		if err != nil {
			return fmt.Errorf("lock reserved files: %w", err)
		}
		perType := map[string]int32{}
		order := make([]string, 0)
		for rows.Next() {
			var sessionType string
			if err := rows.Scan(&sessionType); err != nil {
				rows.Close()
				return err
			}
			if _, ok := perType[sessionType]; !ok {
				order = append(order, sessionType)
			}
			perType[sessionType]++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(order) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE session_files
			SET status = 'available', reserved_for_order = NULL, reserved_at = NULL
			WHERE reserved_for_order = ? AND status = 'reserved'
		`, orderID); err != nil {
			return fmt.Errorf("release files: %w", err)
		}

		now := r.now()
		for _, sessionType := range order {
			count := perType[sessionType]
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions_inventory SET quantity = quantity + ?, updated_at = ? WHERE type = ?`,
				count, now, sessionType,
			); err != nil {
				return fmt.Errorf("increment inventory: %w", err)
			}
			released += count
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// CompleteOrder delivers the purchased product and marks the order
// completed. A second call for a completed order reports AlreadyCompleted
// without touching anything.
func (r *AtomicRepository) CompleteOrder(ctx context.Context, orderID, userID, productType string, quantity int32) (*entity.CompletionResult, error) {
	result := &entity.CompletionResult{}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var status, owner string
		var planID sql.NullString
		var periodDays sql.NullInt32
		var upgradeFrom sql.NullString

		err := tx.QueryRowContext(ctx, `
			SELECT status, user_id, plan_id_snapshot, plan_period_days, upgrade_from_subscription_id
			FROM orders
			WHERE id = ?
			FOR UPDATE
		`, orderID).Scan(&status, &owner, &planID, &periodDays, &upgradeFrom)
		if err == sql.ErrNoRows {
			result.Error = "order not found"
			return errAbort
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if owner != userID {
			result.Error = "order does not belong to user"
			return errAbort
		}

		switch status {
		case entity.OrderStatusCompleted:
			result.Success = true
			result.AlreadyCompleted = true
			return nil
		case entity.OrderStatusCancelled, entity.OrderStatusExpired, entity.OrderStatusRefunded:
			result.Error = "order is " + status
			return errAbort
		}

		now := r.now()
		if productType == entity.ProductTypeSubscription {
			if err := r.activateSubscription(ctx, tx, orderID, userID, planID, periodDays, upgradeFrom, now); err != nil {
				if errors.Is(err, errAbort) {
					result.Error = "order has no plan snapshot"
				}
				return err
			}
		} else {
			delivered, err := r.deliverSessions(ctx, tx, orderID, userID, productType, quantity, now)
			if err != nil {
				return err
			}
			if delivered < quantity {
				result.Error = fmt.Sprintf("insufficient stock to deliver: %d of %d", delivered, quantity)
				return errAbort
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = 'completed', updated_at = ? WHERE id = ?`,
			now, orderID,
		); err != nil {
			return fmt.Errorf("complete order: %w", err)
		}

		result.Success = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deliverSessions sells the reserved files and falls back to free stock when
// the reservation was released in the meantime.
func (r *AtomicRepository) deliverSessions(ctx context.Context, tx *sql.Tx, orderID, userID, sessionType string, quantity int32, now time.Time) (int32, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE session_files
		SET status = 'sold', order_id = ?, user_id = ?, sold_at = ?, reserved_for_order = NULL, reserved_at = NULL
		WHERE reserved_for_order = ? AND status = 'reserved'
	`, orderID, userID, now, orderID)
	if err != nil {
		return 0, fmt.Errorf("sell reserved files: %w", err)
	}
	sold, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if int32(sold) >= quantity {
		return int32(sold), nil
	}

	missing := quantity - int32(sold)
	var stock int32
	if err := tx.QueryRowContext(ctx,
		`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`,
		sessionType,
	).Scan(&stock); err != nil {
		return 0, fmt.Errorf("lock inventory: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE session_files
		SET status = 'sold', order_id = ?, user_id = ?, sold_at = ?
		WHERE type = ? AND status = 'available'
		ORDER BY uploaded_at ASC
		LIMIT ?
	`, orderID, userID, now, sessionType, missing)
	if err != nil {
		return 0, fmt.Errorf("sell available files: %w", err)
	}
	extra, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if extra > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions_inventory SET quantity = quantity - ?, updated_at = ? WHERE type = ?`,
			extra, now, sessionType,
		); err != nil {
			return 0, fmt.Errorf("decrement inventory: %w", err)
		}
	}
	return int32(sold) + int32(extra), nil
}

func (r *AtomicRepository) activateSubscription(
	ctx context.Context,
	tx *sql.Tx,
	orderID, userID string,
	planID sql.NullString,
	periodDays sql.NullInt32,
	upgradeFrom sql.NullString,
	now time.Time,
) error {
	if !planID.Valid || planID.String == "" {
		return errAbort
	}

	if upgradeFrom.Valid && upgradeFrom.String != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_subscriptions
			SET status = 'replaced', updated_at = ?
			WHERE id = ? AND user_id = ? AND status = 'active'
		`, now, upgradeFrom.String, userID); err != nil {
			return fmt.Errorf("replace subscription: %w", err)
		}
	}

	var nextBilling interface{}
	if periodDays.Valid && periodDays.Int32 > 0 {
		nextBilling = now.AddDate(0, 0, int(periodDays.Int32))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_subscriptions (
			id, user_id, plan_id, order_id, status, start_date, next_billing_date, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, 'active', ?, ?, ?, ?)
	`, uuid.NewString(), userID, planID.String, orderID, now, nextBilling, now, now); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// ResyncInventory recounts the available files of sessionType and stores
// the count on its inventory row, creating the row when missing. The row
// lock orders it with concurrent reservations.
func (r *AtomicRepository) ResyncInventory(ctx context.Context, sessionType string) (*entity.InventorySync, error) {
	result := &entity.InventorySync{Type: sessionType}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`,
			sessionType,
		).Scan(&result.Previous)
		if err == sql.ErrNoRows {
			result.Created = true
		} else if err != nil {
			return fmt.Errorf("lock inventory: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`,
			sessionType,
		).Scan(&result.Counted); err != nil {
			return fmt.Errorf("count available files: %w", err)
		}

		now := r.now()
		if result.Created {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sessions_inventory (type, quantity, updated_at) VALUES (?, ?, ?)`,
				sessionType, result.Counted, now,
			); err != nil {
				return fmt.Errorf("insert inventory: %w", err)
			}
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions_inventory SET quantity = ?, updated_at = ? WHERE type = ?`,
			result.Counted, now, sessionType,
		); err != nil {
			return fmt.Errorf("update inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *AtomicRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, errAbort) {
			return nil
		}
		return err
	}
	return tx.Commit()
}
