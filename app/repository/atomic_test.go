package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newAtomicRepo(t *testing.T) (*AtomicRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	repo := NewAtomicRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) }
	return repo, mock
}

func TestReserveSessionsSuccess(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE reserved_for_order = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec(`UPDATE session_files\s+SET status = 'reserved'`).
		WithArgs("order-1", sqlmock.AnyArg(), "brasileiras", 5).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions_inventory SET quantity = quantity - ?`)).
		WithArgs(5, sqlmock.AnyArg(), "brasileiras").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ReserveSessions(context.Background(), "brasileiras", 5, "order-1")
	if err != nil {
		t.Fatalf("ReserveSessions returned error: %v", err)
	}
	if !result.Success || result.ReservedCount != 5 || result.AvailableCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveSessionsInsufficientStockRollsBack(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE reserved_for_order = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	result, err := repo.ReserveSessions(context.Background(), "brasileiras", 5, "order-1")
	if err != nil {
		t.Fatalf("ReserveSessions returned error: %v", err)
	}
	if result.Success || result.AvailableCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveSessionsReturnsExistingReservation(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`)).
		WithArgs("estrangeiras").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE reserved_for_order = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectCommit()

	result, err := repo.ReserveSessions(context.Background(), "estrangeiras", 3, "order-1")
	if err != nil {
		t.Fatalf("ReserveSessions returned error: %v", err)
	}
	if !result.Success || result.ReservedCount != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReleaseReservationReturnsFilesToStock(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT type FROM session_files WHERE reserved_for_order = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).
			AddRow("brasileiras").
			AddRow("brasileiras").
			AddRow("brasileiras"))
	mock.ExpectExec(`UPDATE session_files\s+SET status = 'available'`).
		WithArgs("order-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions_inventory SET quantity = quantity + ?`)).
		WithArgs(3, sqlmock.AnyArg(), "brasileiras").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	released, err := repo.ReleaseReservation(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("ReleaseReservation returned error: %v", err)
	}
	if released != 3 {
		t.Fatalf("expected 3 released, got %d", released)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReleaseReservationWithoutReservationIsNoop(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT type FROM session_files WHERE reserved_for_order = ?`)).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}))
	mock.ExpectCommit()

	released, err := repo.ReleaseReservation(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("ReleaseReservation returned error: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected nothing released, got %d", released)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func expectLockOrder(mock sqlmock.Sqlmock, status string, planID, upgradeFrom interface{}, period interface{}) {
	mock.ExpectQuery(`SELECT status, user_id, plan_id_snapshot`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"status", "user_id", "plan_id_snapshot", "plan_period_days", "upgrade_from_subscription_id",
		}).AddRow(status, "user-1", planID, period, upgradeFrom))
}

func TestCompleteOrderAlreadyCompleted(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	expectLockOrder(mock, "completed", nil, nil, nil)
	mock.ExpectCommit()

	result, err := repo.CompleteOrder(context.Background(), "order-1", "user-1", "brasileiras", 5)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}
	if !result.Success || !result.AlreadyCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteOrderRefusesCancelledOrder(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	expectLockOrder(mock, "cancelled", nil, nil, nil)
	mock.ExpectRollback()

	result, err := repo.CompleteOrder(context.Background(), "order-1", "user-1", "brasileiras", 5)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteOrderSellsReservedSessions(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	expectLockOrder(mock, "pending", nil, nil, nil)
	mock.ExpectExec(`UPDATE session_files\s+SET status = 'sold'`).
		WithArgs("order-1", "user-1", sqlmock.AnyArg(), "order-1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = 'completed'`)).
		WithArgs(sqlmock.AnyArg(), "order-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.CompleteOrder(context.Background(), "order-1", "user-1", "brasileiras", 5)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}
	if !result.Success || result.AlreadyCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteOrderActivatesUpgradedSubscription(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	expectLockOrder(mock, "pending", "plan-pro", "sub-old", 30)
	mock.ExpectExec(`UPDATE user_subscriptions\s+SET status = 'replaced'`).
		WithArgs(sqlmock.AnyArg(), "sub-old", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_subscriptions`).
		WithArgs(sqlmock.AnyArg(), "user-1", "plan-pro", "order-1", sqlmock.AnyArg(),
			time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = 'completed'`)).
		WithArgs(sqlmock.AnyArg(), "order-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.CompleteOrder(context.Background(), "order-1", "user-1", "subscription", 1)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompleteOrderMissingOrder(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, user_id, plan_id_snapshot`).
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	result, err := repo.CompleteOrder(context.Background(), "order-1", "user-1", "brasileiras", 1)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}
	if result.Success || result.Error != "order not found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestResyncInventoryOverwritesDriftedQuantity(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(9))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`)).
		WithArgs("brasileiras").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions_inventory SET quantity = ?, updated_at = ? WHERE type = ?`)).
		WithArgs(7, sqlmock.AnyArg(), "brasileiras").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ResyncInventory(context.Background(), "brasileiras")
	if err != nil {
		t.Fatalf("ResyncInventory returned error: %v", err)
	}
	if result.Created || result.Previous != 9 || result.Counted != 7 || result.Drift() != -2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResyncInventoryCreatesMissingRow(t *testing.T) {
	repo, mock := newAtomicRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity FROM sessions_inventory WHERE type = ? FOR UPDATE`)).
		WithArgs("estrangeiras").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM session_files WHERE type = ? AND status = 'available'`)).
		WithArgs("estrangeiras").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions_inventory (type, quantity, updated_at) VALUES (?, ?, ?)`)).
		WithArgs("estrangeiras", 12, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ResyncInventory(context.Background(), "estrangeiras")
	if err != nil {
		t.Fatalf("ResyncInventory returned error: %v", err)
	}
	if !result.Created || result.Counted != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
