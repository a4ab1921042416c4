package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db, mock
}

var orderRowColumns = []string{
	"id", "user_id", "product_name", "product_type", "quantity", "amount_cents", "status", "payment_method",
	"plan_id_snapshot", "plan_period_days", "plan_features_snapshot",
	"upgrade_credit_cents", "upgrade_from_subscription_id",
	"created_at", "updated_at",
}

func TestOrderCreateMapsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	now := time.Now().UTC()
	order := &entity.Order{
		ID:          "order-1",
		UserID:      "user-1",
		ProductName: "5 sessões brasileiras",
		ProductType: entity.ProductTypeBrazilian,
		Quantity:    5,
		AmountCents: 1990,
		Status:      entity.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnError(&mysqlDuplicate)

	if err := repo.Create(context.Background(), order); err != ErrOrderAlreadyExists {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
}

func TestOrderTransitionStatusGuarded(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)).
		WithArgs("cancelled", sqlmock.AnyArg(), "order-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.TransitionStatus(context.Background(), "order-1", "pending", "cancelled", time.Now())
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if changed {
		t.Fatal("expected no change when status guard fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderFindByIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`FROM orders WHERE id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	order, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil order, got %+v", order)
	}
}

func TestOrderFindLatestPendingScansSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	since := created.Add(-30 * time.Minute)
	mock.ExpectQuery(`WHERE user_id = \? AND product_type = \? AND status = 'pending'`).
		WithArgs("user-1", "subscription", since).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			"order-1", "user-1", "Pro", "subscription", 1, 4990, "pending", "pix",
			"plan-pro", 30, `["bot","support"]`,
			1000, "sub-old",
			created, created,
		))

	order, err := repo.FindLatestPending(context.Background(), "user-1", "subscription", since)
	if err != nil {
		t.Fatalf("FindLatestPending returned error: %v", err)
	}
	if order == nil || order.ID != "order-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.PlanPeriodDays == nil || *order.PlanPeriodDays != 30 {
		t.Fatalf("unexpected period: %v", order.PlanPeriodDays)
	}
	if len(order.PlanFeaturesSnapshot) != 2 || order.PlanFeaturesSnapshot[1] != "support" {
		t.Fatalf("unexpected features: %v", order.PlanFeaturesSnapshot)
	}
	if order.UpgradeCreditCents == nil || *order.UpgradeCreditCents != 1000 {
		t.Fatalf("unexpected credit: %v", order.UpgradeCreditCents)
	}
}

func TestOrderCountPendingSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	since := time.Date(2026, 1, 10, 11, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = 'pending'`)).
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountPendingSince(context.Background(), "user-1", since)
	if err != nil {
		t.Fatalf("CountPendingSince returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}
