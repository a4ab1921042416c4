package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, order_id, user_id, amount_cents, method, status,
	gateway, gateway_transaction_id, pix_code, qr_code_base64,
	boleto_code, boleto_url, boleto_due_date, paid_at,
	created_at, updated_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.UserID,
		payment.AmountCents,
		payment.Method,
		payment.Status,
		nullableStringValue(payment.Gateway),
		nullableStringValue(payment.GatewayTransactionID),
		nullableStringValue(payment.PixCode),
		nullableStringValue(payment.QRCodeBase64),
		nullableStringValue(payment.BoletoCode),
		nullableStringValue(payment.BoletoURL),
		nullableStringValue(payment.BoletoDueDate),
		nullableTimeValue(payment.PaidAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			amount_cents = ?,
			method = ?,
			status = ?,
			gateway = ?,
			gateway_transaction_id = ?,
			pix_code = ?,
			qr_code_base64 = ?,
			boleto_code = ?,
			boleto_url = ?,
			boleto_due_date = ?,
			paid_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.AmountCents,
		payment.Method,
		payment.Status,
		nullableStringValue(payment.Gateway),
		nullableStringValue(payment.GatewayTransactionID),
		nullableStringValue(payment.PixCode),
		nullableStringValue(payment.QRCodeBase64),
		nullableStringValue(payment.BoletoCode),
		nullableStringValue(payment.BoletoURL),
		nullableStringValue(payment.BoletoDueDate),
		nullableTimeValue(payment.PaidAt),
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaid moves a pending or superseded payment to paid. A superseded
// charge can still be paid by the buyer. Only one caller can win it.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'paid', paid_at = ?, updated_at = ? WHERE id = ? AND status IN ('pending', 'cancelled')`,
		paidAt, paidAt, id,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearPixArtifact drops the PIX code of a payment that is still pending.
func (r *PaymentRepository) ClearPixArtifact(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET pix_code = NULL, qr_code_base64 = NULL, updated_at = ? WHERE id = ? AND status = 'pending' AND pix_code IS NOT NULL`,
		now, id,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

// FindLatestByOrderID returns the most recent payment attempt of an order.
func (r *PaymentRepository) FindLatestByOrderID(ctx context.Context, orderID string) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, orderID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) FindByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway = ? AND gateway_transaction_id = ?
		LIMIT 1
	`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, gateway, transactionID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPendingWithTransaction returns pending payments that already have a
// gateway transaction and were last touched before the given time.
func (r *PaymentRepository) ListPendingWithTransaction(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending'
			AND gateway_transaction_id IS NOT NULL
			AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, before, limit)
}

// ListPaidWithPendingOrder returns paid payments whose order was never
// completed, paid before the given time.
func (r *PaymentRepository) ListPaidWithPendingOrder(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + prefixedPaymentColumns + `
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.status = 'paid'
			AND o.status = 'pending'
			AND p.paid_at <= ?
		ORDER BY p.paid_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, before, limit)
}

const prefixedPaymentColumns = `
	p.id, p.order_id, p.user_id, p.amount_cents, p.method, p.status,
	p.gateway, p.gateway_transaction_id, p.pix_code, p.qr_code_base64,
	p.boleto_code, p.boleto_url, p.boleto_due_date, p.paid_at,
	p.created_at, p.updated_at
`

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var gateway sql.NullString
	var transactionID sql.NullString
	var pixCode sql.NullString
	var qrCode sql.NullString
	var boletoCode sql.NullString
	var boletoURL sql.NullString
	var boletoDueDate sql.NullString
	var paidAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.UserID,
		&payment.AmountCents,
		&payment.Method,
		&payment.Status,
		&gateway,
		&transactionID,
		&pixCode,
		&qrCode,
		&boletoCode,
		&boletoURL,
		&boletoDueDate,
		&paidAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.Gateway = stringPtrFromNull(gateway)
	payment.GatewayTransactionID = stringPtrFromNull(transactionID)
	payment.PixCode = stringPtrFromNull(pixCode)
	payment.QRCodeBase64 = stringPtrFromNull(qrCode)
	payment.BoletoCode = stringPtrFromNull(boletoCode)
	payment.BoletoURL = stringPtrFromNull(boletoURL)
	payment.BoletoDueDate = stringPtrFromNull(boletoDueDate)
	payment.PaidAt = timePtrFromNull(paidAt)
	return nil
}
