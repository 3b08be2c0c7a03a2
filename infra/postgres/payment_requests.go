package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mstgnz/monopay/provider"
)

// StatusPaid is the host status of a settled payment request
const StatusPaid = "Paid"

const schema = `
CREATE TABLE IF NOT EXISTS payment_requests (
	id             TEXT PRIMARY KEY,
	reference_name TEXT NOT NULL,
	grand_total    NUMERIC(18, 2) NOT NULL DEFAULT 0,
	currency       TEXT NOT NULL DEFAULT 'UAH',
	status         TEXT NOT NULL DEFAULT 'Initiated',
	paid_at        TIMESTAMPTZ
)`

// NotFoundError reports a payment request id with no row
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payment request %s not found", e.ID)
}

// Is lets errors.Is(err, provider.ErrUnresolvedOrder) match
func (e *NotFoundError) Is(target error) bool {
	return target == provider.ErrUnresolvedOrder
}

// PaymentRequestRepository reads and settles payment requests in PostgreSQL
type PaymentRequestRepository struct {
	db *sql.DB
}

// NewPaymentRequestRepository creates a repository over db
func NewPaymentRequestRepository(db *sql.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

// Migrate creates the payment_requests table when it does not exist
func (r *PaymentRequestRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create payment_requests table: %w", err)
	}
	return nil
}

// Get loads one payment request
func (r *PaymentRequestRepository) Get(ctx context.Context, id string) (*provider.PaymentRequest, error) {
	query := `SELECT id, reference_name, grand_total, currency, status, paid_at
		FROM payment_requests WHERE id = $1`

	var (
		pr     provider.PaymentRequest
		paidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&pr.ID, &pr.ReferenceName, &pr.GrandTotal, &pr.Currency, &pr.Status, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment request %s: %w", id, err)
	}

	if paidAt.Valid {
		pr.PaidAt = &paidAt.Time
	}
	return &pr, nil
}

// MarkPaid sets the payment request paid. Paying an already paid request is a no-op.
func (r *PaymentRequestRepository) MarkPaid(ctx context.Context, id string) error {
	query := `UPDATE payment_requests SET status = $2, paid_at = NOW()
		WHERE id = $1 AND status <> $2`

	res, err := r.db.ExecContext(ctx, query, id, StatusPaid)
	if err != nil {
		return fmt.Errorf("failed to mark payment request %s paid: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// nothing updated: either already paid or missing
	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payment_requests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check payment request %s: %w", id, err)
	}
	if !exists {
		return &NotFoundError{ID: id}
	}
	return nil
}
