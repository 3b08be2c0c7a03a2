package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/monopay/provider"
)

// SQLiteInvoiceCache keeps the pending invoice mapping in a SQLite table so it
// survives restarts. It is usually opened on the settings database file.
type SQLiteInvoiceCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteInvoiceCache creates the mono_invoices table on db when missing.
// ttl <= 0 keeps entries until they are settled.
func NewSQLiteInvoiceCache(ctx context.Context, db *sql.DB, ttl time.Duration) (*SQLiteInvoiceCache, error) {
	query := `
	CREATE TABLE IF NOT EXISTS ` + provider.InvoiceCacheName + ` (
		invoice_id TEXT PRIMARY KEY,
		payment_request_id TEXT NOT NULL,
		expires_at INTEGER
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to create invoice cache table: %w", err)
	}

	return &SQLiteInvoiceCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Set stores or replaces the mapping for invoiceID
func (c *SQLiteInvoiceCache) Set(ctx context.Context, invoiceID, paymentRequestID string) error {
	query := `INSERT INTO ` + provider.InvoiceCacheName + ` (invoice_id, payment_request_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(invoice_id) DO UPDATE SET
			payment_request_id = excluded.payment_request_id,
			expires_at = excluded.expires_at`

	if _, err := c.db.ExecContext(ctx, query, invoiceID, paymentRequestID, c.expiresAt()); err != nil {
		return fmt.Errorf("failed to store invoice %s: %w", invoiceID, err)
	}
	return nil
}

// Get returns the payment request mapped to invoiceID
func (c *SQLiteInvoiceCache) Get(ctx context.Context, invoiceID string) (string, bool, error) {
	query := `SELECT payment_request_id FROM ` + provider.InvoiceCacheName + `
		WHERE invoice_id = ? AND (expires_at IS NULL OR expires_at > ?)`

	var prID string
	err := c.db.QueryRowContext(ctx, query, invoiceID, c.now().Unix()).Scan(&prID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read invoice %s: %w", invoiceID, err)
	}
	return prID, true, nil
}

// Delete removes the mapping for invoiceID
func (c *SQLiteInvoiceCache) Delete(ctx context.Context, invoiceID string) error {
	query := `DELETE FROM ` + provider.InvoiceCacheName + ` WHERE invoice_id = ?`
	if _, err := c.db.ExecContext(ctx, query, invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice %s: %w", invoiceID, err)
	}
	return nil
}

// CompareAndDelete removes the mapping only if it still points at paymentRequestID
func (c *SQLiteInvoiceCache) CompareAndDelete(ctx context.Context, invoiceID, paymentRequestID string) (bool, error) {
	query := `DELETE FROM ` + provider.InvoiceCacheName + `
		WHERE invoice_id = ? AND payment_request_id = ? AND (expires_at IS NULL OR expires_at > ?)`

	res, err := c.db.ExecContext(ctx, query, invoiceID, paymentRequestID, c.now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to claim invoice %s: %w", invoiceID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected == 1, nil
}

// Cleanup removes expired rows and returns how many were removed
func (c *SQLiteInvoiceCache) Cleanup(ctx context.Context) (int64, error) {
	query := `DELETE FROM ` + provider.InvoiceCacheName + ` WHERE expires_at IS NOT NULL AND expires_at <= ?`

	res, err := c.db.ExecContext(ctx, query, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean invoice cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *SQLiteInvoiceCache) expiresAt() any {
	if c.ttl <= 0 {
		return nil
	}
	return c.now().Add(c.ttl).Unix()
}
