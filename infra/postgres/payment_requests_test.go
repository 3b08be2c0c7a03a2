package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mstgnz/monopay/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "reference_name", "grand_total", "currency", "status", "paid_at"}

func newMockRepo(t *testing.T) (*PaymentRequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPaymentRequestRepository(db), mock
}

func TestPaymentRequestRepository_Get(t *testing.T) {
	repo, mock := newMockRepo(t)
	paidAt := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference_name, grand_total, currency, status, paid_at FROM payment_requests WHERE id = \\$1").
			WithArgs("PR-001").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("PR-001", "SO-0001", "5.00", "USD", "Initiated", nil))

		pr, err := repo.Get(context.Background(), "PR-001")
		require.NoError(t, err)
		assert.Equal(t, "PR-001", pr.ID)
		assert.Equal(t, "SO-0001", pr.ReferenceName)
		assert.True(t, decimal.RequireFromString("5").Equal(pr.GrandTotal))
		assert.Nil(t, pr.PaidAt)
	})

	t.Run("Paid", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference_name").
			WithArgs("PR-002").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("PR-002", "SO-2", "10.50", "UAH", StatusPaid, paidAt))

		pr, err := repo.Get(context.Background(), "PR-002")
		require.NoError(t, err)
		require.NotNil(t, pr.PaidAt)
		assert.True(t, paidAt.Equal(*pr.PaidAt))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference_name").
			WithArgs("PR-404").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "PR-404")
		assert.ErrorIs(t, err, provider.ErrUnresolvedOrder)

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "PR-404", nf.ID)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference_name").WillReturnError(errors.New("db error"))

		_, err := repo.Get(context.Background(), "PR-001")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, provider.ErrUnresolvedOrder)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRequestRepository_MarkPaid(t *testing.T) {
	repo, mock := newMockRepo(t)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE payment_requests SET status = \\$2, paid_at = NOW\\(\\)").
			WithArgs("PR-001", StatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkPaid(context.Background(), "PR-001"))
	})

	t.Run("AlreadyPaid", func(t *testing.T) {
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("PR-001", StatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("PR-001").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.NoError(t, repo.MarkPaid(context.Background(), "PR-001"))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("PR-404", StatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("PR-404").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := repo.MarkPaid(context.Background(), "PR-404")
		assert.ErrorIs(t, err, provider.ErrUnresolvedOrder)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec("UPDATE payment_requests").WillReturnError(errors.New("connection reset"))

		err := repo.MarkPaid(context.Background(), "PR-001")
		assert.ErrorContains(t, err, "connection reset")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRequestRepository_Migrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payment_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Migrate(context.Background()))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.Error(t, repo.Migrate(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}
