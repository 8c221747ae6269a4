package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

func saleRows(id uuid.UUID, status valueobject.PaymentStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "listing_id", "buyer_id", "seller_id", "item_price", "platform_fee", "total_amount",
		"payment_status", "dispute_status", "buyer_confirmed_receipt", "stripe_charge_id",
	}).AddRow(
		id.String(), uuid.NewString(), uuid.NewString(), uuid.NewString(), "100.00", "0.00", "100.00",
		string(status), "none", false, "ch_1",
	)
}

func TestSaleRepository_Transition_Persists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSaleRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM sales WHERE id = \$1 FOR UPDATE`).WithArgs(id).WillReturnRows(saleRows(id, valueobject.PaymentStatusPaid))
	mock.ExpectExec(`UPDATE sales SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sale_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sale, err := repo.Transition(context.Background(), id, &TransitionMeta{Action: models.SaleActionHeld}, func(s *models.Sale) error {
		return s.Hold("проверка", time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusOnHold, sale.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaleRepository_Transition_GuardErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSaleRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(saleRows(id, valueobject.PaymentStatusReleased))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), id, &TransitionMeta{Action: models.SaleActionHeld}, func(s *models.Sale) error {
		return s.Hold("поздно", time.Now())
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaleRepository_Transition_NoChange(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSaleRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(saleRows(id, valueobject.PaymentStatusPaid))
	mock.ExpectRollback()

	sale, err := repo.Transition(context.Background(), id, &TransitionMeta{Action: models.SaleActionPaid}, func(*models.Sale) error {
		return common.ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, id, sale.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaleRepository_Transition_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSaleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), uuid.New(), nil, func(*models.Sale) error { return nil })
	assert.True(t, errors.Is(err, ErrSaleNotFound))
}

func TestSaleRepository_CountAutoReleaseEligible(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSaleRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sales WHERE`).
		WithArgs(now, nil).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountAutoReleaseEligible(context.Background(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
