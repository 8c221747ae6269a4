package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

type disputeFixture struct {
	*escrowFixture
	refunds  *RefundService
	disputes *DisputeService
	admin    Identity
}

func newDisputeFixture(seller *models.User, sales ...*models.Sale) *disputeFixture {
	admin := newAdmin()
	ef := newEscrowFixture([]*models.User{seller, admin}, sales...)
	authz := NewAuthorizer(ef.users)

	refunds := NewRefundService(ef.sales, ef.provider, authz, ef.notifier, ef.invoices)
	refunds.now = fixedClock
	disputes := NewDisputeService(ef.sales, ef.svc, refunds, authz, ef.notifier, 72*time.Hour)
	disputes.now = fixedClock

	return &disputeFixture{
		escrowFixture: ef,
		refunds:       refunds,
		disputes:      disputes,
		admin:         Identity{UserID: admin.ID, Role: models.RoleAdmin},
	}
}

func disputedSale(sellerID uuid.UUID) *models.Sale {
	s := paidSale(sellerID)
	opened := testNow.Add(-time.Hour)
	s.PaymentStatus = valueobject.PaymentStatusDisputed
	s.DisputeStatus = valueobject.DisputeStatusOpened
	s.DisputeOpenedAt = &opened
	return s
}

func TestDispute_ResolveReleaseToSeller(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := disputedSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	f.provider.On("Transfer", mock.Anything, mock.Anything).Return(&payout.TransferResult{TransferID: "tr_d"}, nil).Once()

	res, err := f.disputes.Resolve(context.Background(), sale.ID, f.admin, "release_to_seller", "товар доставлен")
	require.NoError(t, err)

	assert.Equal(t, valueobject.PaymentStatusReleased, res.Sale.PaymentStatus)
	assert.Equal(t, valueobject.DisputeStatusResolved, res.Sale.DisputeStatus)
	require.NotNil(t, res.Release)
	assert.Equal(t, "tr_d", res.Release.TransferID)
	assert.Equal(t, []string{models.SaleActionDisputeResolved, models.SaleActionReleased}, f.sales.actions(sale.ID))
}

func TestDispute_ResolveReleaseWaitsForOnboarding(t *testing.T) {
	seller := newSeller("", false)
	sale := disputedSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	ctx := context.Background()

	res, err := f.disputes.Resolve(ctx, sale.ID, f.admin, "release_to_seller", "товар доставлен")
	require.NoError(t, err)
	require.NotNil(t, res.Release)
	assert.True(t, res.Release.PendingOnboarding)
	assert.False(t, res.Release.Released)

	stored := f.sales.get(sale.ID)
	assert.Equal(t, valueobject.PaymentStatusReleasePendingOnboarding, stored.PaymentStatus)
	assert.Equal(t, valueobject.DisputeStatusResolved, stored.DisputeStatus)
	f.provider.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	events, err := f.sales.ListEvents(ctx, sale.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, valueobject.PaymentStatusDisputed, last.OldStatus)
	assert.Equal(t, valueobject.PaymentStatusReleasePendingOnboarding, last.NewStatus)

	// Продавец подключил счёт: выплата уходит через очередь ожидающих.
	seller.StripeAccountID = strPtr("acct_late")
	seller.PayoutsEnabled = true
	f.provider.On("Transfer", mock.Anything, mock.Anything).Return(&payout.TransferResult{TransferID: "tr_late"}, nil).Once()

	batch, err := f.svc.ProcessPendingPayouts(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch.Errors)
	assert.Equal(t, valueobject.PaymentStatusReleased, f.sales.get(sale.ID).PaymentStatus)
}

func TestDispute_ResolveHeldOrderWaitsForOnboarding(t *testing.T) {
	seller := newSeller("", false)
	sale := paidSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	ctx := context.Background()

	_, err := f.svc.Hold(ctx, sale.ID, f.admin, "проверка")
	require.NoError(t, err)

	res, err := f.disputes.Resolve(ctx, sale.ID, f.admin, "release_to_seller", "")
	require.NoError(t, err)
	assert.True(t, res.Release.PendingOnboarding)
	assert.Equal(t, valueobject.PaymentStatusReleasePendingOnboarding, f.sales.get(sale.ID).PaymentStatus)
}

func TestDispute_ResolveRefundBuyer(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := disputedSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	f.provider.On("Refund", mock.Anything, mock.MatchedBy(func(req payout.RefundRequest) bool {
		return req.ChargeID == "ch_1" && req.Amount.Equal(dec("100")) && req.IdempotencyKey == "refund-"+sale.ID.String()
	})).Return(&payout.RefundResult{RefundID: "re_d"}, nil).Once()

	res, err := f.disputes.Resolve(context.Background(), sale.ID, f.admin, "refund_buyer", "")
	require.NoError(t, err)

	assert.Equal(t, valueobject.PaymentStatusRefunded, res.Sale.PaymentStatus)
	assert.Equal(t, "re_d", *res.Sale.StripeRefundID)
	assert.Equal(t, []uuid.UUID{sale.ID}, f.invoices.cancelled)
	f.provider.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestDispute_ResolveClose(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := disputedSale(seller.ID)
	f := newDisputeFixture(seller, sale)

	res, err := f.disputes.Resolve(context.Background(), sale.ID, f.admin, "close", "покупатель отозвал претензию")
	require.NoError(t, err)

	assert.Equal(t, valueobject.DisputeStatusClosed, res.Sale.DisputeStatus)
	assert.Equal(t, valueobject.PaymentStatusReleasePending, res.Sale.PaymentStatus)
	require.NotNil(t, res.Sale.AutoReleaseAt)
	assert.Equal(t, testNow.Add(72*time.Hour), *res.Sale.AutoReleaseAt)
	assert.Nil(t, res.Release)
}

func TestDispute_ResolveHeldOrder(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := paidSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	ctx := context.Background()

	_, err := f.svc.Hold(ctx, sale.ID, f.admin, "проверка")
	require.NoError(t, err)

	f.provider.On("Refund", mock.Anything, mock.Anything).Return(&payout.RefundResult{RefundID: "re_h"}, nil).Once()
	res, err := f.disputes.Resolve(ctx, sale.ID, f.admin, "refund_buyer", "")
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusRefunded, res.Sale.PaymentStatus)
}

func TestDispute_ResolveGuards(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := paidSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	ctx := context.Background()

	_, err := f.disputes.Resolve(ctx, sale.ID, Identity{UserID: sale.BuyerID}, "close", "")
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.disputes.Resolve(ctx, sale.ID, f.admin, "split_50_50", "")
	assert.True(t, apperror.IsValidation(err))

	_, err = f.disputes.Resolve(ctx, sale.ID, f.admin, "close", strings.Repeat("я", 2001))
	assert.True(t, apperror.IsValidation(err))

	_, err = f.disputes.Resolve(ctx, sale.ID, f.admin, "close", "")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestDispute_ResolveMoneyStepFailureKeepsDecision(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := disputedSale(seller.ID)
	f := newDisputeFixture(seller, sale)
	f.provider.On("Transfer", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down")).Once()

	_, err := f.disputes.Resolve(context.Background(), sale.ID, f.admin, "release_to_seller", "")
	assert.True(t, apperror.IsExternalService(err))

	stored := f.sales.get(sale.ID)
	assert.Equal(t, valueobject.DisputeStatusResolved, stored.DisputeStatus)
	assert.Equal(t, valueobject.PaymentStatusDisputed, stored.PaymentStatus)

	f.provider.On("Transfer", mock.Anything, mock.Anything).Return(&payout.TransferResult{TransferID: "tr_retry"}, nil).Once()
	retry, err := f.svc.ReleaseByAdmin(context.Background(), sale.ID, f.admin)
	require.NoError(t, err)
	assert.True(t, retry.Released)
}

func TestDispute_MarkUnderReviewAndList(t *testing.T) {
	seller := newSeller("acct_1", true)
	sale := disputedSale(seller.ID)
	other := paidSale(seller.ID)
	f := newDisputeFixture(seller, sale, other)
	ctx := context.Background()

	reviewed, err := f.disputes.MarkUnderReview(ctx, sale.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusUnderReview, reviewed.DisputeStatus)

	list, err := f.disputes.ListDisputes(ctx, f.admin, "under_review", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sale.ID, list[0].ID)

	all, err := f.disputes.ListDisputes(ctx, f.admin, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.disputes.ListDisputes(ctx, f.admin, "bogus", 10, 0)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.disputes.ListDisputes(ctx, Identity{UserID: seller.ID}, "", 10, 0)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.disputes.MarkUnderReview(ctx, other.ID, f.admin)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, valueobject.DisputeStatusNone, f.sales.get(other.ID).DisputeStatus)
}
