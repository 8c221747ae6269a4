package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

type invoiceFixture struct {
	sales    *fakeSaleRepo
	listings *fakeListingRepo
	invoices *fakeInvoiceRepo
	users    *fakeUserRepo
	notifier *recordingNotifier
	svc      *InvoiceService
	seller   *models.User
	admin    Identity
}

func newInvoiceFixture(sales ...*models.Sale) *invoiceFixture {
	seller := newSeller("acct_1", true)
	admin := newAdmin()
	saleRepo := newFakeSaleRepo(sales...)
	f := &invoiceFixture{
		sales:    saleRepo,
		listings: newFakeListingRepo(saleRepo),
		invoices: newFakeInvoiceRepo(),
		users:    newFakeUserRepo(seller, admin),
		notifier: &recordingNotifier{},
		seller:   seller,
		admin:    Identity{UserID: admin.ID, Role: models.RoleAdmin},
	}
	f.invoices.promotions = f.listings
	f.svc = NewInvoiceService(f.invoices, f.sales, f.listings, f.users, NewAuthorizer(f.users), f.notifier, config.DefaultFeeSchedule(), 30)
	f.svc.now = fixedClock
	return f
}

func (f *invoiceFixture) saleFor(price string) *models.Sale {
	sale, err := models.NewSale(uuid.New(), uuid.New(), f.seller.ID, dec(price), decimal.Zero, testNow.Add(-time.Hour))
	if err != nil {
		panic(err)
	}
	f.sales.sales[sale.ID] = sale
	return sale
}

func TestInvoice_CreateCommission(t *testing.T) {
	f := newInvoiceFixture()
	sale := f.saleFor("100.00")

	invoice, err := f.svc.CreateCommissionInvoice(context.Background(), sale.ID)
	require.NoError(t, err)

	assert.Equal(t, "INV-2024-001", invoice.InvoiceNumber)
	assert.Equal(t, models.InvoiceKindCommission, invoice.Kind)
	assert.Equal(t, "9.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "0.73", invoice.VATAmount.StringFixed(2))
	assert.Equal(t, "9.75", invoice.Total.StringFixed(2))
	assert.Equal(t, valueobject.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, testNow.AddDate(0, 0, 30), invoice.DueDate)
	require.Len(t, invoice.Items, 1)
	assert.Equal(t, []string{EventInvoiceIssued}, f.notifier.events())
}

func TestInvoice_CreateCommission_MinimumAndPromotions(t *testing.T) {
	f := newInvoiceFixture()
	sale := f.saleFor("5.00")
	f.listings.promotions[sale.ListingID] = []models.ListingPromotion{
		{ID: uuid.New(), ListingID: sale.ListingID, Kind: models.PromotionKindBoost, Description: "Поднятие", Price: dec("5.00"), ActiveFrom: testNow.Add(-48 * time.Hour)},
		{ID: uuid.New(), ListingID: sale.ListingID, Kind: models.PromotionKindHighlight, Description: "Выделение", Price: dec("3.00"), ActiveFrom: testNow.Add(time.Hour)},
	}

	invoice, err := f.svc.CreateCommissionInvoice(context.Background(), sale.ID)
	require.NoError(t, err)

	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "1.00", invoice.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, "Поднятие", invoice.Items[1].Description)
	assert.Equal(t, "6.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "0.49", invoice.VATAmount.StringFixed(2))
	assert.Equal(t, "6.50", invoice.Total.StringFixed(2))
	assert.NotNil(t, f.listings.promotions[sale.ListingID][0].InvoicedAt)
}

func TestInvoice_CreateCommission_Idempotent(t *testing.T) {
	f := newInvoiceFixture()
	sale := f.saleFor("100.00")
	ctx := context.Background()

	first, err := f.svc.CreateCommissionInvoice(ctx, sale.ID)
	require.NoError(t, err)
	second, err := f.svc.CreateCommissionInvoice(ctx, sale.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.invoices.invoices, 1)
}

func TestInvoice_CreateCommission_ConcurrentInsertReturnsExisting(t *testing.T) {
	f := newInvoiceFixture()
	sale := f.saleFor("100.00")
	saleID := sale.ID
	winner := &models.Invoice{
		ID: uuid.New(), InvoiceNumber: "INV-2024-042", Kind: models.InvoiceKindCommission,
		SellerID: f.seller.ID, SaleID: &saleID, Status: valueobject.InvoiceStatusPending,
	}
	f.invoices.raceOnCreate = winner

	invoice, err := f.svc.CreateCommissionInvoice(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, invoice.ID)
	assert.Len(t, f.invoices.invoices, 1)
	assert.Empty(t, f.notifier.events())
}

func TestInvoice_CreateCommission_CancelledSale(t *testing.T) {
	f := newInvoiceFixture()
	sale := f.saleFor("100.00")
	require.NoError(t, sale.Cancel(testNow))

	_, err := f.svc.CreateCommissionInvoice(context.Background(), sale.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestInvoice_NumbersAreSequential(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		invoice, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("10.00").ID)
		require.NoError(t, err)
		numbers = append(numbers, invoice.InvoiceNumber)
	}
	assert.Equal(t, []string{"INV-2024-001", "INV-2024-002", "INV-2024-003"}, numbers)
}

func TestInvoice_CreateAncillary(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	custom := dec("2.50")

	invoice, err := f.svc.CreateAncillaryInvoice(ctx, f.admin, f.seller.ID, []AncillaryItem{
		{Kind: models.PromotionKindTopSlot},
		{Description: "Фотосъёмка", Quantity: 2, UnitPrice: &custom},
	})
	require.NoError(t, err)

	assert.Equal(t, models.InvoiceKindAncillary, invoice.Kind)
	assert.Nil(t, invoice.SaleID)
	assert.Equal(t, "17.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "top_slot", invoice.Items[0].Description)

	_, err = f.svc.CreateAncillaryInvoice(ctx, f.admin, f.seller.ID, []AncillaryItem{{Kind: "rocket"}})
	assert.True(t, apperror.IsValidation(err))

	fractional := dec("3.335")
	_, err = f.svc.CreateAncillaryInvoice(ctx, f.admin, f.seller.ID, []AncillaryItem{
		{Description: "Ретушь", Quantity: 3, UnitPrice: &fractional},
	})
	assert.True(t, apperror.IsValidation(err))

	trailing := dec("1.500")
	padded, err := f.svc.CreateAncillaryInvoice(ctx, f.admin, f.seller.ID, []AncillaryItem{
		{Description: "Ретушь", Quantity: 3, UnitPrice: &trailing},
	})
	require.NoError(t, err)
	assert.Equal(t, "4.50", padded.Items[0].LineTotal.StringFixed(2))

	_, err = f.svc.CreateAncillaryInvoice(ctx, Identity{UserID: f.seller.ID}, f.seller.ID, []AncillaryItem{{Kind: "boost"}})
	assert.True(t, apperror.IsForbidden(err))
}

func TestInvoice_CancelInvoice(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	invoice, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("100").ID)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelInvoice(ctx, f.admin, invoice.ID, "ошибочный счёт")
	require.NoError(t, err)
	assert.Equal(t, valueobject.InvoiceStatusCancelled, cancelled.Status)

	_, err = f.svc.CancelInvoice(ctx, f.admin, invoice.ID, "")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestInvoice_CancelCommissionForSale(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	sale := f.saleFor("100")

	require.NoError(t, f.svc.CancelCommissionForSale(ctx, sale.ID, "без счёта"))

	invoice, err := f.svc.CreateCommissionInvoice(ctx, sale.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelCommissionForSale(ctx, sale.ID, "сделка отменена"))

	stored, _ := f.invoices.GetByID(ctx, invoice.ID)
	assert.Equal(t, valueobject.InvoiceStatusCancelled, stored.Status)

	paidSale := f.saleFor("50")
	paidInvoice, err := f.svc.CreateCommissionInvoice(ctx, paidSale.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, f.admin, paidInvoice.ID, models.PaymentMethodTwint, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelCommissionForSale(ctx, paidSale.ID, "возврат"))

	stored, _ = f.invoices.GetByID(ctx, paidInvoice.ID)
	assert.Equal(t, valueobject.InvoiceStatusPaid, stored.Status)
}

func TestInvoice_OverdueBlocksAndPaymentUnblocks(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()

	first, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("100").ID)
	require.NoError(t, err)
	second, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("200").ID)
	require.NoError(t, err)

	res, err := f.svc.MarkOverdue(ctx, testNow.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Zero(t, res.Marked)

	res, err = f.svc.MarkOverdue(ctx, testNow.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Marked)
	assert.Equal(t, 1, res.BlockedSellers)

	seller, _ := f.users.GetByID(ctx, f.seller.ID)
	require.True(t, seller.IsBlocked)
	assert.Equal(t, OverdueBlockReason, *seller.BlockedReason)

	_, err = f.svc.RecordPayment(ctx, f.admin, first.ID, models.PaymentMethodBankTransfer, "ref-1")
	require.NoError(t, err)
	seller, _ = f.users.GetByID(ctx, f.seller.ID)
	assert.True(t, seller.IsBlocked)

	paid, err := f.svc.RecordPayment(ctx, f.admin, second.ID, models.PaymentMethodCard, "")
	require.NoError(t, err)
	assert.Equal(t, valueobject.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	seller, _ = f.users.GetByID(ctx, f.seller.ID)
	assert.False(t, seller.IsBlocked)
}

func TestInvoice_PaymentKeepsForeignBlock(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	require.NoError(t, f.users.SetBlocked(ctx, f.seller.ID, true, "модерация"))

	invoice, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("100").ID)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, f.admin, invoice.ID, models.PaymentMethodCard, "")
	require.NoError(t, err)

	seller, _ := f.users.GetByID(ctx, f.seller.ID)
	assert.True(t, seller.IsBlocked)
}

func TestInvoice_RecordPayment_Validation(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	invoice, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("100").ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, f.admin, invoice.ID, "cash", "")
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.RecordPayment(ctx, Identity{UserID: f.seller.ID}, invoice.ID, models.PaymentMethodCard, "")
	assert.True(t, apperror.IsForbidden(err))
}

func TestInvoice_ListAndGetAccess(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()
	invoice, err := f.svc.CreateCommissionInvoice(ctx, f.saleFor("100").ID)
	require.NoError(t, err)
	owner := Identity{UserID: f.seller.ID, Role: models.RoleUser}
	stranger := uuid.New()

	own, err := f.svc.List(ctx, owner, nil, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	_, err = f.svc.List(ctx, Identity{UserID: stranger}, &f.seller.ID, "", 0, 0)
	assert.True(t, apperror.IsForbidden(err))

	all, err := f.svc.List(ctx, f.admin, nil, "pending", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.List(ctx, f.admin, nil, "weird", 0, 0)
	assert.True(t, apperror.IsValidation(err))

	got, err := f.svc.Get(ctx, owner, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceNumber, got.InvoiceNumber)

	_, err = f.svc.Get(ctx, Identity{UserID: stranger}, invoice.ID)
	assert.True(t, apperror.IsForbidden(err))
}
