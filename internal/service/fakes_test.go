package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- сделки ---

type fakeSaleRepo struct {
	mu     sync.Mutex
	sales  map[uuid.UUID]*models.Sale
	events []models.SaleEvent
}

func newFakeSaleRepo(sales ...*models.Sale) *fakeSaleRepo {
	r := &fakeSaleRepo{sales: make(map[uuid.UUID]*models.Sale)}
	for _, s := range sales {
		r.sales[s.ID] = s
	}
	return r
}

func (r *fakeSaleRepo) get(id uuid.UUID) *models.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.sales[id]
	return &copied
}

func (r *fakeSaleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSaleRepo) GetByPaymentIntent(_ context.Context, pi string) (*models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sales {
		if s.StripePaymentIntentID != nil && *s.StripePaymentIntentID == pi {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSaleNotFound
}

// Transition повторяет семантику репозитория: изменения применяются только при успешном fn.
func (r *fakeSaleRepo) Transition(_ context.Context, id uuid.UUID, meta *repository.TransitionMeta, fn func(*models.Sale) error) (*models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	if meta == nil {
		meta = &repository.TransitionMeta{}
	}
	working := *stored
	old := working.PaymentStatus
	if err := fn(&working); err != nil {
		if errors.Is(err, common.ErrNoChange) {
			copied := *stored
			return &copied, nil
		}
		return nil, err
	}
	r.sales[id] = &working
	r.events = append(r.events, models.SaleEvent{
		ID:        uuid.New(),
		SaleID:    id,
		ActorID:   meta.ActorID,
		Action:    meta.Action,
		OldStatus: old,
		NewStatus: working.PaymentStatus,
		CreatedAt: testNow,
	})
	copied := working
	return &copied, nil
}

func (r *fakeSaleRepo) ListAutoReleaseEligible(_ context.Context, now time.Time, paidBefore *time.Time, _ int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range r.sales {
		if s.IsEligibleForAutoRelease(now) && (paidBefore == nil || (s.PaidAt != nil && !s.PaidAt.After(*paidBefore))) {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *fakeSaleRepo) CountAutoReleaseEligible(ctx context.Context, now time.Time, paidBefore *time.Time) (int, error) {
	ids, err := r.ListAutoReleaseEligible(ctx, now, paidBefore, 0)
	return len(ids), err
}

func (r *fakeSaleRepo) ListPendingPayouts(_ context.Context, _ int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range r.sales {
		if s.PaymentStatus == valueobject.PaymentStatusReleasePendingOnboarding ||
			(s.PaymentStatus == valueobject.PaymentStatusReleasePending && s.BuyerConfirmedReceipt) {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (r *fakeSaleRepo) ListDisputes(_ context.Context, status valueobject.DisputeStatus, _, _ int) ([]models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Sale
	for _, s := range r.sales {
		if s.DisputeStatus == valueobject.DisputeStatusNone {
			continue
		}
		if status == "" || s.DisputeStatus == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) ListEvents(_ context.Context, saleID uuid.UUID) ([]models.SaleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SaleEvent
	for _, e := range r.events {
		if e.SaleID == saleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeSaleRepo) actions(saleID uuid.UUID) []string {
	events, _ := r.ListEvents(context.Background(), saleID)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

// --- пользователи ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) UpdatePayoutStatus(_ context.Context, account string, enabled, submitted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.StripeAccountID != nil && *u.StripeAccountID == account {
			u.PayoutsEnabled = enabled
			u.DetailsSubmitted = submitted
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (r *fakeUserRepo) SetBlocked(_ context.Context, id uuid.UUID, blocked bool, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsBlocked = blocked
	if reason == "" {
		u.BlockedReason = nil
	} else {
		u.BlockedReason = &reason
	}
	return nil
}

// --- объявления ---

type fakeListingRepo struct {
	mu         sync.Mutex
	listings   map[uuid.UUID]*models.Listing
	bids       map[uuid.UUID][]models.Bid
	promotions map[uuid.UUID][]models.ListingPromotion
	sales      *fakeSaleRepo
	failOn     map[uuid.UUID]error
}

func newFakeListingRepo(sales *fakeSaleRepo) *fakeListingRepo {
	return &fakeListingRepo{
		listings:   make(map[uuid.UUID]*models.Listing),
		bids:       make(map[uuid.UUID][]models.Bid),
		promotions: make(map[uuid.UUID][]models.ListingPromotion),
		sales:      sales,
		failOn:     make(map[uuid.UUID]error),
	}
}

func (r *fakeListingRepo) hasActiveSale(listingID uuid.UUID) bool {
	r.sales.mu.Lock()
	defer r.sales.mu.Unlock()
	for _, s := range r.sales.sales {
		if s.ListingID == listingID && !s.IsCancelled() {
			return true
		}
	}
	return false
}

func (r *fakeListingRepo) ListExpiredAuctions(_ context.Context, now time.Time, _ int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, l := range r.listings {
		if l.IsAuctionExpired(now) && len(r.bids[id]) > 0 && !r.hasActiveSale(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *fakeListingRepo) CreateSale(_ context.Context, listingID uuid.UUID, _ *uuid.UUID, build func(*models.Listing, []models.Bid) (*models.Sale, error)) (*models.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[listingID]; ok {
		return nil, err
	}
	l, ok := r.listings[listingID]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	if r.hasActiveSale(listingID) {
		return nil, repository.ErrListingAlreadySold
	}
	sale, err := build(l, r.bids[listingID])
	if err != nil {
		return nil, err
	}
	r.sales.mu.Lock()
	r.sales.sales[sale.ID] = sale
	r.sales.mu.Unlock()
	copied := *sale
	return &copied, nil
}

func (r *fakeListingRepo) ListActivePromotions(_ context.Context, listingID uuid.UUID, at time.Time) ([]models.ListingPromotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ListingPromotion
	for _, p := range r.promotions[listingID] {
		if p.IsActiveAt(at) && p.InvoicedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- счета ---

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*models.Invoice
	seq      map[int]int64
	// raceOnCreate имитирует параллельный счёт, вставленный между проверкой и записью.
	raceOnCreate *models.Invoice
	promotions   *fakeListingRepo
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[uuid.UUID]*models.Invoice), seq: make(map[int]int64)}
}

func (r *fakeInvoiceRepo) Create(_ context.Context, invoice *models.Invoice, prefix string, promotionIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceOnCreate != nil {
		r.invoices[r.raceOnCreate.ID] = r.raceOnCreate
		r.raceOnCreate = nil
	}
	if invoice.Kind == models.InvoiceKindCommission && invoice.SaleID != nil {
		for _, existing := range r.invoices {
			if existing.Kind == models.InvoiceKindCommission && existing.SaleID != nil && *existing.SaleID == *invoice.SaleID {
				return repository.ErrInvoiceAlreadyExists
			}
		}
	}
	year := invoice.IssuedAt.Year()
	r.seq[year]++
	invoice.InvoiceNumber = repository.FormatInvoiceNumber(prefix, year, r.seq[year])
	for i := range invoice.Items {
		invoice.Items[i].Position = i + 1
	}
	stored := *invoice
	r.invoices[invoice.ID] = &stored

	if r.promotions != nil {
		r.promotions.mu.Lock()
		for listingID, list := range r.promotions.promotions {
			for i := range list {
				for _, id := range promotionIDs {
					if list[i].ID == id {
						at := invoice.IssuedAt
						list[i].InvoicedAt = &at
					}
				}
			}
			r.promotions.promotions[listingID] = list
		}
		r.promotions.mu.Unlock()
	}
	return nil
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r *fakeInvoiceRepo) GetCommissionBySale(_ context.Context, saleID uuid.UUID) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.Kind == models.InvoiceKindCommission && inv.SaleID != nil && *inv.SaleID == saleID {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, repository.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) List(_ context.Context, sellerID *uuid.UUID, status valueobject.InvoiceStatus, _, _ int) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Invoice
	for _, inv := range r.invoices {
		if sellerID != nil && inv.SellerID != *sellerID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, id uuid.UUID, fn func(*models.Invoice) error) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[id]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	working := *stored
	if err := fn(&working); err != nil {
		if errors.Is(err, common.ErrNoChange) {
			copied := *stored
			return &copied, nil
		}
		return nil, err
	}
	r.invoices[id] = &working
	copied := working
	return &copied, nil
}

func (r *fakeInvoiceRepo) ListOverdueCandidates(_ context.Context, now time.Time, _ int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, inv := range r.invoices {
		if inv.Status == valueobject.InvoiceStatusPending && inv.DueDate.Before(now) {
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (r *fakeInvoiceRepo) CountOverdue(_ context.Context, sellerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.invoices {
		if inv.SellerID == sellerID && inv.Status == valueobject.InvoiceStatusOverdue {
			n++
		}
	}
	return n, nil
}

// --- провайдер выплат ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Transfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.TransferResult), args.Error(1)
}

func (m *mockProvider) Refund(ctx context.Context, req payout.RefundRequest) (*payout.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.RefundResult), args.Error(1)
}

func (m *mockProvider) AccountStatus(ctx context.Context, accountID string) (*payout.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.AccountStatus), args.Error(1)
}

// --- уведомления ---

type sentNotification struct {
	UserID uuid.UUID
	Event  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(userID uuid.UUID, event string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Event: event})
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Event)
	}
	return out
}

type fakeCanceller struct {
	cancelled []uuid.UUID
	err       error
}

func (c *fakeCanceller) CancelCommissionForSale(_ context.Context, saleID uuid.UUID, _ string) error {
	c.cancelled = append(c.cancelled, saleID)
	return c.err
}

// --- фикстуры ---

func strPtr(s string) *string { return &s }

func newSeller(account string, enabled bool) *models.User {
	u := &models.User{ID: uuid.New(), Email: "seller@example.ch", Role: models.RoleUser, PayoutsEnabled: enabled}
	if account != "" {
		u.StripeAccountID = strPtr(account)
	}
	return u
}

func newAdmin() *models.User {
	return &models.User{ID: uuid.New(), Email: "admin@example.ch", Role: models.RoleAdmin}
}

// paidSale - оплаченная сделка на 100.00 со сбором 3.20 и сроком автовыплаты в прошлом.
func paidSale(sellerID uuid.UUID) *models.Sale {
	paidAt := testNow.Add(-96 * time.Hour)
	autoRelease := paidAt.Add(72 * time.Hour)
	return &models.Sale{
		ID:             uuid.New(),
		ListingID:      uuid.New(),
		BuyerID:        uuid.New(),
		SellerID:       sellerID,
		ItemPrice:      dec("100.00"),
		PlatformFee:    dec("3.20"),
		TotalAmount:    dec("100.00"),
		PaymentStatus:  valueobject.PaymentStatusPaid,
		DisputeStatus:  valueobject.DisputeStatusNone,
		PaidAt:         &paidAt,
		AutoReleaseAt:  &autoRelease,
		StripeChargeID: strPtr("ch_1"),
		CreatedAt:      paidAt,
		UpdatedAt:      paidAt,
	}
}
