package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// newTestRouter собирает gin с ErrorHandler и, если задан userID, с заранее
// положенной в контекст личностью (вместо AuthMiddleware).
func newTestRouter(userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	if userID != uuid.Nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserIDKey, userID)
			c.Set(middleware.ContextRoleKey, role)
			c.Next()
		})
	}
	return r
}

type mockEscrow struct{ mock.Mock }

func (m *mockEscrow) ConfirmReceipt(ctx context.Context, saleID, buyerID uuid.UUID) (*service.ReleaseResult, error) {
	args := m.Called(ctx, saleID, buyerID)
	res, _ := args.Get(0).(*service.ReleaseResult)
	return res, args.Error(1)
}

func (m *mockEscrow) OpenDispute(ctx context.Context, saleID, buyerID uuid.UUID, reason, description string) (*models.Sale, error) {
	args := m.Called(ctx, saleID, buyerID, reason, description)
	res, _ := args.Get(0).(*models.Sale)
	return res, args.Error(1)
}

func (m *mockEscrow) Hold(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error) {
	args := m.Called(ctx, saleID, id, reason)
	res, _ := args.Get(0).(*models.Sale)
	return res, args.Error(1)
}

func (m *mockEscrow) ReleaseByAdmin(ctx context.Context, saleID uuid.UUID, id service.Identity) (*service.ReleaseResult, error) {
	args := m.Called(ctx, saleID, id)
	res, _ := args.Get(0).(*service.ReleaseResult)
	return res, args.Error(1)
}

func (m *mockEscrow) CancelSale(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error) {
	args := m.Called(ctx, saleID, id, reason)
	res, _ := args.Get(0).(*models.Sale)
	return res, args.Error(1)
}

func (m *mockEscrow) Get(ctx context.Context, saleID uuid.UUID, id service.Identity) (*service.OrderView, error) {
	args := m.Called(ctx, saleID, id)
	res, _ := args.Get(0).(*service.OrderView)
	return res, args.Error(1)
}

func (m *mockEscrow) HandleWebhook(ctx context.Context, event *payout.WebhookEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockRefunds struct{ mock.Mock }

func (m *mockRefunds) Refund(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error) {
	args := m.Called(ctx, saleID, id, reason)
	res, _ := args.Get(0).(*models.Sale)
	return res, args.Error(1)
}

type mockDisputes struct{ mock.Mock }

func (m *mockDisputes) MarkUnderReview(ctx context.Context, saleID uuid.UUID, id service.Identity) (*models.Sale, error) {
	args := m.Called(ctx, saleID, id)
	res, _ := args.Get(0).(*models.Sale)
	return res, args.Error(1)
}

func (m *mockDisputes) Resolve(ctx context.Context, saleID uuid.UUID, id service.Identity, outcome, note string) (*service.ResolveResult, error) {
	args := m.Called(ctx, saleID, id, outcome, note)
	res, _ := args.Get(0).(*service.ResolveResult)
	return res, args.Error(1)
}

func (m *mockDisputes) ListDisputes(ctx context.Context, id service.Identity, status string, limit, offset int) ([]models.Sale, error) {
	args := m.Called(ctx, id, status, limit, offset)
	res, _ := args.Get(0).([]models.Sale)
	return res, args.Error(1)
}

type mockCron struct{ mock.Mock }

func (m *mockCron) Sweep(ctx context.Context, now time.Time, timeoutHours int) (*service.SweepResult, error) {
	args := m.Called(ctx, now, timeoutHours)
	res, _ := args.Get(0).(*service.SweepResult)
	return res, args.Error(1)
}

func (m *mockCron) CountEligible(ctx context.Context, now time.Time, timeoutHours int) (int, error) {
	args := m.Called(ctx, now, timeoutHours)
	return args.Int(0), args.Error(1)
}

func (m *mockCron) ProcessPendingPayouts(ctx context.Context) (*service.BatchResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*service.BatchResult)
	return res, args.Error(1)
}

func (m *mockCron) SettleExpiredAuctions(ctx context.Context, now time.Time) (*service.SettlementResult, error) {
	args := m.Called(ctx, now)
	res, _ := args.Get(0).(*service.SettlementResult)
	return res, args.Error(1)
}

func (m *mockCron) MarkOverdue(ctx context.Context, now time.Time) (*service.OverdueResult, error) {
	args := m.Called(ctx, now)
	res, _ := args.Get(0).(*service.OverdueResult)
	return res, args.Error(1)
}

type mockInvoices struct{ mock.Mock }

func (m *mockInvoices) List(ctx context.Context, id service.Identity, sellerID *uuid.UUID, status string, limit, offset int) ([]models.Invoice, error) {
	args := m.Called(ctx, id, sellerID, status, limit, offset)
	res, _ := args.Get(0).([]models.Invoice)
	return res, args.Error(1)
}

func (m *mockInvoices) Get(ctx context.Context, id service.Identity, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, id, invoiceID)
	res, _ := args.Get(0).(*models.Invoice)
	return res, args.Error(1)
}

func (m *mockInvoices) CancelInvoice(ctx context.Context, id service.Identity, invoiceID uuid.UUID, reason string) (*models.Invoice, error) {
	args := m.Called(ctx, id, invoiceID, reason)
	res, _ := args.Get(0).(*models.Invoice)
	return res, args.Error(1)
}

func (m *mockInvoices) RecordPayment(ctx context.Context, id service.Identity, invoiceID uuid.UUID, method, reference string) (*models.Invoice, error) {
	args := m.Called(ctx, id, invoiceID, method, reference)
	res, _ := args.Get(0).(*models.Invoice)
	return res, args.Error(1)
}

func (m *mockInvoices) CreateAncillaryInvoice(ctx context.Context, id service.Identity, sellerID uuid.UUID, lines []service.AncillaryItem) (*models.Invoice, error) {
	args := m.Called(ctx, id, sellerID, lines)
	res, _ := args.Get(0).(*models.Invoice)
	return res, args.Error(1)
}

func (m *mockInvoices) ReissueCommissionInvoice(ctx context.Context, id service.Identity, saleID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, id, saleID)
	res, _ := args.Get(0).(*models.Invoice)
	return res, args.Error(1)
}
