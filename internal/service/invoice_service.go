package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/billing"
	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// OverdueBlockReason - причина блокировки продавца с просроченным счётом.
const OverdueBlockReason = "просроченный счёт"

const overdueBatchSize = 500

// InvoiceRepository - хранилище счетов.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice, prefix string, promotionIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetCommissionBySale(ctx context.Context, saleID uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, sellerID *uuid.UUID, status valueobject.InvoiceStatus, limit, offset int) ([]models.Invoice, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*models.Invoice) error) (*models.Invoice, error)
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	CountOverdue(ctx context.Context, sellerID uuid.UUID) (int, error)
}

// PromotionSource - платные опции объявления на момент продажи.
type PromotionSource interface {
	ListActivePromotions(ctx context.Context, listingID uuid.UUID, at time.Time) ([]models.ListingPromotion, error)
}

// AncillaryItem - строка счёта за дополнительные услуги. Если цена не задана,
// она берётся из прайса платных опций по Kind.
type AncillaryItem struct {
	Kind        string
	Description string
	Quantity    int
	UnitPrice   *decimal.Decimal
}

// OverdueResult - итог проверки сроков оплаты.
type OverdueResult struct {
	Marked         int         `json:"marked"`
	BlockedSellers int         `json:"blockedSellers"`
	Errors         []ItemError `json:"errors"`
}

// InvoiceService - выставление счетов продавцам и учёт их оплаты.
type InvoiceService struct {
	invoices   InvoiceRepository
	sales      SaleRepository
	promotions PromotionSource
	users      UserRepository
	authz      *Authorizer
	notifier   Notifier
	fees       config.FeeSchedule
	dueDays    int
	now        func() time.Time
}

// NewInvoiceService создаёт сервис счетов.
func NewInvoiceService(
	invoices InvoiceRepository,
	sales SaleRepository,
	promotions PromotionSource,
	users UserRepository,
	authz *Authorizer,
	notifier Notifier,
	fees config.FeeSchedule,
	dueDays int,
) *InvoiceService {
	return &InvoiceService{
		invoices:   invoices,
		sales:      sales,
		promotions: promotions,
		users:      users,
		authz:      authz,
		notifier:   notifier,
		fees:       fees,
		dueDays:    dueDays,
		now:        time.Now,
	}
}

// CreateCommissionInvoice выставляет счёт на комиссию по сделке. Повторный вызов
// возвращает уже выставленный счёт.
func (s *InvoiceService) CreateCommissionInvoice(ctx context.Context, saleID uuid.UUID) (*models.Invoice, error) {
	existing, err := s.invoices.GetCommissionBySale(ctx, saleID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrInvoiceNotFound) {
		return nil, translate(err, "не удалось проверить счёт по сделке")
	}

	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить сделку")
	}
	if sale.IsCancelled() {
		return nil, apperror.InvalidState("сделка отменена, комиссия не начисляется")
	}

	commission, err := billing.Commission(sale.ItemPrice, s.fees.CommissionRate, s.fees.MinimumCommission)
	if err != nil {
		return nil, err
	}
	items := []billing.LineItem{{Description: "Комиссия площадки", Quantity: 1, UnitPrice: commission}}

	promotions, err := s.promotions.ListActivePromotions(ctx, sale.ListingID, sale.CreatedAt)
	if err != nil {
		return nil, translate(err, "не удалось загрузить платные опции")
	}
	promotionIDs := make([]uuid.UUID, 0, len(promotions))
	for _, p := range promotions {
		items = append(items, billing.LineItem{Description: p.Description, Quantity: 1, UnitPrice: p.Price})
		promotionIDs = append(promotionIDs, p.ID)
	}

	invoice, err := s.build(models.InvoiceKindCommission, sale.SellerID, &sale.ID, items)
	if err != nil {
		return nil, err
	}

	err = s.invoices.Create(ctx, invoice, s.fees.InvoicePrefix, promotionIDs)
	if errors.Is(err, repository.ErrInvoiceAlreadyExists) {
		existing, getErr := s.invoices.GetCommissionBySale(ctx, saleID)
		if getErr != nil {
			return nil, translate(getErr, "не удалось загрузить счёт по сделке")
		}
		return existing, nil
	}
	if err != nil {
		return nil, translate(err, "не удалось сохранить счёт")
	}

	logger.Money(saleID.String(), invoice.Total, "commission_invoice").
		WithField("invoice_number", invoice.InvoiceNumber).Info("выставлен счёт на комиссию")
	s.notifyIssued(invoice)
	return invoice, nil
}

// ReissueCommissionInvoice - ручной повтор выставления счёта, если при создании сделки он не удался.
func (s *InvoiceService) ReissueCommissionInvoice(ctx context.Context, id Identity, saleID uuid.UUID) (*models.Invoice, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	return s.CreateCommissionInvoice(ctx, saleID)
}

// CreateAncillaryInvoice выставляет продавцу счёт за дополнительные услуги без привязки к сделке.
func (s *InvoiceService) CreateAncillaryInvoice(ctx context.Context, id Identity, sellerID uuid.UUID, lines []AncillaryItem) (*models.Invoice, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, sellerID); err != nil {
		return nil, translate(err, "не удалось загрузить продавца")
	}

	items := make([]billing.LineItem, 0, len(lines))
	for _, line := range lines {
		item, err := s.ancillaryLine(line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	invoice, err := s.build(models.InvoiceKindAncillary, sellerID, nil, items)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, invoice, s.fees.InvoicePrefix, nil); err != nil {
		return nil, translate(err, "не удалось сохранить счёт")
	}

	s.notifyIssued(invoice)
	return invoice, nil
}

func (s *InvoiceService) ancillaryLine(line AncillaryItem) (billing.LineItem, error) {
	item := billing.LineItem{Description: line.Description, Quantity: line.Quantity}
	if item.Quantity == 0 {
		item.Quantity = 1
	}

	switch {
	case line.UnitPrice != nil:
		item.UnitPrice = *line.UnitPrice
	case line.Kind != "":
		price, ok := s.fees.Promotions[line.Kind]
		if !ok {
			return item, apperror.Validation("неизвестная платная опция: " + line.Kind)
		}
		item.UnitPrice = price
	default:
		return item, apperror.Validation("для позиции нужна цена или вид платной опции")
	}
	// Цена хранится в numeric(12,2): дробные раппены база округлила бы молча.
	if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
		return item, apperror.Validation("цена позиции указывается с точностью до раппена")
	}

	if err := validation.ValidateLineDescription(item.Description); err != nil {
		return item, err
	}
	if item.Description == "" {
		if line.Kind == "" {
			return item, apperror.Validation("описание позиции обязательно")
		}
		item.Description = line.Kind
	}
	return item, nil
}

func (s *InvoiceService) build(kind string, sellerID uuid.UUID, saleID *uuid.UUID, items []billing.LineItem) (*models.Invoice, error) {
	totals, err := billing.ComputeInvoice(items, s.fees.VATRate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	invoice := &models.Invoice{
		ID:        uuid.New(),
		Kind:      kind,
		SellerID:  sellerID,
		SaleID:    saleID,
		Currency:  valueobject.CurrencyCHF,
		Subtotal:  totals.Subtotal,
		VATRate:   totals.VATRate,
		VATAmount: totals.VATAmount,
		Total:     totals.Total,
		Status:    valueobject.InvoiceStatusPending,
		IssuedAt:  now,
		DueDate:   now.AddDate(0, 0, s.dueDays),
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]models.InvoiceItem, 0, len(totals.Lines)),
	}
	for _, line := range totals.Lines {
		invoice.Items = append(invoice.Items, models.InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   invoice.ID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return invoice, nil
}

func (s *InvoiceService) notifyIssued(invoice *models.Invoice) {
	s.notifier.Notify(invoice.SellerID, EventInvoiceIssued, map[string]any{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"total":          invoice.Total.StringFixed(2),
		"due_date":       invoice.DueDate,
	})
}

// CancelInvoice аннулирует ожидающий оплаты счёт.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id Identity, invoiceID uuid.UUID, reason string) (*models.Invoice, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	if err := validation.ValidateReason(reason, false); err != nil {
		return nil, err
	}
	invoice, err := s.invoices.Update(ctx, invoiceID, func(invoice *models.Invoice) error {
		return invoice.Cancel(reason, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось отменить счёт")
	}
	return invoice, nil
}

// CancelCommissionForSale снимает комиссию с несостоявшейся сделки. Счёт, который уже
// не ждёт оплаты, не трогается.
func (s *InvoiceService) CancelCommissionForSale(ctx context.Context, saleID uuid.UUID, reason string) error {
	invoice, err := s.invoices.GetCommissionBySale(ctx, saleID)
	if errors.Is(err, repository.ErrInvoiceNotFound) {
		return nil
	}
	if err != nil {
		return translate(err, "не удалось загрузить счёт по сделке")
	}

	_, err = s.invoices.Update(ctx, invoice.ID, func(invoice *models.Invoice) error {
		if invoice.Status != valueobject.InvoiceStatusPending {
			logger.Log.WithFields(logrus.Fields{
				"invoice_id": invoice.ID,
				"status":     invoice.Status,
			}).Warn("счёт на комиссию уже не ожидает оплаты, отмена пропущена")
			return common.ErrNoChange
		}
		return invoice.Cancel(reason, s.now())
	})
	return translate(err, "не удалось отменить счёт")
}

// RecordPayment отмечает счёт оплаченным и снимает блокировку продавца,
// если других просроченных счетов не осталось.
func (s *InvoiceService) RecordPayment(ctx context.Context, id Identity, invoiceID uuid.UUID, method, reference string) (*models.Invoice, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	if err := validation.ValidatePayment(method, reference); err != nil {
		return nil, err
	}
	invoice, err := s.invoices.Update(ctx, invoiceID, func(invoice *models.Invoice) error {
		return invoice.RecordPayment(method, reference, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось провести оплату счёта")
	}

	if err := s.unblockIfSettled(ctx, invoice.SellerID); err != nil {
		logger.Log.WithError(err).WithField("seller_id", invoice.SellerID).Error("не удалось снять блокировку продавца")
	}
	return invoice, nil
}

func (s *InvoiceService) unblockIfSettled(ctx context.Context, sellerID uuid.UUID) error {
	overdue, err := s.invoices.CountOverdue(ctx, sellerID)
	if err != nil || overdue > 0 {
		return err
	}
	seller, err := s.users.GetByID(ctx, sellerID)
	if err != nil {
		return err
	}
	// Блокировку, поставленную по другой причине, не снимаем.
	if !seller.IsBlocked || seller.BlockedReason == nil || *seller.BlockedReason != OverdueBlockReason {
		return nil
	}
	return s.users.SetBlocked(ctx, sellerID, false, "")
}

// MarkOverdue переводит просроченные счета в overdue и блокирует их продавцов.
func (s *InvoiceService) MarkOverdue(ctx context.Context, now time.Time) (*OverdueResult, error) {
	ids, err := s.invoices.ListOverdueCandidates(ctx, now, overdueBatchSize)
	if err != nil {
		return nil, translate(err, "не удалось выбрать просроченные счета")
	}

	result := &OverdueResult{Errors: []ItemError{}}
	blocked := make(map[uuid.UUID]struct{})
	for _, id := range ids {
		marked := false
		invoice, err := s.invoices.Update(ctx, id, func(invoice *models.Invoice) error {
			ok, err := invoice.MarkOverdue(now)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrNoChange
			}
			marked = true
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: id, Error: translate(err, "ошибка проверки счёта").Error()})
			continue
		}
		if !marked {
			continue
		}
		result.Marked++

		if _, done := blocked[invoice.SellerID]; !done {
			if err := s.users.SetBlocked(ctx, invoice.SellerID, true, OverdueBlockReason); err != nil {
				result.Errors = append(result.Errors, ItemError{ID: id, Error: translate(err, "не удалось заблокировать продавца").Error()})
				continue
			}
			blocked[invoice.SellerID] = struct{}{}
		}
		s.notifier.Notify(invoice.SellerID, EventInvoiceOverdue, map[string]any{
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
			"total":          invoice.Total.StringFixed(2),
		})
	}
	result.BlockedSellers = len(blocked)

	logger.Log.WithFields(logrus.Fields{
		"marked":  result.Marked,
		"blocked": result.BlockedSellers,
		"errors":  len(result.Errors),
	}).Info("проверка просроченных счетов завершена")
	return result, nil
}

// List - счета продавца. Администратор может смотреть счета любого продавца или все сразу.
func (s *InvoiceService) List(ctx context.Context, id Identity, sellerID *uuid.UUID, status string, limit, offset int) ([]models.Invoice, error) {
	isAdmin, err := s.authz.IsAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		own := id.UserID
		if sellerID != nil && *sellerID != own {
			return nil, apperror.ErrForbidden
		}
		sellerID = &own
	}

	var filter valueobject.InvoiceStatus
	if status != "" {
		if filter, err = valueobject.NewInvoiceStatus(status); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	invoices, err := s.invoices.List(ctx, sellerID, filter, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось загрузить счета")
	}
	return invoices, nil
}

// Get возвращает счёт владельцу или администратору.
func (s *InvoiceService) Get(ctx context.Context, id Identity, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить счёт")
	}
	if invoice.SellerID != id.UserID {
		isAdmin, err := s.authz.IsAdmin(ctx, id)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, apperror.ErrForbidden
		}
	}
	return invoice, nil
}
