package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// RefundService возвращает покупателю средства, удерживаемые в эскроу.
type RefundService struct {
	sales    SaleRepository
	provider payout.Provider
	authz    *Authorizer
	notifier Notifier
	invoices CommissionCanceller
	now      func() time.Time
}

// NewRefundService создаёт сервис возвратов.
func NewRefundService(sales SaleRepository, provider payout.Provider, authz *Authorizer, notifier Notifier, invoices CommissionCanceller) *RefundService {
	return &RefundService{
		sales:    sales,
		provider: provider,
		authz:    authz,
		notifier: notifier,
		invoices: invoices,
		now:      time.Now,
	}
}

// Refund - возврат по решению администратора.
func (s *RefundService) Refund(ctx context.Context, saleID uuid.UUID, id Identity, reason string) (*models.Sale, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	if err := validation.ValidateReason(reason, false); err != nil {
		return nil, err
	}
	return s.refund(ctx, saleID, id, reason)
}

// refund выполняет возврат без проверки прав: вызывается из разрешения спора.
func (s *RefundService) refund(ctx context.Context, saleID uuid.UUID, actor Identity, reason string) (*models.Sale, error) {
	current, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить заказ")
	}
	if err := current.CheckRefundable(); err != nil {
		return nil, err
	}

	meta := &repository.TransitionMeta{
		ActorID: actor.actor(),
		Action:  models.SaleActionRefunded,
	}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		if err := sale.CheckRefundable(); err != nil {
			return err
		}

		res, err := s.provider.Refund(ctx, payout.RefundRequest{
			ChargeID:       *sale.StripeChargeID,
			Amount:         sale.TotalAmount,
			SaleID:         sale.ID.String(),
			Reason:         reason,
			IdempotencyKey: payout.RefundKey(sale.ID.String()),
		})
		if err != nil {
			logger.Money(sale.ID.String(), sale.TotalAmount, "refund").WithError(err).Error("возврат покупателю не прошёл")
			return apperror.ExternalService(err, "платёжный провайдер не выполнил возврат")
		}

		meta.Payload = map[string]any{
			"refund_id": res.RefundID,
			"amount":    sale.TotalAmount.StringFixed(2),
			"reason":    reason,
		}
		return sale.MarkRefunded(res.RefundID, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось выполнить возврат")
	}

	if err := s.invoices.CancelCommissionForSale(ctx, saleID, "возврат покупателю"); err != nil {
		logger.Money(saleID.String(), sale.ItemPrice, "cancel_commission").WithError(err).
			Error("не удалось аннулировать счёт на комиссию")
	}

	data := map[string]any{"order_id": sale.ID, "amount": sale.TotalAmount.StringFixed(2)}
	s.notifier.Notify(sale.BuyerID, EventOrderRefunded, data)
	s.notifier.Notify(sale.SellerID, EventOrderRefunded, data)
	return sale, nil
}
