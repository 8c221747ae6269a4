package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// SaleRepository - хранилище сделок. Все изменения идут через Transition.
type SaleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Sale, error)
	Transition(ctx context.Context, id uuid.UUID, meta *repository.TransitionMeta, fn func(*models.Sale) error) (*models.Sale, error)
	ListAutoReleaseEligible(ctx context.Context, now time.Time, paidBefore *time.Time, limit int) ([]uuid.UUID, error)
	CountAutoReleaseEligible(ctx context.Context, now time.Time, paidBefore *time.Time) (int, error)
	ListPendingPayouts(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListDisputes(ctx context.Context, status valueobject.DisputeStatus, limit, offset int) ([]models.Sale, error)
	ListEvents(ctx context.Context, saleID uuid.UUID) ([]models.SaleEvent, error)
}

// CommissionCanceller аннулирует счёт на комиссию, когда сделка не состоялась.
type CommissionCanceller interface {
	CancelCommissionForSale(ctx context.Context, saleID uuid.UUID, reason string) error
}

const payoutBatchSize = 200

// ReleaseResult - итог попытки выплаты продавцу.
type ReleaseResult struct {
	Sale              *models.Sale `json:"order"`
	Released          bool         `json:"released"`
	PendingOnboarding bool         `json:"pendingOnboarding"`
	ReleaseDeferred   bool         `json:"releaseDeferred,omitempty"`
	TransferID        string       `json:"transferId,omitempty"`
}

// ItemError - ошибка обработки одного элемента пакетной операции.
type ItemError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BatchResult - итог пакетной выплаты.
type BatchResult struct {
	Released          int         `json:"released"`
	PendingOnboarding int         `json:"pendingOnboarding"`
	Errors            []ItemError `json:"errors"`
}

// OrderView - сделка с журналом переходов.
type OrderView struct {
	Order  *models.Sale       `json:"order"`
	Events []models.SaleEvent `json:"events"`
}

// EscrowService ведёт жизненный цикл эскроу: оплата, подтверждение, выплата, спор, заморозка.
type EscrowService struct {
	sales        SaleRepository
	users        UserRepository
	provider     payout.Provider
	authz        *Authorizer
	notifier     Notifier
	invoices     CommissionCanceller
	releaseAfter time.Duration
	now          func() time.Time
}

// NewEscrowService создаёт сервис эскроу. releaseAfter - срок автовыплаты после оплаты.
func NewEscrowService(
	sales SaleRepository,
	users UserRepository,
	provider payout.Provider,
	authz *Authorizer,
	notifier Notifier,
	invoices CommissionCanceller,
	releaseAfter time.Duration,
) *EscrowService {
	return &EscrowService{
		sales:        sales,
		users:        users,
		provider:     provider,
		authz:        authz,
		notifier:     notifier,
		invoices:     invoices,
		releaseAfter: releaseAfter,
		now:          time.Now,
	}
}

// MarkPaid фиксирует оплату, подтверждённую провайдером. Повтор с тем же платежом ничего не меняет.
func (s *EscrowService) MarkPaid(ctx context.Context, saleID uuid.UUID, chargeID, paymentIntentID string, paidAt time.Time) (*models.Sale, error) {
	applied := false
	meta := &repository.TransitionMeta{
		Action:  models.SaleActionPaid,
		Payload: map[string]any{"charge_id": chargeID, "payment_intent_id": paymentIntentID},
	}

	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		if sale.PaymentStatus != valueobject.PaymentStatusNone && samePayment(sale, chargeID, paymentIntentID) {
			return common.ErrNoChange
		}
		if err := sale.MarkPaid(chargeID, paymentIntentID, paidAt, s.releaseAfter); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, translate(err, "не удалось отметить оплату")
	}

	if applied {
		data := map[string]any{"order_id": sale.ID, "amount": sale.TotalAmount.StringFixed(2)}
		s.notifier.Notify(sale.BuyerID, EventOrderPaid, data)
		s.notifier.Notify(sale.SellerID, EventOrderPaid, data)
	}
	return sale, nil
}

func samePayment(sale *models.Sale, chargeID, paymentIntentID string) bool {
	if paymentIntentID != "" && sale.StripePaymentIntentID != nil {
		return *sale.StripePaymentIntentID == paymentIntentID
	}
	return chargeID != "" && sale.StripeChargeID != nil && *sale.StripeChargeID == chargeID
}

// HandleWebhook применяет событие платёжного провайдера.
func (s *EscrowService) HandleWebhook(ctx context.Context, event *payout.WebhookEvent) error {
	entry := logger.Log.WithFields(logrus.Fields{"event_id": event.ID, "kind": event.Kind})

	switch event.Kind {
	case payout.EventPaymentSucceeded:
		saleID, err := s.resolveSaleForPayment(ctx, event)
		if err != nil {
			return err
		}
		if _, err := s.MarkPaid(ctx, saleID, event.ChargeID, event.PaymentIntentID, event.OccurredAt); err != nil {
			entry.WithError(err).WithField("sale_id", saleID).Error("webhook: не удалось отметить оплату")
			return err
		}
	case payout.EventAccountUpdated:
		err := s.users.UpdatePayoutStatus(ctx, event.AccountID, event.PayoutsEnabled, event.DetailsSubmitted)
		if errors.Is(err, repository.ErrUserNotFound) {
			entry.WithField("account_id", event.AccountID).Warn("webhook: счёт не привязан ни к одному продавцу")
			return nil
		}
		if err != nil {
			return translate(err, "не удалось обновить статус счёта")
		}
	default:
		entry.Debug("webhook: событие пропущено")
	}
	return nil
}

func (s *EscrowService) resolveSaleForPayment(ctx context.Context, event *payout.WebhookEvent) (uuid.UUID, error) {
	if event.SaleID != "" {
		id, err := uuid.Parse(event.SaleID)
		if err != nil {
			return uuid.Nil, apperror.Validation("некорректный sale_id в метаданных платежа")
		}
		return id, nil
	}
	if event.PaymentIntentID == "" {
		return uuid.Nil, apperror.Validation("платёж не связан со сделкой")
	}
	sale, err := s.sales.GetByPaymentIntent(ctx, event.PaymentIntentID)
	if err != nil {
		return uuid.Nil, translate(err, "не удалось найти сделку по платежу")
	}
	return sale.ID, nil
}

// ConfirmReceipt - покупатель подтверждает получение, после чего сразу запускается выплата.
// Сбой выплаты не отменяет подтверждение: заказ остаётся в release_pending и
// подхватывается ProcessPendingPayouts.
func (s *EscrowService) ConfirmReceipt(ctx context.Context, saleID, buyerID uuid.UUID) (*ReleaseResult, error) {
	meta := &repository.TransitionMeta{ActorID: &buyerID, Action: models.SaleActionReceiptConfirm}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.ConfirmReceipt(buyerID, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось подтвердить получение")
	}

	result, err := s.Release(ctx, saleID, Identity{UserID: buyerID})
	if err != nil {
		logger.Money(saleID.String(), sale.PayoutAmount(), "release").WithError(err).
			Warn("выплата после подтверждения получения отложена")
		return &ReleaseResult{Sale: sale, ReleaseDeferred: true}, nil
	}
	return result, nil
}

// ReleaseByAdmin - ручная выплата администратором.
func (s *EscrowService) ReleaseByAdmin(ctx context.Context, saleID uuid.UUID, id Identity) (*ReleaseResult, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	return s.Release(ctx, saleID, id)
}

// Release переводит продавцу цену за вычетом сбора площадки. Продавец без готового
// счёта переводит заказ в release_pending_onboarding, это не ошибка.
// При сбое провайдера состояние заказа не меняется.
func (s *EscrowService) Release(ctx context.Context, saleID uuid.UUID, actor Identity) (*ReleaseResult, error) {
	return s.release(ctx, saleID, actor, nil)
}

func (s *EscrowService) release(ctx context.Context, saleID uuid.UUID, actor Identity, guard func(*models.Sale) error) (*ReleaseResult, error) {
	current, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить заказ")
	}
	if err := current.CheckReleasable(); err != nil {
		return nil, err
	}

	seller, err := s.users.GetByID(ctx, current.SellerID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить продавца")
	}
	account, ready, err := s.payoutReadiness(ctx, seller)
	if err != nil {
		logger.Money(saleID.String(), current.PayoutAmount(), "release").WithError(err).
			Error("не удалось проверить счёт продавца")
		return nil, apperror.ExternalService(err, "платёжный провайдер недоступен")
	}

	result := &ReleaseResult{}
	meta := &repository.TransitionMeta{ActorID: actor.actor(), Action: models.SaleActionReleased}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		if guard != nil {
			if err := guard(sale); err != nil {
				return err
			}
		}
		if err := sale.CheckReleasable(); err != nil {
			return err
		}

		now := s.now()
		if !ready {
			if sale.PaymentStatus == valueobject.PaymentStatusReleasePendingOnboarding {
				result.PendingOnboarding = true
				return common.ErrNoChange
			}
			meta.Action = models.SaleActionAwaitOnboarding
			result.PendingOnboarding = true
			return sale.MarkAwaitingOnboarding(now)
		}

		amount := sale.PayoutAmount()
		transferID := ""
		if amount.IsPositive() {
			tr, err := s.provider.Transfer(ctx, payout.TransferRequest{
				AccountID:      account,
				Amount:         amount,
				Currency:       valueobject.CurrencyCHF,
				ChargeID:       stringValue(sale.StripeChargeID),
				SaleID:         sale.ID.String(),
				IdempotencyKey: payout.ReleaseKey(sale.ID.String()),
			})
			if err != nil {
				logger.Money(sale.ID.String(), amount, "release").WithError(err).Error("перевод продавцу не прошёл")
				return apperror.ExternalService(err, "платёжный провайдер не выполнил перевод")
			}
			transferID = tr.TransferID
		}

		meta.Payload = map[string]any{"transfer_id": transferID, "amount": amount.StringFixed(2)}
		result.TransferID = transferID
		result.Released = true
		return sale.MarkReleased(transferID, now)
	})
	if err != nil {
		return nil, translate(err, "не удалось выполнить выплату")
	}
	result.Sale = sale

	switch {
	case result.Released:
		s.notifier.Notify(sale.SellerID, EventOrderReleased, map[string]any{
			"order_id": sale.ID, "amount": sale.PayoutAmount().StringFixed(2),
		})
	case result.PendingOnboarding:
		s.notifier.Notify(sale.SellerID, EventPayoutOnboarding, map[string]any{"order_id": sale.ID})
	}
	return result, nil
}

// payoutReadiness проверяет, может ли продавец принять перевод. Если в базе выплаты ещё
// не включены, состояние уточняется у провайдера и сохраняется.
func (s *EscrowService) payoutReadiness(ctx context.Context, seller *models.User) (string, bool, error) {
	account, ok := seller.PayoutAccount()
	if !ok {
		return "", false, nil
	}
	if seller.PayoutsEnabled {
		return account, true, nil
	}

	status, err := s.provider.AccountStatus(ctx, account)
	if err != nil {
		return "", false, err
	}
	if !status.PayoutsEnabled {
		return account, false, nil
	}
	if err := s.users.UpdatePayoutStatus(ctx, account, status.PayoutsEnabled, status.DetailsSubmitted); err != nil {
		logger.Log.WithError(err).WithField("seller_id", seller.ID).Warn("не удалось сохранить статус счёта продавца")
	}
	return account, true, nil
}

// OpenDispute - покупатель открывает спор и замораживает выплату.
func (s *EscrowService) OpenDispute(ctx context.Context, saleID, buyerID uuid.UUID, reason, description string) (*models.Sale, error) {
	disputeReason, err := valueobject.NewDisputeReason(reason)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateDisputeDescription(description); err != nil {
		return nil, err
	}

	meta := &repository.TransitionMeta{
		ActorID: &buyerID,
		Action:  models.SaleActionDisputeOpened,
		Payload: map[string]any{"reason": reason},
	}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.OpenDispute(buyerID, disputeReason, description, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось открыть спор")
	}

	data := map[string]any{"order_id": sale.ID, "reason": reason}
	s.notifier.Notify(sale.BuyerID, EventDisputeOpened, data)
	s.notifier.Notify(sale.SellerID, EventDisputeOpened, data)
	return sale, nil
}

// Hold - административная заморозка заказа.
func (s *EscrowService) Hold(ctx context.Context, saleID uuid.UUID, id Identity, reason string) (*models.Sale, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	if err := validation.ValidateReason(reason, true); err != nil {
		return nil, err
	}

	meta := &repository.TransitionMeta{
		ActorID: id.actor(),
		Action:  models.SaleActionHeld,
		Payload: map[string]any{"reason": reason},
	}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.Hold(reason, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось заморозить заказ")
	}

	data := map[string]any{"order_id": sale.ID}
	s.notifier.Notify(sale.BuyerID, EventOrderHeld, data)
	s.notifier.Notify(sale.SellerID, EventOrderHeld, data)
	return sale, nil
}

// Get возвращает заказ участнику сделки или администратору.
func (s *EscrowService) Get(ctx context.Context, saleID uuid.UUID, id Identity) (*OrderView, error) {
	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить заказ")
	}
	if !sale.IsParticipant(id.UserID) {
		isAdmin, err := s.authz.IsAdmin(ctx, id)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, apperror.ErrForbidden
		}
	}

	events, err := s.sales.ListEvents(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить историю заказа")
	}
	return &OrderView{Order: sale, Events: events}, nil
}

// ProcessPendingPayouts повторяет выплаты, которые ждали подключения счёта продавца
// или не прошли сразу после подтверждения получения.
func (s *EscrowService) ProcessPendingPayouts(ctx context.Context) (*BatchResult, error) {
	ids, err := s.sales.ListPendingPayouts(ctx, payoutBatchSize)
	if err != nil {
		return nil, translate(err, "не удалось выбрать заказы для выплаты")
	}

	result := &BatchResult{Errors: []ItemError{}}
	for _, id := range ids {
		res, err := s.Release(ctx, id, SystemIdentity)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: id, Error: err.Error()})
			continue
		}
		if res.Released {
			result.Released++
		} else if res.PendingOnboarding {
			result.PendingOnboarding++
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"released":           result.Released,
		"pending_onboarding": result.PendingOnboarding,
		"errors":             len(result.Errors),
	}).Info("повтор отложенных выплат завершён")
	return result, nil
}

// CancelSale отменяет неоплаченную сделку. Отменить может продавец или администратор;
// счёт на комиссию аннулируется.
func (s *EscrowService) CancelSale(ctx context.Context, saleID uuid.UUID, id Identity, reason string) (*models.Sale, error) {
	if err := validation.ValidateReason(reason, false); err != nil {
		return nil, err
	}
	current, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить заказ")
	}
	if current.SellerID != id.UserID {
		if err := s.authz.RequireAdmin(ctx, id); err != nil {
			return nil, err
		}
	}

	meta := &repository.TransitionMeta{
		ActorID: id.actor(),
		Action:  models.SaleActionCancelled,
		Payload: map[string]any{"reason": reason},
	}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.Cancel(s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось отменить сделку")
	}

	if err := s.invoices.CancelCommissionForSale(ctx, saleID, "сделка отменена"); err != nil {
		logger.Money(saleID.String(), sale.ItemPrice, "cancel_commission").WithError(err).
			Error("не удалось аннулировать счёт на комиссию")
	}

	s.notifier.Notify(sale.BuyerID, EventOrderCancelled, map[string]any{"order_id": sale.ID, "reason": reason})
	return sale, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
