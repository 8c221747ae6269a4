package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// MinDisputeDescriptionLength - минимальная длина описания спора.
const MinDisputeDescriptionLength = 10

// Sale - обязательная к исполнению сделка по объявлению, средства по которой
// удерживаются в эскроу. Поля статусов меняются только методами ниже.
type Sale struct {
	ID                    uuid.UUID                 `db:"id" json:"id"`
	ListingID             uuid.UUID                 `db:"listing_id" json:"listing_id"`
	BuyerID               uuid.UUID                 `db:"buyer_id" json:"buyer_id"`
	SellerID              uuid.UUID                 `db:"seller_id" json:"seller_id"`
	ItemPrice             decimal.Decimal           `db:"item_price" json:"item_price"`
	PlatformFee           decimal.Decimal           `db:"platform_fee" json:"platform_fee"`
	TotalAmount           decimal.Decimal           `db:"total_amount" json:"total_amount"`
	PaymentStatus         valueobject.PaymentStatus `db:"payment_status" json:"payment_status"`
	DisputeStatus         valueobject.DisputeStatus `db:"dispute_status" json:"dispute_status"`
	BuyerConfirmedReceipt bool                      `db:"buyer_confirmed_receipt" json:"buyer_confirmed_receipt"`
	PaidAt                *time.Time                `db:"paid_at" json:"paid_at,omitempty"`
	AutoReleaseAt         *time.Time                `db:"auto_release_at" json:"auto_release_at,omitempty"`
	ReleasedAt            *time.Time                `db:"released_at" json:"released_at,omitempty"`
	RefundedAt            *time.Time                `db:"refunded_at" json:"refunded_at,omitempty"`
	CancelledAt           *time.Time                `db:"cancelled_at" json:"cancelled_at,omitempty"`
	StripeChargeID        *string                   `db:"stripe_charge_id" json:"stripe_charge_id,omitempty"`
	StripePaymentIntentID *string                   `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeTransferID      *string                   `db:"stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	StripeRefundID        *string                   `db:"stripe_refund_id" json:"stripe_refund_id,omitempty"`
	HoldReason            *string                   `db:"hold_reason" json:"hold_reason,omitempty"`
	DisputeReason         *string                   `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputeDescription    *string                   `db:"dispute_description" json:"dispute_description,omitempty"`
	DisputeResolution     *string                   `db:"dispute_resolution" json:"dispute_resolution,omitempty"`
	DisputeOpenedAt       *time.Time                `db:"dispute_opened_at" json:"dispute_opened_at,omitempty"`
	DisputeResolvedAt     *time.Time                `db:"dispute_resolved_at" json:"dispute_resolved_at,omitempty"`
	CreatedAt             time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time                 `db:"updated_at" json:"updated_at"`
}

// NewSale создаёт сделку в статусе ожидания оплаты.
func NewSale(listingID, buyerID, sellerID uuid.UUID, itemPrice, platformFee decimal.Decimal, now time.Time) (*Sale, error) {
	if buyerID == sellerID {
		return nil, apperror.Validation("продавец не может купить собственный товар")
	}
	if !itemPrice.IsPositive() {
		return nil, apperror.Validation("цена сделки должна быть положительной")
	}
	if platformFee.IsNegative() || platformFee.GreaterThan(itemPrice) {
		return nil, apperror.Validation("некорректный сбор площадки")
	}

	return &Sale{
		ID:            uuid.New(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ItemPrice:     itemPrice,
		PlatformFee:   platformFee,
		TotalAmount:   itemPrice,
		PaymentStatus: valueobject.PaymentStatusNone,
		DisputeStatus: valueobject.DisputeStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsParticipant - покупатель или продавец по сделке.
func (s *Sale) IsParticipant(userID uuid.UUID) bool {
	return s.BuyerID == userID || s.SellerID == userID
}

// IsCancelled - сделка отменена до оплаты.
func (s *Sale) IsCancelled() bool {
	return s.CancelledAt != nil
}

// PayoutAmount - сумма перевода продавцу: цена минус сбор площадки.
func (s *Sale) PayoutAmount() decimal.Decimal {
	return s.ItemPrice.Sub(s.PlatformFee)
}

// HasTransfer - деньги уже ушли на счёт продавца.
func (s *Sale) HasTransfer() bool {
	return s.StripeTransferID != nil && *s.StripeTransferID != ""
}

func (s *Sale) setPaymentStatus(next valueobject.PaymentStatus, now time.Time) error {
	if !s.PaymentStatus.CanTransitionTo(next) {
		return apperror.InvalidState("переход " + string(s.PaymentStatus) + " → " + string(next) + " недопустим")
	}
	s.PaymentStatus = next
	s.UpdatedAt = now
	return nil
}

func (s *Sale) setDisputeStatus(next valueobject.DisputeStatus, now time.Time) error {
	if !s.DisputeStatus.CanTransitionTo(next) {
		return apperror.InvalidState("переход спора " + string(s.DisputeStatus) + " → " + string(next) + " недопустим")
	}
	s.DisputeStatus = next
	s.UpdatedAt = now
	return nil
}

// MarkPaid фиксирует подтверждённую провайдером оплату и срок автовыплаты.
func (s *Sale) MarkPaid(chargeID, paymentIntentID string, paidAt time.Time, releaseAfter time.Duration) error {
	if s.IsCancelled() {
		return apperror.InvalidState("сделка отменена")
	}
	if err := s.setPaymentStatus(valueobject.PaymentStatusPaid, paidAt); err != nil {
		return err
	}
	autoRelease := paidAt.Add(releaseAfter)
	s.PaidAt = &paidAt
	s.AutoReleaseAt = &autoRelease
	if chargeID != "" {
		s.StripeChargeID = &chargeID
	}
	if paymentIntentID != "" {
		s.StripePaymentIntentID = &paymentIntentID
	}
	return nil
}

// ConfirmReceipt - покупатель подтверждает получение товара.
func (s *Sale) ConfirmReceipt(buyerID uuid.UUID, now time.Time) error {
	if s.BuyerID != buyerID {
		return apperror.New(apperror.ErrCodeForbidden, "подтвердить получение может только покупатель")
	}
	if s.BuyerConfirmedReceipt {
		return apperror.InvalidState("получение уже подтверждено")
	}
	if s.DisputeStatus.IsActive() {
		return apperror.InvalidState("по заказу открыт спор").WithFlag("disputeActive", true)
	}
	if !s.PaymentStatus.IsHeld() {
		return apperror.InvalidState("заказ не ожидает подтверждения получения")
	}

	if s.PaymentStatus != valueobject.PaymentStatusReleasePending {
		if err := s.setPaymentStatus(valueobject.PaymentStatusReleasePending, now); err != nil {
			return err
		}
	}
	s.BuyerConfirmedReceipt = true
	s.UpdatedAt = now
	return nil
}

// CheckReleasable проверяет, что средства можно перевести продавцу.
// Спорный заказ сюда попадает только после решения администратора,
// когда спор уже переведён в resolved.
func (s *Sale) CheckReleasable() error {
	if s.PaymentStatus == valueobject.PaymentStatusReleased {
		return apperror.InvalidState("средства уже выплачены")
	}
	if s.PaymentStatus == valueobject.PaymentStatusRefunded {
		return apperror.InvalidState("средства уже возвращены покупателю")
	}
	if s.DisputeStatus.IsActive() {
		return apperror.InvalidState("по заказу открыт спор").WithFlag("disputeActive", true)
	}
	if s.HasTransfer() {
		return apperror.InvalidState("перевод продавцу уже выполнен")
	}

	switch s.PaymentStatus {
	case valueobject.PaymentStatusPaid,
		valueobject.PaymentStatusReleasePending,
		valueobject.PaymentStatusReleasePendingOnboarding:
		return nil
	case valueobject.PaymentStatusDisputed:
		if s.DisputeStatus == valueobject.DisputeStatusResolved {
			return nil
		}
	}
	return apperror.InvalidState("заказ в статусе " + string(s.PaymentStatus) + " нельзя выплатить")
}

// MarkReleased фиксирует успешный перевод продавцу.
func (s *Sale) MarkReleased(transferID string, now time.Time) error {
	if err := s.CheckReleasable(); err != nil {
		return err
	}
	if err := s.setPaymentStatus(valueobject.PaymentStatusReleased, now); err != nil {
		return err
	}
	s.StripeTransferID = &transferID
	s.ReleasedAt = &now
	s.AutoReleaseAt = nil
	return nil
}

// MarkAwaitingOnboarding - продавец ещё не подключил счёт для выплат.
func (s *Sale) MarkAwaitingOnboarding(now time.Time) error {
	if err := s.CheckReleasable(); err != nil {
		return err
	}
	if s.PaymentStatus == valueobject.PaymentStatusReleasePendingOnboarding {
		return nil
	}
	return s.setPaymentStatus(valueobject.PaymentStatusReleasePendingOnboarding, now)
}

// OpenDispute - покупатель замораживает выплату до разбора.
func (s *Sale) OpenDispute(buyerID uuid.UUID, reason valueobject.DisputeReason, description string, now time.Time) error {
	if s.BuyerID != buyerID {
		return apperror.New(apperror.ErrCodeForbidden, "открыть спор может только покупатель")
	}
	if len([]rune(description)) < MinDisputeDescriptionLength {
		return apperror.Validation("описание спора должно быть не короче 10 символов")
	}
	if s.DisputeStatus != valueobject.DisputeStatusNone {
		return apperror.InvalidState("спор по заказу уже открывался")
	}
	if !s.PaymentStatus.IsHeld() {
		return apperror.InvalidState("спор можно открыть только по оплаченному и не выплаченному заказу")
	}

	if err := s.setDisputeStatus(valueobject.DisputeStatusOpened, now); err != nil {
		return err
	}
	if err := s.setPaymentStatus(valueobject.PaymentStatusDisputed, now); err != nil {
		return err
	}
	r := string(reason)
	s.DisputeReason = &r
	s.DisputeDescription = &description
	s.DisputeOpenedAt = &now
	return nil
}

// Hold - административная заморозка независимо от спора.
func (s *Sale) Hold(reason string, now time.Time) error {
	if s.PaymentStatus == valueobject.PaymentStatusReleased {
		return apperror.InvalidState("средства уже выплачены")
	}
	if !s.PaymentStatus.IsHeld() {
		return apperror.InvalidState("заморозить можно только оплаченный и не выплаченный заказ")
	}
	if s.DisputeStatus != valueobject.DisputeStatusUnderReview {
		if err := s.setDisputeStatus(valueobject.DisputeStatusUnderReview, now); err != nil {
			return err
		}
	}
	if err := s.setPaymentStatus(valueobject.PaymentStatusOnHold, now); err != nil {
		return err
	}
	s.HoldReason = &reason
	s.AutoReleaseAt = nil
	return nil
}

// MarkUnderReview - администратор взял спор в работу.
func (s *Sale) MarkUnderReview(now time.Time) error {
	if s.PaymentStatus != valueobject.PaymentStatusDisputed && s.PaymentStatus != valueobject.PaymentStatusOnHold {
		return apperror.InvalidState("в работу можно взять только открытый спор или замороженный заказ")
	}
	return s.setDisputeStatus(valueobject.DisputeStatusUnderReview, now)
}

// ResolveDispute закрывает спор решением администратора. Деньги при этом не
// двигаются: выплату или возврат выполняет вызывающий код отдельным шагом.
func (s *Sale) ResolveDispute(outcome valueobject.DisputeOutcome, note string, releaseAfter time.Duration, now time.Time) error {
	if !s.DisputeStatus.IsActive() {
		return apperror.InvalidState("по заказу нет активного спора")
	}

	resolution := string(outcome)
	if note != "" {
		resolution += ": " + note
	}

	switch outcome {
	case valueobject.DisputeOutcomeClose:
		if err := s.setDisputeStatus(valueobject.DisputeStatusClosed, now); err != nil {
			return err
		}
		// Претензия снята: возвращаемся к ожиданию выплаты с новым сроком.
		if s.PaymentStatus == valueobject.PaymentStatusDisputed || s.PaymentStatus == valueobject.PaymentStatusOnHold {
			if err := s.setPaymentStatus(valueobject.PaymentStatusReleasePending, now); err != nil {
				return err
			}
			autoRelease := now.Add(releaseAfter)
			s.AutoReleaseAt = &autoRelease
		}
	default:
		if err := s.setDisputeStatus(valueobject.DisputeStatusResolved, now); err != nil {
			return err
		}
		if s.PaymentStatus == valueobject.PaymentStatusOnHold {
			// Разморозка в disputed, чтобы выплата или возврат шли через проверку resolved-спора.
			if err := s.setPaymentStatus(valueobject.PaymentStatusDisputed, now); err != nil {
				return err
			}
		}
	}

	s.DisputeResolution = &resolution
	s.DisputeResolvedAt = &now
	return nil
}

// CheckRefundable проверяет охранные условия возврата покупателю.
func (s *Sale) CheckRefundable() error {
	if s.PaymentStatus == valueobject.PaymentStatusRefunded {
		return apperror.InvalidState("средства уже возвращены")
	}
	if s.HasTransfer() {
		return apperror.ManualIntervention("средства уже переведены продавцу, требуется ручной возврат").
			WithFlag("requiresManualRefund", true).
			WithFlag("transferId", *s.StripeTransferID)
	}

	switch s.PaymentStatus {
	case valueobject.PaymentStatusPaid,
		valueobject.PaymentStatusReleasePending,
		valueobject.PaymentStatusDisputed:
	default:
		return apperror.InvalidState("заказ в статусе " + string(s.PaymentStatus) + " нельзя вернуть")
	}

	if s.StripeChargeID == nil || *s.StripeChargeID == "" {
		return apperror.ManualIntervention("у заказа нет ссылки на платёж, требуется ручной возврат").
			WithFlag("requiresManualRefund", true)
	}
	return nil
}

// MarkRefunded фиксирует успешный возврат покупателю.
func (s *Sale) MarkRefunded(refundID string, now time.Time) error {
	if err := s.CheckRefundable(); err != nil {
		return err
	}
	if err := s.setPaymentStatus(valueobject.PaymentStatusRefunded, now); err != nil {
		return err
	}
	s.StripeRefundID = &refundID
	s.RefundedAt = &now
	s.AutoReleaseAt = nil
	return nil
}

// Cancel отменяет сделку до оплаты.
func (s *Sale) Cancel(now time.Time) error {
	if s.IsCancelled() {
		return apperror.InvalidState("сделка уже отменена")
	}
	if s.PaymentStatus != valueobject.PaymentStatusNone {
		return apperror.InvalidState("оплаченную сделку нельзя отменить, используйте возврат")
	}
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// IsEligibleForAutoRelease повторяет условия выборки планировщика автовыплат.
func (s *Sale) IsEligibleForAutoRelease(now time.Time) bool {
	return s.PaymentStatus.IsHeld() &&
		s.ReleasedAt == nil &&
		!s.BuyerConfirmedReceipt &&
		!s.DisputeStatus.IsActive() &&
		s.AutoReleaseAt != nil &&
		!s.AutoReleaseAt.After(now)
}
