package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// Invoice - счёт продавцу за комиссию площадки или дополнительные услуги.
type Invoice struct {
	ID               uuid.UUID                 `db:"id" json:"id"`
	InvoiceNumber    string                    `db:"invoice_number" json:"invoice_number"`
	Kind             string                    `db:"kind" json:"kind"`
	SellerID         uuid.UUID                 `db:"seller_id" json:"seller_id"`
	SaleID           *uuid.UUID                `db:"sale_id" json:"sale_id,omitempty"`
	Currency         string                    `db:"currency" json:"currency"`
	Subtotal         decimal.Decimal           `db:"subtotal" json:"subtotal"`
	VATRate          decimal.Decimal           `db:"vat_rate" json:"vat_rate"`
	VATAmount        decimal.Decimal           `db:"vat_amount" json:"vat_amount"`
	Total            decimal.Decimal           `db:"total" json:"total"`
	Status           valueobject.InvoiceStatus `db:"status" json:"status"`
	IssuedAt         time.Time                 `db:"issued_at" json:"issued_at"`
	DueDate          time.Time                 `db:"due_date" json:"due_date"`
	PaidAt           *time.Time                `db:"paid_at" json:"paid_at,omitempty"`
	PaymentMethod    *string                   `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference *string                   `db:"payment_reference" json:"payment_reference,omitempty"`
	CancelReason     *string                   `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt        time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                 `db:"updated_at" json:"updated_at"`

	Items []InvoiceItem `db:"-" json:"items,omitempty"`
}

// InvoiceItem - строка счёта.
type InvoiceItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Position    int             `db:"position" json:"position"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
}

func (i *Invoice) setStatus(next valueobject.InvoiceStatus, now time.Time) error {
	if !i.Status.CanTransitionTo(next) {
		return apperror.InvalidState("счёт в статусе " + string(i.Status) + " нельзя перевести в " + string(next))
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

// Cancel аннулирует неоплаченный счёт.
func (i *Invoice) Cancel(reason string, now time.Time) error {
	if i.Status != valueobject.InvoiceStatusPending {
		return apperror.InvalidState("отменить можно только ожидающий оплаты счёт")
	}
	if err := i.setStatus(valueobject.InvoiceStatusCancelled, now); err != nil {
		return err
	}
	if reason != "" {
		i.CancelReason = &reason
	}
	return nil
}

// RecordPayment отмечает счёт оплаченным.
func (i *Invoice) RecordPayment(method, reference string, now time.Time) error {
	if _, ok := ValidPaymentMethods[method]; !ok {
		return apperror.Validation("неизвестный способ оплаты")
	}
	if err := i.setStatus(valueobject.InvoiceStatusPaid, now); err != nil {
		return err
	}
	i.PaidAt = &now
	i.PaymentMethod = &method
	if reference != "" {
		i.PaymentReference = &reference
	}
	return nil
}

// MarkOverdue переводит просроченный счёт в overdue. Возвращает false, если срок ещё не прошёл.
func (i *Invoice) MarkOverdue(now time.Time) (bool, error) {
	if !now.After(i.DueDate) {
		return false, nil
	}
	if err := i.setStatus(valueobject.InvoiceStatusOverdue, now); err != nil {
		return false, err
	}
	return true, nil
}

// IsOpen - счёт ещё ждёт оплаты.
func (i *Invoice) IsOpen() bool {
	return i.Status == valueobject.InvoiceStatusPending || i.Status == valueobject.InvoiceStatusOverdue
}
