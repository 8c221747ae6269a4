package valueobject

import "github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"

// PaymentStatus - состояние эскроу по заказу.
type PaymentStatus string

const (
	PaymentStatusNone                     PaymentStatus = "none"
	PaymentStatusPaid                     PaymentStatus = "paid"
	PaymentStatusReleasePending           PaymentStatus = "release_pending"
	PaymentStatusReleasePendingOnboarding PaymentStatus = "release_pending_onboarding"
	PaymentStatusReleased                 PaymentStatus = "released"
	PaymentStatusRefunded                 PaymentStatus = "refunded"
	PaymentStatusDisputed                 PaymentStatus = "disputed"
	PaymentStatusOnHold                   PaymentStatus = "on_hold"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusNone: {PaymentStatusPaid},
	PaymentStatusPaid: {
		PaymentStatusReleasePending,
		PaymentStatusReleasePendingOnboarding,
		PaymentStatusReleased,
		PaymentStatusDisputed,
		PaymentStatusOnHold,
		PaymentStatusRefunded,
	},
	PaymentStatusReleasePending: {
		PaymentStatusReleasePendingOnboarding,
		PaymentStatusReleased,
		PaymentStatusDisputed,
		PaymentStatusOnHold,
		PaymentStatusRefunded,
	},
	PaymentStatusReleasePendingOnboarding: {PaymentStatusReleased},
	PaymentStatusDisputed: {
		PaymentStatusReleased,
		PaymentStatusReleasePendingOnboarding,
		PaymentStatusRefunded,
		PaymentStatusReleasePending,
	},
	PaymentStatusOnHold:   {PaymentStatusDisputed, PaymentStatusReleasePending},
	PaymentStatusReleased: {},
	PaymentStatusRefunded: {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// IsTerminal: released и refunded не покидаются никогда.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusReleased || s == PaymentStatusRefunded
}

// IsHeld - средства покупателя находятся у платформы и ещё могут быть выплачены продавцу.
func (s PaymentStatus) IsHeld() bool {
	return s == PaymentStatusPaid || s == PaymentStatusReleasePending
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func NewPaymentStatus(status string) (PaymentStatus, error) {
	s := PaymentStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус оплаты")
	}
	return s, nil
}

// DisputeStatus - состояние спора по заказу.
type DisputeStatus string

const (
	DisputeStatusNone        DisputeStatus = "none"
	DisputeStatusOpened      DisputeStatus = "opened"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusClosed      DisputeStatus = "closed"
)

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusNone:        {DisputeStatusOpened, DisputeStatusUnderReview},
	DisputeStatusOpened:      {DisputeStatusUnderReview, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusUnderReview: {DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusResolved:    {},
	DisputeStatusClosed:      {},
}

func (s DisputeStatus) IsValid() bool {
	_, ok := disputeTransitions[s]
	return ok
}

// IsActive - спор блокирует подтверждение получения и автовыплату.
func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpened || s == DisputeStatusUnderReview
}

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	for _, allowed := range disputeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func NewDisputeStatus(status string) (DisputeStatus, error) {
	s := DisputeStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус спора")
	}
	return s, nil
}

// InvoiceStatus - состояние счёта на комиссию.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:   {InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusOverdue},
	InvoiceStatusOverdue:   {InvoiceStatusPaid},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

func (s InvoiceStatus) IsValid() bool {
	_, ok := invoiceTransitions[s]
	return ok
}

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func NewInvoiceStatus(status string) (InvoiceStatus, error) {
	s := InvoiceStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус счёта")
	}
	return s, nil
}

// DisputeReason - причина спора, которую выбирает покупатель.
type DisputeReason string

const (
	DisputeReasonNotReceived    DisputeReason = "not_received"
	DisputeReasonNotAsDescribed DisputeReason = "not_as_described"
	DisputeReasonDamaged        DisputeReason = "damaged"
	DisputeReasonCounterfeit    DisputeReason = "counterfeit"
	DisputeReasonOther          DisputeReason = "other"
)

func NewDisputeReason(reason string) (DisputeReason, error) {
	switch r := DisputeReason(reason); r {
	case DisputeReasonNotReceived, DisputeReasonNotAsDescribed, DisputeReasonDamaged, DisputeReasonCounterfeit, DisputeReasonOther:
		return r, nil
	}
	return "", apperror.Validation("некорректная причина спора")
}

// DisputeOutcome - решение администратора по спору.
type DisputeOutcome string

const (
	DisputeOutcomeReleaseToSeller DisputeOutcome = "release_to_seller"
	DisputeOutcomeRefundBuyer     DisputeOutcome = "refund_buyer"
	DisputeOutcomeClose           DisputeOutcome = "close"
)

func NewDisputeOutcome(outcome string) (DisputeOutcome, error) {
	switch o := DisputeOutcome(outcome); o {
	case DisputeOutcomeReleaseToSeller, DisputeOutcomeRefundBuyer, DisputeOutcomeClose:
		return o, nil
	}
	return "", apperror.Validation("некорректное решение по спору")
}
