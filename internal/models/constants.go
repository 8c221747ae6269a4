package models

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// InvoiceKind константы видов счетов
const (
	InvoiceKindCommission = "commission"
	InvoiceKindAncillary  = "ancillary"
)

// Способы оплаты счёта
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodTwint        = "twint"
)

// ValidPaymentMethods список допустимых способов оплаты счетов
var ValidPaymentMethods = map[string]struct{}{
	PaymentMethodBankTransfer: {},
	PaymentMethodCard:         {},
	PaymentMethodTwint:        {},
}

// Действия журнала сделки
const (
	SaleActionCreated         = "created"
	SaleActionPaid            = "paid"
	SaleActionReceiptConfirm  = "receipt_confirmed"
	SaleActionReleased        = "released"
	SaleActionAwaitOnboarding = "awaiting_onboarding"
	SaleActionDisputeOpened   = "dispute_opened"
	SaleActionHeld            = "held"
	SaleActionUnderReview     = "under_review"
	SaleActionDisputeResolved = "dispute_resolved"
	SaleActionRefunded        = "refunded"
	SaleActionCancelled       = "cancelled"
)
