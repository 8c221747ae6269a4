package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenDisputeRequest - тело POST /orders/:id/dispute.
type OpenDisputeRequest struct {
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// ReasonRequest - тело операций, где администратор указывает причину (refund, hold, cancel).
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest - тело POST /orders/:id/dispute/resolve.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Note    string `json:"note"`
}

// RecordPaymentRequest - тело POST /invoices/:id/payments.
type RecordPaymentRequest struct {
	Method    string `json:"method" binding:"required"`
	Reference string `json:"reference"`
}

// AncillaryLineRequest - строка счёта за платные опции.
type AncillaryLineRequest struct {
	Kind        string           `json:"kind" binding:"required"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

// CreateAncillaryInvoiceRequest - тело POST /invoices/ancillary.
type CreateAncillaryInvoiceRequest struct {
	SellerID uuid.UUID              `json:"seller_id" binding:"required"`
	Lines    []AncillaryLineRequest `json:"lines" binding:"required,min=1,dive"`
}
