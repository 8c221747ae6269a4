package dto

import (
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// ErrorResponse - стандартный ответ об ошибке. Флаги AppError выводятся рядом с кодом.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// OrderResponse - заказ после операции.
type OrderResponse struct {
	Order *models.Sale `json:"order"`
}

// EligibleResponse - ответ GET /orders/auto-release.
type EligibleResponse struct {
	Eligible int `json:"eligible"`
}

// InvoiceResponse - счёт после операции.
type InvoiceResponse struct {
	Invoice *models.Invoice `json:"invoice"`
}

// InvoiceListResponse - страница счетов.
type InvoiceListResponse struct {
	Invoices []models.Invoice `json:"invoices"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// DisputeListResponse - страница заказов со спорами.
type DisputeListResponse struct {
	Orders []models.Sale `json:"orders"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
