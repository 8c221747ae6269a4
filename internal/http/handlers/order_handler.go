package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// EscrowOperations - операции над заказом, доступные через HTTP.
type EscrowOperations interface {
	ConfirmReceipt(ctx context.Context, saleID, buyerID uuid.UUID) (*service.ReleaseResult, error)
	OpenDispute(ctx context.Context, saleID, buyerID uuid.UUID, reason, description string) (*models.Sale, error)
	Hold(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error)
	ReleaseByAdmin(ctx context.Context, saleID uuid.UUID, id service.Identity) (*service.ReleaseResult, error)
	CancelSale(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error)
	Get(ctx context.Context, saleID uuid.UUID, id service.Identity) (*service.OrderView, error)
}

// RefundOperations - возврат средств покупателю.
type RefundOperations interface {
	Refund(ctx context.Context, saleID uuid.UUID, id service.Identity, reason string) (*models.Sale, error)
}

// CommissionReissuer - повторное выставление счёта на комиссию.
type CommissionReissuer interface {
	ReissueCommissionInvoice(ctx context.Context, id service.Identity, saleID uuid.UUID) (*models.Invoice, error)
}

// OrderHandler обслуживает маршруты эскроу заказа.
type OrderHandler struct {
	escrow   EscrowOperations
	refunds  RefundOperations
	invoices CommissionReissuer
}

// NewOrderHandler создаёт новый хэндлер.
func NewOrderHandler(escrow EscrowOperations, refunds RefundOperations, invoices CommissionReissuer) *OrderHandler {
	return &OrderHandler{escrow: escrow, refunds: refunds, invoices: invoices}
}

// identityAndID достаёт пользователя и :id маршрута; при ошибке ответ уже отправлен.
func identityAndID(c *gin.Context) (service.Identity, uuid.UUID, bool) {
	identity, err := common.CurrentIdentity(c)
	if err != nil {
		common.Fail(c, err)
		return service.Identity{}, uuid.Nil, false
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return service.Identity{}, uuid.Nil, false
	}
	return identity, orderID, true
}

// ConfirmReceipt обрабатывает POST /orders/:id/confirm-receipt.
func (h *OrderHandler) ConfirmReceipt(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	result, err := h.escrow.ConfirmReceipt(c.Request.Context(), orderID, identity.UserID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// OpenDispute обрабатывает POST /orders/:id/dispute.
func (h *OrderHandler) OpenDispute(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.OpenDisputeRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	sale, err := h.escrow.OpenDispute(c.Request.Context(), orderID, identity.UserID, req.Reason, req.Description)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: sale})
}

// Refund обрабатывает POST /orders/:id/refund.
func (h *OrderHandler) Refund(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	sale, err := h.refunds.Refund(c.Request.Context(), orderID, identity, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: sale})
}

// Hold обрабатывает POST /orders/:id/hold.
func (h *OrderHandler) Hold(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	sale, err := h.escrow.Hold(c.Request.Context(), orderID, identity, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: sale})
}

// Release обрабатывает POST /orders/:id/release.
func (h *OrderHandler) Release(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	result, err := h.escrow.ReleaseByAdmin(c.Request.Context(), orderID, identity)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cancel обрабатывает POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	sale, err := h.escrow.CancelSale(c.Request.Context(), orderID, identity, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: sale})
}

// Get обрабатывает GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	view, err := h.escrow.Get(c.Request.Context(), orderID, identity)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ReissueInvoice обрабатывает POST /orders/:id/invoice.
func (h *OrderHandler) ReissueInvoice(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.ReissueCommissionInvoice(c.Request.Context(), identity, orderID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InvoiceResponse{Invoice: invoice})
}

// bindOptionalJSON допускает пустое тело.
func bindOptionalJSON(c *gin.Context, req any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return common.BindJSON(c, req)
}
