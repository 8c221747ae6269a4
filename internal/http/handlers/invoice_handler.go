package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// InvoiceOperations - счета продавцам.
type InvoiceOperations interface {
	List(ctx context.Context, id service.Identity, sellerID *uuid.UUID, status string, limit, offset int) ([]models.Invoice, error)
	Get(ctx context.Context, id service.Identity, invoiceID uuid.UUID) (*models.Invoice, error)
	CancelInvoice(ctx context.Context, id service.Identity, invoiceID uuid.UUID, reason string) (*models.Invoice, error)
	RecordPayment(ctx context.Context, id service.Identity, invoiceID uuid.UUID, method, reference string) (*models.Invoice, error)
	CreateAncillaryInvoice(ctx context.Context, id service.Identity, sellerID uuid.UUID, lines []service.AncillaryItem) (*models.Invoice, error)
}

// InvoiceHandler обслуживает маршруты счетов.
type InvoiceHandler struct {
	invoices InvoiceOperations
}

// NewInvoiceHandler создаёт новый хэндлер.
func NewInvoiceHandler(invoices InvoiceOperations) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// List обрабатывает GET /invoices?seller_id=&status=&limit=&offset=.
func (h *InvoiceHandler) List(c *gin.Context) {
	identity, err := common.CurrentIdentity(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var sellerID *uuid.UUID
	if raw := c.Query("seller_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			common.Fail(c, apperror.Validation("seller_id должен быть валидным UUID"))
			return
		}
		sellerID = &parsed
	}

	limit, offset := common.GetPagination(c)
	invoices, err := h.invoices.List(c.Request.Context(), identity, sellerID, c.Query("status"), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InvoiceListResponse{Invoices: invoices, Limit: limit, Offset: offset})
}

// Get обрабатывает GET /invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	identity, invoiceID, ok := identityAndID(c)
	if !ok {
		return
	}

	invoice, err := h.invoices.Get(c.Request.Context(), identity, invoiceID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InvoiceResponse{Invoice: invoice})
}

// Cancel обрабатывает POST /invoices/:id/cancel.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	identity, invoiceID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	invoice, err := h.invoices.CancelInvoice(c.Request.Context(), identity, invoiceID, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InvoiceResponse{Invoice: invoice})
}

// RecordPayment обрабатывает POST /invoices/:id/payments.
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	identity, invoiceID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.RecordPaymentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	invoice, err := h.invoices.RecordPayment(c.Request.Context(), identity, invoiceID, req.Method, req.Reference)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InvoiceResponse{Invoice: invoice})
}

// CreateAncillary обрабатывает POST /invoices/ancillary.
func (h *InvoiceHandler) CreateAncillary(c *gin.Context) {
	identity, err := common.CurrentIdentity(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req dto.CreateAncillaryInvoiceRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	lines := make([]service.AncillaryItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, service.AncillaryItem{
			Kind:        l.Kind,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}

	invoice, err := h.invoices.CreateAncillaryInvoice(c.Request.Context(), identity, req.SellerID, lines)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.InvoiceResponse{Invoice: invoice})
}
