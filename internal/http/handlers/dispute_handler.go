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

// DisputeOperations - разбор споров администратором.
type DisputeOperations interface {
	MarkUnderReview(ctx context.Context, saleID uuid.UUID, id service.Identity) (*models.Sale, error)
	Resolve(ctx context.Context, saleID uuid.UUID, id service.Identity, outcome, note string) (*service.ResolveResult, error)
	ListDisputes(ctx context.Context, id service.Identity, status string, limit, offset int) ([]models.Sale, error)
}

type DisputeHandler struct {
	disputes DisputeOperations
}

func NewDisputeHandler(disputes DisputeOperations) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// Review POST /orders/:id/dispute/review
func (h *DisputeHandler) Review(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	sale, err := h.disputes.MarkUnderReview(c.Request.Context(), orderID, identity)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: sale})
}

// Resolve POST /orders/:id/dispute/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	identity, orderID, ok := identityAndID(c)
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.disputes.Resolve(c.Request.Context(), orderID, identity, req.Outcome, req.Note)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// List GET /disputes
func (h *DisputeHandler) List(c *gin.Context) {
	identity, err := common.CurrentIdentity(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	orders, err := h.disputes.ListDisputes(c.Request.Context(), identity, c.Query("status"), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DisputeListResponse{Orders: orders, Limit: limit, Offset: offset})
}
