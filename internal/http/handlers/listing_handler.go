package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// Purchaser - покупка объявления по фиксированной цене.
type Purchaser interface {
	PurchaseFixedPrice(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Sale, error)
}

type ListingHandler struct {
	auctions Purchaser
}

func NewListingHandler(auctions Purchaser) *ListingHandler {
	return &ListingHandler{auctions: auctions}
}

// Purchase POST /listings/:id/purchase
func (h *ListingHandler) Purchase(c *gin.Context) {
	identity, listingID, ok := identityAndID(c)
	if !ok {
		return
	}

	sale, err := h.auctions.PurchaseFixedPrice(c.Request.Context(), listingID, identity.UserID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OrderResponse{Order: sale})
}
