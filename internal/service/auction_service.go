package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/billing"
	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

const settlementBatchSize = 200

// ListingRepository - объявления, ставки и создание сделок.
type ListingRepository interface {
	ListExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	CreateSale(ctx context.Context, listingID uuid.UUID, actorID *uuid.UUID, build func(*models.Listing, []models.Bid) (*models.Sale, error)) (*models.Sale, error)
	ListActivePromotions(ctx context.Context, listingID uuid.UUID, at time.Time) ([]models.ListingPromotion, error)
}

// CommissionIssuer выставляет счёт на комиссию по новой сделке.
type CommissionIssuer interface {
	CreateCommissionInvoice(ctx context.Context, saleID uuid.UUID) (*models.Invoice, error)
}

// SettledListing - аукцион, закрытый сделкой.
type SettledListing struct {
	ListingID uuid.UUID `json:"listingId"`
	SaleID    uuid.UUID `json:"saleId"`
	WinnerID  uuid.UUID `json:"winnerId"`
	Amount    string    `json:"amount"`
}

// SettlementResult - итог прохода по завершённым аукционам.
type SettlementResult struct {
	Processed []SettledListing `json:"processed"`
	Skipped   []uuid.UUID      `json:"skipped"`
	Errors    []ItemError      `json:"errors"`
}

// AuctionService превращает завершённые аукционы и покупки по фиксированной цене в сделки.
type AuctionService struct {
	listings ListingRepository
	invoices CommissionIssuer
	notifier Notifier
	fees     config.FeeSchedule
	now      func() time.Time
}

// NewAuctionService создаёт сервис расчёта аукционов.
func NewAuctionService(listings ListingRepository, invoices CommissionIssuer, notifier Notifier, fees config.FeeSchedule) *AuctionService {
	return &AuctionService{
		listings: listings,
		invoices: invoices,
		notifier: notifier,
		fees:     fees,
		now:      time.Now,
	}
}

// SettleExpiredAuctions закрывает аукционы, завершившиеся к моменту now. Ошибка по одному
// объявлению попадает в Errors и не прерывает проход; уже проданные объявления - в Skipped.
func (s *AuctionService) SettleExpiredAuctions(ctx context.Context, now time.Time) (*SettlementResult, error) {
	ids, err := s.listings.ListExpiredAuctions(ctx, now, settlementBatchSize)
	if err != nil {
		return nil, translate(err, "не удалось выбрать завершённые аукционы")
	}

	result := &SettlementResult{
		Processed: []SettledListing{},
		Skipped:   []uuid.UUID{},
		Errors:    []ItemError{},
	}
	for _, listingID := range ids {
		sale, err := s.listings.CreateSale(ctx, listingID, nil, func(listing *models.Listing, bids []models.Bid) (*models.Sale, error) {
			if !listing.IsAuctionExpired(now) {
				return nil, apperror.InvalidState("аукцион ещё не завершён")
			}
			winner := models.WinningBid(bids)
			if winner == nil {
				return nil, errNoBids
			}
			return s.buildSale(listing, winner.BidderID, winner.Amount, now)
		})
		switch {
		case errors.Is(err, repository.ErrListingAlreadySold), errors.Is(err, errNoBids):
			result.Skipped = append(result.Skipped, listingID)
			continue
		case err != nil:
			logger.Log.WithError(err).WithField("listing_id", listingID).Error("не удалось закрыть аукцион")
			result.Errors = append(result.Errors, ItemError{ID: listingID, Error: translate(err, "ошибка расчёта аукциона").Error()})
			continue
		}

		result.Processed = append(result.Processed, SettledListing{
			ListingID: listingID,
			SaleID:    sale.ID,
			WinnerID:  sale.BuyerID,
			Amount:    sale.ItemPrice.StringFixed(2),
		})
		s.afterSale(ctx, sale, EventAuctionWon, EventAuctionSold)
	}

	logger.Log.WithFields(logrus.Fields{
		"candidates": len(ids),
		"processed":  len(result.Processed),
		"skipped":    len(result.Skipped),
		"errors":     len(result.Errors),
	}).Info("расчёт аукционов завершён")
	return result, nil
}

var errNoBids = errors.New("auction has no bids")

// PurchaseFixedPrice - покупка объявления по фиксированной цене.
func (s *AuctionService) PurchaseFixedPrice(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Sale, error) {
	sale, err := s.listings.CreateSale(ctx, listingID, &buyerID, func(listing *models.Listing, _ []models.Bid) (*models.Sale, error) {
		if listing.IsAuction {
			return nil, apperror.InvalidState("объявление продаётся с аукциона")
		}
		return s.buildSale(listing, buyerID, listing.Price, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось оформить покупку")
	}

	s.afterSale(ctx, sale, EventOrderCreated, EventListingSold)
	return sale, nil
}

func (s *AuctionService) buildSale(listing *models.Listing, buyerID uuid.UUID, itemPrice decimal.Decimal, now time.Time) (*models.Sale, error) {
	fee, err := billing.PayoutFee(itemPrice, s.fees.PayoutFeeRate, s.fees.PayoutFeeFixed)
	if err != nil {
		return nil, err
	}
	return models.NewSale(listing.ID, buyerID, listing.SellerID, itemPrice, fee, now)
}

// afterSale выставляет счёт на комиссию и уведомляет стороны. Сбой счёта не отменяет
// сделку: счёт можно выставить повторно.
func (s *AuctionService) afterSale(ctx context.Context, sale *models.Sale, buyerEvent, sellerEvent string) {
	if _, err := s.invoices.CreateCommissionInvoice(ctx, sale.ID); err != nil {
		logger.Money(sale.ID.String(), sale.ItemPrice, "commission_invoice").WithError(err).
			Error("не удалось выставить счёт на комиссию")
	}

	data := map[string]any{
		"order_id":   sale.ID,
		"listing_id": sale.ListingID,
		"amount":     sale.ItemPrice.StringFixed(2),
	}
	s.notifier.Notify(sale.BuyerID, buyerEvent, data)
	s.notifier.Notify(sale.SellerID, sellerEvent, data)
}
