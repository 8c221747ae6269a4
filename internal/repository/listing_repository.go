package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// ErrListingNotFound возвращается, когда объявление не найдено.
var ErrListingNotFound = errors.New("listing not found")

// ListingRepository отвечает за объявления, ставки и платные опции.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository создаёт экземпляр репозитория.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetByID возвращает объявление по идентификатору.
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return common.GetByID[models.Listing](ctx, r.db, "listings", id, ErrListingNotFound)
}

// ListExpiredAuctions возвращает завершившиеся аукционы со ставками и без действующей сделки.
func (r *ListingRepository) ListExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT l.id FROM listings l
		WHERE l.is_auction = TRUE
		  AND l.auction_end <= $1
		  AND EXISTS (SELECT 1 FROM bids b WHERE b.listing_id = l.id)
		  AND NOT EXISTS (SELECT 1 FROM sales s WHERE s.listing_id = l.id AND s.cancelled_at IS NULL)
		ORDER BY l.auction_end ASC
		LIMIT $2
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("listing repository: list expired auctions %w", err)
	}
	return ids, nil
}

// CreateSale в одной транзакции блокирует объявление, проверяет отсутствие действующей сделки,
// передаёт объявление и его ставки в build и сохраняет построенную сделку.
// Повторная продажа возвращает ErrListingAlreadySold, в том числе при гонке на уникальном индексе.
func (r *ListingRepository) CreateSale(
	ctx context.Context,
	listingID uuid.UUID,
	actorID *uuid.UUID,
	build func(listing *models.Listing, bids []models.Bid) (*models.Sale, error),
) (*models.Sale, error) {
	var sale *models.Sale
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var listing models.Listing
		if err := common.LockByID(ctx, tx, &listing, "listings", listingID, ErrListingNotFound); err != nil {
			return err
		}

		var active bool
		if err := tx.GetContext(ctx, &active, `
			SELECT EXISTS (SELECT 1 FROM sales WHERE listing_id = $1 AND cancelled_at IS NULL)
		`, listingID); err != nil {
			return fmt.Errorf("listing repository: check active sale %w", err)
		}
		if active {
			return ErrListingAlreadySold
		}

		var bids []models.Bid
		if listing.IsAuction {
			if err := tx.SelectContext(ctx, &bids, `
				SELECT * FROM bids WHERE listing_id = $1
				ORDER BY amount DESC, created_at ASC, id ASC
			`, listingID); err != nil {
				return fmt.Errorf("listing repository: list bids %w", err)
			}
		}

		built, err := build(&listing, bids)
		if err != nil {
			return err
		}
		if err := insertSale(ctx, tx, built, actorID); err != nil {
			return err
		}
		sale = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListActivePromotions возвращает платные опции объявления, действовавшие в момент at.
func (r *ListingRepository) ListActivePromotions(ctx context.Context, listingID uuid.UUID, at time.Time) ([]models.ListingPromotion, error) {
	query := `
		SELECT * FROM listing_promotions
		WHERE listing_id = $1
		  AND active_from <= $2
		  AND (active_until IS NULL OR active_until > $2)
		  AND invoiced_at IS NULL
		ORDER BY active_from ASC
	`
	var promotions []models.ListingPromotion
	if err := r.db.SelectContext(ctx, &promotions, query, listingID, at); err != nil {
		return nil, fmt.Errorf("listing repository: list promotions %w", err)
	}
	return promotions, nil
}
