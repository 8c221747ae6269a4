package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing - товар продавца, продаваемый с аукциона или по фиксированной цене.
type Listing struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	SellerID   uuid.UUID       `db:"seller_id" json:"seller_id"`
	Title      string          `db:"title" json:"title"`
	Price      decimal.Decimal `db:"price" json:"price"`
	IsAuction  bool            `db:"is_auction" json:"is_auction"`
	AuctionEnd *time.Time      `db:"auction_end" json:"auction_end,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// IsAuctionExpired - аукцион завершён к моменту now.
func (l *Listing) IsAuctionExpired(now time.Time) bool {
	return l.IsAuction && l.AuctionEnd != nil && !l.AuctionEnd.After(now)
}

// Bid - ставка на аукционе. Записи только добавляются.
type Bid struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ListingID uuid.UUID       `db:"listing_id" json:"listing_id"`
	BidderID  uuid.UUID       `db:"bidder_id" json:"bidder_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// WinningBid выбирает максимальную ставку; при равенстве побеждает более ранняя,
// затем меньший id, чтобы результат не зависел от порядка выборки.
func WinningBid(bids []Bid) *Bid {
	var winner *Bid
	for i := range bids {
		b := &bids[i]
		if winner == nil {
			winner = b
			continue
		}
		switch cmp := b.Amount.Cmp(winner.Amount); {
		case cmp > 0:
			winner = b
		case cmp == 0 && b.CreatedAt.Before(winner.CreatedAt):
			winner = b
		case cmp == 0 && b.CreatedAt.Equal(winner.CreatedAt) && b.ID.String() < winner.ID.String():
			winner = b
		}
	}
	return winner
}

// Виды платных опций объявления.
const (
	PromotionKindBoost     = "boost"
	PromotionKindHighlight = "highlight"
	PromotionKindTopSlot   = "top_slot"
)

// ListingPromotion - платная опция, подключённая к объявлению (поднятие, выделение).
type ListingPromotion struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ListingID   uuid.UUID       `db:"listing_id" json:"listing_id"`
	Kind        string          `db:"kind" json:"kind"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ActiveFrom  time.Time       `db:"active_from" json:"active_from"`
	ActiveUntil *time.Time      `db:"active_until" json:"active_until,omitempty"`
	InvoicedAt  *time.Time      `db:"invoiced_at" json:"invoiced_at,omitempty"`
}

// IsActiveAt - опция действовала в момент at.
func (p *ListingPromotion) IsActiveAt(at time.Time) bool {
	if at.Before(p.ActiveFrom) {
		return false
	}
	return p.ActiveUntil == nil || p.ActiveUntil.After(at)
}
