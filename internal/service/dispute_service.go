package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// ResolveResult - итог разрешения спора. Release или Refund заполнены,
// если решение повлекло движение денег.
type ResolveResult struct {
	Sale    *models.Sale   `json:"order"`
	Outcome string         `json:"outcome"`
	Release *ReleaseResult `json:"release,omitempty"`
}

// DisputeService - разбор споров администратором.
type DisputeService struct {
	sales        SaleRepository
	escrow       *EscrowService
	refunds      *RefundService
	authz        *Authorizer
	notifier     Notifier
	releaseAfter time.Duration
	now          func() time.Time
}

// NewDisputeService создаёт сервис споров.
func NewDisputeService(
	sales SaleRepository,
	escrow *EscrowService,
	refunds *RefundService,
	authz *Authorizer,
	notifier Notifier,
	releaseAfter time.Duration,
) *DisputeService {
	return &DisputeService{
		sales:        sales,
		escrow:       escrow,
		refunds:      refunds,
		authz:        authz,
		notifier:     notifier,
		releaseAfter: releaseAfter,
		now:          time.Now,
	}
}

// MarkUnderReview - администратор взял спор в работу.
func (s *DisputeService) MarkUnderReview(ctx context.Context, saleID uuid.UUID, id Identity) (*models.Sale, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}

	meta := &repository.TransitionMeta{ActorID: id.actor(), Action: models.SaleActionUnderReview}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.MarkUnderReview(s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось взять спор в работу")
	}
	return sale, nil
}

// Resolve фиксирует решение по спору, затем отдельным шагом двигает деньги.
// Если выплата или возврат не прошли, решение остаётся в силе, и администратор
// повторяет денежный шаг через release или refund.
func (s *DisputeService) Resolve(ctx context.Context, saleID uuid.UUID, id Identity, outcome, note string) (*ResolveResult, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}
	decision, err := valueobject.NewDisputeOutcome(outcome)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateResolutionNote(note); err != nil {
		return nil, err
	}

	meta := &repository.TransitionMeta{
		ActorID: id.actor(),
		Action:  models.SaleActionDisputeResolved,
		Payload: map[string]any{"outcome": outcome, "note": note},
	}
	sale, err := s.sales.Transition(ctx, saleID, meta, func(sale *models.Sale) error {
		return sale.ResolveDispute(decision, note, s.releaseAfter, s.now())
	})
	if err != nil {
		return nil, translate(err, "не удалось разрешить спор")
	}

	data := map[string]any{"order_id": sale.ID, "outcome": outcome}
	s.notifier.Notify(sale.BuyerID, EventDisputeResolved, data)
	s.notifier.Notify(sale.SellerID, EventDisputeResolved, data)

	result := &ResolveResult{Sale: sale, Outcome: outcome}
	switch decision {
	case valueobject.DisputeOutcomeReleaseToSeller:
		release, err := s.escrow.Release(ctx, saleID, id)
		if err != nil {
			return nil, err
		}
		result.Sale = release.Sale
		result.Release = release
	case valueobject.DisputeOutcomeRefundBuyer:
		refunded, err := s.refunds.refund(ctx, saleID, id, "спор решён в пользу покупателя")
		if err != nil {
			return nil, err
		}
		result.Sale = refunded
	}
	return result, nil
}

// ListDisputes - заказы со спорами для администратора. Пустой статус - все споры.
func (s *DisputeService) ListDisputes(ctx context.Context, id Identity, status string, limit, offset int) ([]models.Sale, error) {
	if err := s.authz.RequireAdmin(ctx, id); err != nil {
		return nil, err
	}

	var filter valueobject.DisputeStatus
	if status != "" {
		parsed, err := valueobject.NewDisputeStatus(status)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sales, err := s.sales.ListDisputes(ctx, filter, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось загрузить споры")
	}
	return sales, nil
}
