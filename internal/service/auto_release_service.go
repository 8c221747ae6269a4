package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

const sweepBatchSize = 500

// SweepResult - итог прохода автовыплат.
type SweepResult struct {
	Released          int         `json:"released"`
	PendingOnboarding int         `json:"pendingOnboarding"`
	Errors            []ItemError `json:"errors"`
}

// AutoReleaseService выплачивает продавцам заказы, по которым покупатель не подтвердил
// получение и не открыл спор за отведённое время.
type AutoReleaseService struct {
	sales  SaleRepository
	escrow *EscrowService
}

// NewAutoReleaseService создаёт планировщик автовыплат.
func NewAutoReleaseService(sales SaleRepository, escrow *EscrowService) *AutoReleaseService {
	return &AutoReleaseService{sales: sales, escrow: escrow}
}

func paidBefore(now time.Time, timeoutHours int) *time.Time {
	if timeoutHours <= 0 {
		return nil
	}
	t := now.Add(-time.Duration(timeoutHours) * time.Hour)
	return &t
}

// Sweep выплачивает все подходящие заказы. Ошибка одного заказа не прерывает проход.
// Условия выборки перепроверяются под блокировкой строки.
func (s *AutoReleaseService) Sweep(ctx context.Context, now time.Time, timeoutHours int) (*SweepResult, error) {
	if timeoutHours < 0 {
		return nil, apperror.Validation("timeoutHours не может быть отрицательным")
	}

	ids, err := s.sales.ListAutoReleaseEligible(ctx, now, paidBefore(now, timeoutHours), sweepBatchSize)
	if err != nil {
		return nil, translate(err, "не удалось выбрать заказы для автовыплаты")
	}

	guard := func(sale *models.Sale) error {
		if !sale.IsEligibleForAutoRelease(now) {
			return apperror.InvalidState("заказ больше не подходит для автовыплаты")
		}
		return nil
	}

	result := &SweepResult{Errors: []ItemError{}}
	for _, id := range ids {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ItemError{ID: id, Error: ctx.Err().Error()})
			continue
		}
		res, err := s.escrow.release(ctx, id, SystemIdentity, guard)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: id, Error: err.Error()})
			continue
		}
		if res.Released {
			result.Released++
		} else if res.PendingOnboarding {
			result.PendingOnboarding++
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"candidates":         len(ids),
		"released":           result.Released,
		"pending_onboarding": result.PendingOnboarding,
		"errors":             len(result.Errors),
	}).Info("автовыплата завершена")
	return result, nil
}

// CountEligible - число заказов, которые выплатил бы Sweep.
func (s *AutoReleaseService) CountEligible(ctx context.Context, now time.Time, timeoutHours int) (int, error) {
	if timeoutHours < 0 {
		return 0, apperror.Validation("timeoutHours не может быть отрицательным")
	}
	n, err := s.sales.CountAutoReleaseEligible(ctx, now, paidBefore(now, timeoutHours))
	if err != nil {
		return 0, translate(err, "не удалось посчитать заказы для автовыплаты")
	}
	return n, nil
}
