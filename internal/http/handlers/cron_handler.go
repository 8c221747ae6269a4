package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// AutoReleaser - проход автовыплат.
type AutoReleaser interface {
	Sweep(ctx context.Context, now time.Time, timeoutHours int) (*service.SweepResult, error)
	CountEligible(ctx context.Context, now time.Time, timeoutHours int) (int, error)
}

// PendingPayoutProcessor - повтор выплат после онбординга продавца.
type PendingPayoutProcessor interface {
	ProcessPendingPayouts(ctx context.Context) (*service.BatchResult, error)
}

// AuctionSettler - закрытие истёкших аукционов.
type AuctionSettler interface {
	SettleExpiredAuctions(ctx context.Context, now time.Time) (*service.SettlementResult, error)
}

// OverdueMarker - проверка сроков оплаты счетов.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (*service.OverdueResult, error)
}

// CronHandler - точки входа внешнего планировщика. Защищены CronAuth.
type CronHandler struct {
	sweeper  AutoReleaser
	payouts  PendingPayoutProcessor
	auctions AuctionSettler
	invoices OverdueMarker
	now      func() time.Time
}

// NewCronHandler создаёт новый хэндлер.
func NewCronHandler(sweeper AutoReleaser, payouts PendingPayoutProcessor, auctions AuctionSettler, invoices OverdueMarker) *CronHandler {
	return &CronHandler{
		sweeper:  sweeper,
		payouts:  payouts,
		auctions: auctions,
		invoices: invoices,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// timeoutHours читает ?timeoutHours=; 0 - только срок autoReleaseAt.
func timeoutHours(c *gin.Context) (int, error) {
	raw := c.Query("timeoutHours")
	if raw == "" {
		return 0, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("timeoutHours должен быть целым числом")
	}
	return hours, nil
}

// AutoRelease POST /orders/auto-release
func (h *CronHandler) AutoRelease(c *gin.Context) {
	hours, err := timeoutHours(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.sweeper.Sweep(c.Request.Context(), h.now(), hours)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AutoReleaseEligible GET /orders/auto-release
func (h *CronHandler) AutoReleaseEligible(c *gin.Context) {
	hours, err := timeoutHours(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	n, err := h.sweeper.CountEligible(c.Request.Context(), h.now(), hours)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EligibleResponse{Eligible: n})
}

// ProcessPendingPayouts POST /orders/process-pending-payouts
func (h *CronHandler) ProcessPendingPayouts(c *gin.Context) {
	result, err := h.payouts.ProcessPendingPayouts(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckExpiredAuctions POST /auctions/check-expired
func (h *CronHandler) CheckExpiredAuctions(c *gin.Context) {
	result, err := h.auctions.SettleExpiredAuctions(c.Request.Context(), h.now())
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MarkOverdueInvoices POST /invoices/overdue
func (h *CronHandler) MarkOverdueInvoices(c *gin.Context) {
	result, err := h.invoices.MarkOverdue(c.Request.Context(), h.now())
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
