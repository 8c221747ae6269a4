package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// maxWebhookBody - Stripe присылает события до 64 КБ.
const maxWebhookBody = 64 << 10

// WebhookProcessor применяет событие провайдера к заказам и продавцам.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, event *payout.WebhookEvent) error
}

// WebhookParser проверяет подпись и разбирает тело вебхука.
type WebhookParser func(payload []byte, signatureHeader, secret string) (*payout.WebhookEvent, error)

// WebhookHandler принимает вебхуки платёжного провайдера.
type WebhookHandler struct {
	escrow WebhookProcessor
	secret string
	parse  WebhookParser
}

// NewWebhookHandler создаёт новый хэндлер для Stripe.
func NewWebhookHandler(escrow WebhookProcessor, secret string) *WebhookHandler {
	return &WebhookHandler{escrow: escrow, secret: secret, parse: payout.ParseStripeWebhook}
}

// Handle обрабатывает POST /payments/webhook.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.Fail(c, apperror.Validation("тело вебхука слишком большое или повреждено"))
		return
	}

	event, err := h.parse(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		if errors.Is(err, payout.ErrInvalidSignature) {
			logger.Log.WithField("ip", c.ClientIP()).Warn("вебхук с неверной подписью")
			common.Fail(c, apperror.New(apperror.ErrCodeBadRequest, "неверная подпись вебхука"))
			return
		}
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось разобрать событие"))
		return
	}

	if err := h.escrow.HandleWebhook(c.Request.Context(), event); err != nil {
		// 5xx - провайдер повторит доставку.
		logger.Log.WithFields(logrus.Fields{
			"event_id": event.ID,
			"kind":     event.Kind,
		}).WithError(err).Error("вебхук не обработан")
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
