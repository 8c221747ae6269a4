package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
)

// Handlers - набор хэндлеров, собранных в main.
type Handlers struct {
	Orders        *handlers.OrderHandler
	Disputes      *handlers.DisputeHandler
	Cron          *handlers.CronHandler
	Listings      *handlers.ListingHandler
	Invoices      *handlers.InvoiceHandler
	Webhooks      *handlers.WebhookHandler
	Notifications *handlers.NotificationHandler
	WS            *handlers.WSHandler
	Health        *handlers.HealthHandler
}

func SetupRouter(cfg *config.Config, tokens middleware.TokenParser, h Handlers) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	api.POST("/payments/webhook", h.Webhooks.Handle)
	api.GET("/ws", h.WS.Handle)

	cron := api.Group("/")
	cron.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	cron.Use(middleware.CronAuth(cfg.CronSecret))
	{
		cron.POST("/orders/auto-release", h.Cron.AutoRelease)
		cron.GET("/orders/auto-release", h.Cron.AutoReleaseEligible)
		cron.POST("/orders/process-pending-payouts", h.Cron.ProcessPendingPayouts)
		cron.POST("/auctions/check-expired", h.Cron.CheckExpiredAuctions)
		cron.POST("/invoices/overdue", h.Cron.MarkOverdueInvoices)
	}

	api.POST("/orders/:id/invoice",
		middleware.CronOrAuth(tokens, cfg.CronSecret),
		middleware.UUIDValidator("id"),
		h.Orders.ReissueInvoice,
	)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		orders := protected.Group("/orders/:id")
		orders.Use(middleware.UUIDValidator("id"))
		{
			orders.GET("", h.Orders.Get)
			orders.POST("/confirm-receipt", h.Orders.ConfirmReceipt)
			orders.POST("/refund", h.Orders.Refund)
			orders.POST("/hold", h.Orders.Hold)
			orders.POST("/release", h.Orders.Release)
			orders.POST("/cancel", h.Orders.Cancel)
			orders.POST("/dispute/review", h.Disputes.Review)
			orders.POST("/dispute/resolve", h.Disputes.Resolve)
		}

		// Открытие спора ограничено отдельно: покупатель может долбить кнопку.
		disputeLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeLimit, h.Orders.OpenDispute)
		protected.GET("/disputes", h.Disputes.List)

		protected.POST("/listings/:id/purchase", middleware.UUIDValidator("id"), h.Listings.Purchase)

		protected.GET("/invoices", h.Invoices.List)
		protected.POST("/invoices/ancillary", h.Invoices.CreateAncillary)
		invoice := protected.Group("/invoices/:id")
		invoice.Use(middleware.UUIDValidator("id"))
		{
			invoice.GET("", h.Invoices.Get)
			invoice.POST("/cancel", h.Invoices.Cancel)
			invoice.POST("/payments", h.Invoices.RecordPayment)
		}

		protected.GET("/notifications", h.Notifications.List)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkAsRead)
	}

	return r
}
