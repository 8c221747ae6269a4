// Package app собирает сервисы расчётов поверх базы. Используется HTTP сервером и settlementctl.
package app

import (
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/payout"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// Services - собранный граф сервисов.
type Services struct {
	Users         *repository.UserRepository
	Notifications *service.NotificationService
	Escrow        *service.EscrowService
	AutoRelease   *service.AutoReleaseService
	Refunds       *service.RefundService
	Disputes      *service.DisputeService
	Auctions      *service.AuctionService
	Invoices      *service.InvoiceService
}

// NewProvider выбирает провайдера выплат по конфигурации.
func NewProvider(cfg *config.Config) payout.Provider {
	if cfg.PayoutProvider == config.PayoutProviderStripe {
		return payout.NewStripeProvider(cfg.StripeSecretKey)
	}
	return payout.NewSandbox()
}

// NewServices связывает репозитории и сервисы. notify получает хранилище уведомлений
// и возвращает уведомитель: сервер добавляет WebSocket, CLI пишет синхронно.
func NewServices(
	cfg *config.Config,
	conn *sqlx.DB,
	provider payout.Provider,
	notify func(*service.NotificationService) service.Notifier,
) *Services {
	users := repository.NewUserRepository(conn)
	sales := repository.NewSaleRepository(conn)
	listings := repository.NewListingRepository(conn)
	invoiceRepo := repository.NewInvoiceRepository(conn)

	notifications := service.NewNotificationService(repository.NewNotificationRepository(conn))
	notifier := notify(notifications)
	authz := service.NewAuthorizer(users)

	invoices := service.NewInvoiceService(invoiceRepo, sales, listings, users, authz, notifier, cfg.Fees, cfg.InvoiceDueDays)
	escrow := service.NewEscrowService(sales, users, provider, authz, notifier, invoices, cfg.AutoReleaseAfter())
	refunds := service.NewRefundService(sales, provider, authz, notifier, invoices)

	return &Services{
		Users:         users,
		Notifications: notifications,
		Escrow:        escrow,
		AutoRelease:   service.NewAutoReleaseService(sales, escrow),
		Refunds:       refunds,
		Disputes:      service.NewDisputeService(sales, escrow, refunds, authz, notifier, cfg.AutoReleaseAfter()),
		Auctions:      service.NewAuctionService(listings, invoices, notifier, cfg.Fees),
		Invoices:      invoices,
	}
}
