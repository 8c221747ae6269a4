package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// События, о которых уведомляются участники сделки.
const (
	EventAuctionWon       = "auction.won"
	EventAuctionSold      = "auction.sold"
	EventListingSold      = "listing.sold"
	EventOrderCreated     = "order.created"
	EventOrderPaid        = "order.paid"
	EventOrderReleased    = "order.released"
	EventPayoutOnboarding = "order.payout_onboarding_required"
	EventDisputeOpened    = "order.dispute_opened"
	EventDisputeResolved  = "order.dispute_resolved"
	EventOrderHeld        = "order.held"
	EventOrderRefunded    = "order.refunded"
	EventOrderCancelled   = "order.cancelled"
	EventInvoiceIssued    = "invoice.issued"
	EventInvoiceOverdue   = "invoice.overdue"
)

const notifyTimeout = 10 * time.Second

// Notifier доставляет уведомления. Реализации не должны блокировать вызывающего
// и не возвращают ошибок: сбой доставки не влияет на денежные операции.
type Notifier interface {
	Notify(userID uuid.UUID, event string, data map[string]any)
}

// Broadcaster - push-доставка пользователям онлайн (ws.Hub).
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// AsyncNotifier сохраняет уведомление и отправляет его по WebSocket в отдельной горутине.
type AsyncNotifier struct {
	store *NotificationService
	push  Broadcaster
}

// NewAsyncNotifier создаёт уведомитель. push может быть nil.
func NewAsyncNotifier(store *NotificationService, push Broadcaster) *AsyncNotifier {
	return &AsyncNotifier{store: store, push: push}
}

func (n *AsyncNotifier) Notify(userID uuid.UUID, event string, data map[string]any) {
	goroutine.SafeGo(func() {
		deliver(n.store, n.push, userID, event, data)
	})
}

// StoreNotifier сохраняет уведомление синхронно и без push. Для короткоживущих
// процессов (settlementctl), которые могут завершиться раньше горутины.
type StoreNotifier struct {
	store *NotificationService
}

func NewStoreNotifier(store *NotificationService) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) Notify(userID uuid.UUID, event string, data map[string]any) {
	deliver(n.store, nil, userID, event, data)
}

func deliver(store *NotificationService, push Broadcaster, userID uuid.UUID, event string, data map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	entry := logger.Log.WithField("user_id", userID).WithField("event", event)
	if _, err := store.Create(ctx, userID, event, data); err != nil {
		entry.WithError(err).Warn("notifier: не удалось сохранить уведомление")
	}
	if push != nil {
		if err := push.BroadcastToUser(userID, event, data); err != nil {
			entry.WithError(err).Warn("notifier: не удалось отправить уведомление")
		}
	}
}
