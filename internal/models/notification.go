package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
)

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SaleEvent - запись журнала переходов сделки.
type SaleEvent struct {
	ID        uuid.UUID                 `db:"id" json:"id"`
	SaleID    uuid.UUID                 `db:"sale_id" json:"sale_id"`
	ActorID   *uuid.UUID                `db:"actor_id" json:"actor_id,omitempty"`
	Action    string                    `db:"action" json:"action"`
	OldStatus valueobject.PaymentStatus `db:"old_status" json:"old_status"`
	NewStatus valueobject.PaymentStatus `db:"new_status" json:"new_status"`
	Payload   json.RawMessage           `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time                 `db:"created_at" json:"created_at"`
}
