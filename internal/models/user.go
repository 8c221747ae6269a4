package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает участника площадки: покупателя, продавца или администратора.
type User struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	Role             string    `db:"role" json:"role"`
	StripeAccountID  *string   `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	PayoutsEnabled   bool      `db:"payouts_enabled" json:"payouts_enabled"`
	DetailsSubmitted bool      `db:"details_submitted" json:"details_submitted"`
	IsBlocked        bool      `db:"is_blocked" json:"is_blocked"`
	BlockedReason    *string   `db:"blocked_reason" json:"blocked_reason,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin - роль администратора площадки.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PayoutAccount возвращает подключённый счёт для выплат, если он есть.
func (u *User) PayoutAccount() (string, bool) {
	if u.StripeAccountID == nil || *u.StripeAccountID == "" {
		return "", false
	}
	return *u.StripeAccountID, true
}

// CanReceivePayouts - счёт подключён и провайдер разрешил выплаты.
func (u *User) CanReceivePayouts() bool {
	_, ok := u.PayoutAccount()
	return ok && u.PayoutsEnabled
}
