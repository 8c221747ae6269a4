package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository читает пользователей и ведёт их платёжный статус и блокировки.
// Регистрация и учётные данные живут в отдельном сервисе идентификации.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// UpdatePayoutStatus синхронизирует состояние подключённого счёта по данным провайдера.
func (r *UserRepository) UpdatePayoutStatus(ctx context.Context, stripeAccountID string, payoutsEnabled, detailsSubmitted bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET payouts_enabled = $2, details_submitted = $3, updated_at = NOW()
		WHERE stripe_account_id = $1
	`, stripeAccountID, payoutsEnabled, detailsSubmitted)
	if err != nil {
		return fmt.Errorf("user repository: update payout status %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: update payout status rows affected %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetBlocked блокирует или разблокирует продавца. Причина сбрасывается при разблокировке.
func (r *UserRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool, reason string) error {
	var reasonArg *string
	if blocked && reason != "" {
		reasonArg = &reason
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_blocked = $2, blocked_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, id, blocked, reasonArg); err != nil {
		return fmt.Errorf("user repository: set blocked %w", err)
	}
	return nil
}
