package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// Identity - аутентифицированный пользователь запроса.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// SystemIdentity - действие планировщика или служебной утилиты.
var SystemIdentity = Identity{Role: models.RoleAdmin}

// actor возвращает идентификатор для журнала сделки; системные действия пишутся без автора.
func (i Identity) actor() *uuid.UUID {
	if i.UserID == uuid.Nil {
		return nil
	}
	id := i.UserID
	return &id
}

// UserRepository - доступ сервисов к пользователям.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePayoutStatus(ctx context.Context, stripeAccountID string, payoutsEnabled, detailsSubmitted bool) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool, reason string) error
}

// Authorizer - единая точка проверки прав администратора.
type Authorizer struct {
	users UserRepository
}

// NewAuthorizer создаёт проверку прав.
func NewAuthorizer(users UserRepository) *Authorizer {
	return &Authorizer{users: users}
}

// RequireAdmin пропускает администратора. Роль из токена проверяется первой,
// затем роль в базе: токен мог быть выпущен до назначения роли.
func (a *Authorizer) RequireAdmin(ctx context.Context, id Identity) error {
	if id.Role == models.RoleAdmin {
		return nil
	}
	if id.UserID == uuid.Nil {
		return apperror.ErrUnauthorized
	}

	user, err := a.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperror.ErrAdminOnly
		}
		return translate(err, "не удалось проверить права")
	}
	if !user.IsAdmin() {
		return apperror.ErrAdminOnly
	}
	return nil
}

// IsAdmin - вариант RequireAdmin без ошибки доступа.
func (a *Authorizer) IsAdmin(ctx context.Context, id Identity) (bool, error) {
	err := a.RequireAdmin(ctx, id)
	if err == nil {
		return true, nil
	}
	if apperror.IsForbidden(err) {
		return false, nil
	}
	return false, err
}
