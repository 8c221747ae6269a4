package service

import (
	"errors"

	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// translate переводит ошибки репозиториев в прикладные. AppError проходит как есть.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrSaleNotFound):
		return apperror.ErrSaleNotFound
	case errors.Is(err, repository.ErrListingNotFound):
		return apperror.ErrListingNotFound
	case errors.Is(err, repository.ErrInvoiceNotFound):
		return apperror.ErrInvoiceNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrUserNotFound
	case errors.Is(err, repository.ErrListingAlreadySold):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "по объявлению уже заключена сделка")
	}
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, op)
}
