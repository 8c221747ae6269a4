package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeManualIntervention ErrorCode = "REQUIRES_MANUAL_INTERVENTION"
	ErrCodeExternalService    ErrorCode = "EXTERNAL_SERVICE_FAILURE"
	ErrCodeTooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
)

// AppError - ошибка прикладного уровня с кодом, HTTP статусом и
// машиночитаемыми флагами для фронтенда (pendingOnboarding, requiresManualRefund и т.п.).
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Flags      map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithFlag возвращает копию ошибки с дополнительным флагом.
// Копия нужна, чтобы не портить общие переменные вида ErrForbidden.
func (e *AppError) WithFlag(key string, value any) *AppError {
	cp := *e
	cp.Flags = make(map[string]any, len(e.Flags)+1)
	for k, v := range e.Flags {
		cp.Flags[k] = v
	}
	cp.Flags[key] = value
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// InvalidState - операция недопустима в текущем состоянии автомата.
func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

// Validation - некорректные входные данные.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ManualIntervention - операция требует ручного разбора (возврат после выплаты и т.п.).
func ManualIntervention(message string) *AppError {
	return New(ErrCodeManualIntervention, message)
}

// ExternalService оборачивает сбой платёжного провайдера.
func ExternalService(err error, message string) *AppError {
	return Wrap(err, ErrCodeExternalService, message)
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidState, ErrCodeManualIntervention:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// As достаёт AppError из цепочки ошибок.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func hasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

func IsManualIntervention(err error) bool {
	return hasCode(err, ErrCodeManualIntervention)
}

func IsExternalService(err error) bool {
	return hasCode(err, ErrCodeExternalService)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

var (
	ErrSaleNotFound    = New(ErrCodeNotFound, "заказ не найден")
	ErrListingNotFound = New(ErrCodeNotFound, "объявление не найдено")
	ErrInvoiceNotFound = New(ErrCodeNotFound, "счёт не найден")
	ErrUserNotFound    = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized    = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden       = New(ErrCodeForbidden, "недостаточно прав")
	ErrAdminOnly       = New(ErrCodeForbidden, "операция доступна только администратору")
)
