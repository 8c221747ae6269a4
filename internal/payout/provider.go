// Package payout - переводы продавцам и возвраты покупателям через платёжного провайдера.
// Каждый вызов несёт ключ идемпотентности: повтор с тем же ключом не двигает деньги дважды.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidRequest - запрос отклонён до обращения к провайдеру.
var ErrInvalidRequest = errors.New("payout: invalid request")

// Provider - платёжный провайдер площадки.
type Provider interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	AccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
}

// TransferRequest - перевод продавцу на подключённый счёт.
type TransferRequest struct {
	AccountID      string
	Amount         decimal.Decimal
	Currency       string
	ChargeID       string
	SaleID         string
	IdempotencyKey string
}

// TransferResult - ответ провайдера на перевод.
type TransferResult struct {
	TransferID string
}

// RefundRequest - возврат покупателю по исходному платежу.
type RefundRequest struct {
	ChargeID       string
	Amount         decimal.Decimal
	SaleID         string
	Reason         string
	IdempotencyKey string
}

// RefundResult - ответ провайдера на возврат.
type RefundResult struct {
	RefundID string
}

// AccountStatus - готовность подключённого счёта принимать выплаты.
type AccountStatus struct {
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// ReleaseKey - ключ идемпотентности выплаты по сделке.
func ReleaseKey(saleID string) string {
	return "release-" + saleID
}

// RefundKey - ключ идемпотентности возврата по сделке.
func RefundKey(saleID string) string {
	return "refund-" + saleID
}

func (r TransferRequest) validate() error {
	switch {
	case r.AccountID == "":
		return fmt.Errorf("%w: пустой счёт получателя", ErrInvalidRequest)
	case !r.Amount.IsPositive():
		return fmt.Errorf("%w: сумма перевода должна быть положительной", ErrInvalidRequest)
	case r.IdempotencyKey == "":
		return fmt.Errorf("%w: нет ключа идемпотентности", ErrInvalidRequest)
	}
	return nil
}

func (r RefundRequest) validate() error {
	switch {
	case r.ChargeID == "":
		return fmt.Errorf("%w: нет ссылки на платёж", ErrInvalidRequest)
	case r.Amount.IsNegative():
		return fmt.Errorf("%w: сумма возврата отрицательна", ErrInvalidRequest)
	case r.IdempotencyKey == "":
		return fmt.Errorf("%w: нет ключа идемпотентности", ErrInvalidRequest)
	}
	return nil
}
