package payout

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/transfer"

	"github.com/ignatzorin/marketplace-backend/internal/domain/valueobject"
)

// StripeProvider - выплаты через Stripe Connect.
type StripeProvider struct {
	transfers transfer.Client
	refunds   refund.Client
	accounts  account.Client
}

// NewStripeProvider создаёт провайдер с отдельными клиентами на общем бэкенде API.
func NewStripeProvider(secretKey string) *StripeProvider {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeProvider{
		transfers: transfer.Client{B: backend, Key: secretKey},
		refunds:   refund.Client{B: backend, Key: secretKey},
		accounts:  account.Client{B: backend, Key: secretKey},
	}
}

// Transfer переводит сумму продавцу, привязывая перевод к исходному платежу.
func (p *StripeProvider) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(valueobject.ToCents(req.Amount)),
		Currency:      stripe.String(currencyCode(req.Currency)),
		Destination:   stripe.String(req.AccountID),
		TransferGroup: stripe.String("sale-" + req.SaleID),
	}
	if req.ChargeID != "" {
		params.SourceTransaction = stripe.String(req.ChargeID)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("sale_id", req.SaleID)

	tr, err := p.transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe transfer: %w", err)
	}
	return &TransferResult{TransferID: tr.ID}, nil
}

// Refund возвращает платёж покупателю. Нулевая сумма означает полный возврат.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := &stripe.RefundParams{
		Charge: stripe.String(req.ChargeID),
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(valueobject.ToCents(req.Amount))
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("sale_id", req.SaleID)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	rf, err := p.refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	return &RefundResult{RefundID: rf.ID}, nil
}

// AccountStatus читает состояние подключённого счёта продавца.
func (p *StripeProvider) AccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := p.accounts.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe account: %w", err)
	}
	return &AccountStatus{PayoutsEnabled: acct.PayoutsEnabled, DetailsSubmitted: acct.DetailsSubmitted}, nil
}

func currencyCode(c string) string {
	if c == "" {
		c = valueobject.CurrencyCHF
	}
	return strings.ToLower(c)
}
