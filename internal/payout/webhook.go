package payout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Виды событий провайдера, на которые реагирует площадка.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventAccountUpdated   = "account_updated"
	EventIgnored          = "ignored"
)

// ErrInvalidSignature - подпись вебхука не сошлась.
var ErrInvalidSignature = errors.New("payout: invalid webhook signature")

// WebhookEvent - событие провайдера в терминах площадки.
type WebhookEvent struct {
	ID               string
	Kind             string
	SaleID           string
	ChargeID         string
	PaymentIntentID  string
	OccurredAt       time.Time
	AccountID        string
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// ParseStripeWebhook проверяет подпись и разбирает событие Stripe.
func ParseStripeWebhook(payload []byte, signatureHeader, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:         event.ID,
		Kind:       EventIgnored,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("payout: decode payment intent: %w", err)
		}
		out.Kind = EventPaymentSucceeded
		out.PaymentIntentID = pi.ID
		out.SaleID = pi.Metadata["sale_id"]
		if pi.LatestCharge != nil {
			out.ChargeID = pi.LatestCharge.ID
		}
	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("payout: decode account: %w", err)
		}
		out.Kind = EventAccountUpdated
		out.AccountID = acct.ID
		out.PayoutsEnabled = acct.PayoutsEnabled
		out.DetailsSubmitted = acct.DetailsSubmitted
	}

	return out, nil
}
