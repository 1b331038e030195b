package deposits

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeProvider creates VND PaymentIntents. VND is zero-decimal, so the
// amount is passed through unscaled.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider using secretKey.
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

var _ PaymentProvider = (*StripeProvider)(nil)

func (p *StripeProvider) CreatePayment(ctx context.Context, depositID string, amount int64) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyVND)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(depositID)
	params.AddMetadata("deposit_id", depositID)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", err
	}
	return pi.ID, pi.ClientSecret, nil
}

// PaymentEvent is the part of a Stripe webhook the service acts on.
type PaymentEvent struct {
	Type            string
	PaymentIntentID string
}

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

// ParseStripeEvent verifies the Stripe-Signature header and extracts the
// PaymentIntent the event refers to.
func ParseStripeEvent(payload []byte, signature, secret string) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	pe := &PaymentEvent{Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return pe, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	pe.PaymentIntentID = pi.ID
	return pe, nil
}
