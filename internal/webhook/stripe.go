package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"

	"github.com/ariefcatur/go-order-settlement/internal/gateway/stripegw"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

const StripeSignatureHeader = "Stripe-Signature"

var stripeOutcomes = map[stripe.EventType]payments.OutcomeKind{
	"payment_intent.succeeded":      payments.OutcomeSucceeded,
	"payment_intent.payment_failed": payments.OutcomeFailed,
	"payment_intent.canceled":       payments.OutcomeCancelled,
	"payment_intent.processing":     payments.OutcomeProcessing,
}

type StripeVerifier struct {
	Secret    string
	Tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{Secret: secret, Tolerance: stripewebhook.DefaultTolerance}
}

func (v *StripeVerifier) Gateway() string { return stripegw.Name }

func (v *StripeVerifier) Parse(h http.Header, body []byte) (Event, error) {
	if err := stripewebhook.ValidatePayloadWithTolerance(body, h.Get(StripeSignatureHeader), v.Secret, v.Tolerance); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := Event{ID: ev.ID, Gateway: stripegw.Name, Type: string(ev.Type)}
	kind, ok := stripeOutcomes[ev.Type]
	if !ok {
		return out, ErrIgnoredEvent
	}
	if ev.ID == "" || ev.Data == nil {
		return out, fmt.Errorf("%w: missing id or data", ErrMalformed)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return out, fmt.Errorf("%w: payment intent: %v", ErrMalformed, err)
	}
	if pi.ID == "" {
		return out, fmt.Errorf("%w: payment intent without id", ErrMalformed)
	}

	out.Outcome = payments.Outcome{
		Gateway:       stripegw.Name,
		CorrelationID: pi.ID,
		Kind:          kind,
		RawStatus:     string(pi.Status),
	}
	if pi.LatestCharge != nil {
		out.Outcome.GatewayPaymentID = pi.LatestCharge.ID
	}
	if kind == payments.OutcomeSucceeded {
		out.Outcome.Amount = money.Amount(pi.AmountReceived)
	}
	switch {
	case pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "":
		out.Outcome.Reason = pi.LastPaymentError.Msg
	case pi.CancellationReason != "":
		out.Outcome.Reason = "cancelled: " + string(pi.CancellationReason)
	}
	return out, nil
}
