package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-order-settlement/internal/gateway/razorpaygw"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

const (
	RazorpaySignatureHeader = "X-Razorpay-Signature"
	RazorpayEventIDHeader   = "X-Razorpay-Event-Id"
)

var razorpayOutcomes = map[string]payments.OutcomeKind{
	"payment.captured": payments.OutcomeSucceeded,
	"payment.failed":   payments.OutcomeFailed,
	"order.paid":       payments.OutcomeSucceeded,
}

type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type RazorpayVerifier struct {
	Secret string
}

func (v *RazorpayVerifier) Gateway() string { return razorpaygw.Name }

// Sign returns the hex HMAC-SHA256 Razorpay sends for body.
func (v *RazorpayVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *RazorpayVerifier) Parse(h http.Header, body []byte) (Event, error) {
	got, err := hex.DecodeString(h.Get(RazorpaySignatureHeader))
	if err != nil || len(got) == 0 {
		return Event{}, fmt.Errorf("%w: missing or non-hex signature", ErrSignature)
	}
	want, _ := hex.DecodeString(v.Sign(body))
	if v.Secret == "" || !hmac.Equal(got, want) {
		return Event{}, ErrSignature
	}

	var env razorpayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := Event{ID: h.Get(RazorpayEventIDHeader), Gateway: razorpaygw.Name, Type: env.Event}
	if out.ID == "" {
		sum := sha256.Sum256(body)
		out.ID = hex.EncodeToString(sum[:16])
	}
	kind, ok := razorpayOutcomes[env.Event]
	if !ok {
		return out, ErrIgnoredEvent
	}
	if env.Payload.Payment == nil {
		return out, fmt.Errorf("%w: %s without payment entity", ErrMalformed, env.Event)
	}

	p := env.Payload.Payment.Entity
	corr := p.OrderID
	if env.Payload.Order != nil && env.Payload.Order.Entity.ID != "" {
		corr = env.Payload.Order.Entity.ID
	}
	if corr == "" {
		return out, fmt.Errorf("%w: payment %s has no order id", ErrMalformed, p.ID)
	}

	out.Outcome = payments.Outcome{
		Gateway:          razorpaygw.Name,
		CorrelationID:    corr,
		GatewayPaymentID: p.ID,
		Kind:             kind,
		RawStatus:        p.Status,
		Reason:           p.ErrorDescription,
	}
	if kind == payments.OutcomeSucceeded {
		out.Outcome.Amount = money.Amount(p.Amount)
	}
	return out, nil
}
