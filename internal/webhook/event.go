// Package webhook authenticates gateway callbacks and turns them into
// settlement outcomes.
package webhook

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-settlement/internal/payments"
)

var (
	ErrSignature    = errors.New("webhook signature verification failed")
	ErrMalformed    = errors.New("webhook payload malformed")
	ErrIgnoredEvent = errors.New("webhook event type not handled")
)

// Event is a verified, parsed gateway notification.
type Event struct {
	ID      string
	Gateway string
	Type    string
	Outcome payments.Outcome
}

// Verifier authenticates a raw body against its headers and, only then,
// parses it. Implementations never parse unverified input.
type Verifier interface {
	Gateway() string
	Parse(h http.Header, body []byte) (Event, error)
}
