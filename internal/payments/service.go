// Package payments creates gateway payment intents, reconciles their
// asynchronous outcomes and coordinates refunds.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-order-settlement/internal/payments")

func failSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// OrderReader is the read-only order view a payment is priced against.
type OrderReader interface {
	OrderTotal(ctx context.Context, orderID int64) (orders.Summary, error)
}

type Service struct {
	Store          Store
	Orders         OrderReader
	Gateways       map[string]Gateway
	Notifier       OrderNotifier
	DefaultGateway string
	Currency       string
	Log            *zap.Logger
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) gateway(name string) (Gateway, error) {
	if name == "" {
		name = s.DefaultGateway
	}
	g, ok := s.Gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

// NewReference builds PAY-<unix millis>-<8 upper hex>.
func NewReference(now time.Time) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), hex[:8])
}

func (s *Service) Get(ctx context.Context, id int64) (Payment, error) { return s.Store.Get(ctx, id) }

func (s *Service) GetByReference(ctx context.Context, ref string) (Payment, error) {
	return s.Store.GetByReference(ctx, ref)
}

func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return s.Store.ListByOrder(ctx, orderID)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error) {
	return s.Store.ListByCustomer(ctx, customerID)
}

func (s *Service) ListByBusiness(ctx context.Context, businessID int64) ([]Payment, error) {
	return s.Store.ListByBusiness(ctx, businessID)
}

// Transactions returns the payment's ledger rows, oldest first.
func (s *Service) Transactions(ctx context.Context, paymentID int64) ([]Transaction, error) {
	if _, err := s.Store.Get(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.Store.Transactions(ctx, paymentID)
}

// notify hands an outcome to the order side. Failures are logged only: the
// payment is already committed and the order can be reconciled from it.
func (s *Service) notify(ctx context.Context, p Payment, out orders.PaymentOutcome) {
	if s.Notifier == nil {
		return
	}
	out.PaymentRef = p.PaymentReference
	if err := s.Notifier.Notify(ctx, p.OrderID, out); err != nil {
		s.Log.Error("order notification failed",
			zap.Int64("order_id", p.OrderID),
			zap.String("payment_reference", p.PaymentReference),
			zap.String("payment_status", string(out.PaymentStatus)),
			zap.Error(err))
	}
}
