package payments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
)

// memStore keeps payments in memory with the same conditional-update
// semantics as the Postgres repo.
type memStore struct {
	mu       sync.Mutex
	payments map[int64]Payment
	ledger   []Transaction
	nextID   int64
}

func newMemStore() *memStore { return &memStore{payments: map[int64]Payment{}} }

func (m *memStore) InsertPending(_ context.Context, p Payment) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.Status = StatusPending
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	m.ledger = append(m.ledger, Transaction{PaymentID: p.ID, Type: TxPayment, Status: TxInitiated, Amount: p.Amount})
	return p, nil
}

func (m *memStore) HasCompleted(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID && (p.Status == StatusCompleted || p.Status == StatusPartiallyRefunded || p.Status == StatusRefunded) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Get(_ context.Context, id int64) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return p, ErrPaymentNotFound
	}
	return p, nil
}

func (m *memStore) GetByReference(_ context.Context, ref string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PaymentReference == ref {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (m *memStore) GetByCorrelation(_ context.Context, gateway, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Gateway == gateway && p.GatewayCorrelationID == id {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (m *memStore) ListByOrder(context.Context, int64) ([]Payment, error)    { return nil, nil }
func (m *memStore) ListByCustomer(context.Context, int64) ([]Payment, error) { return nil, nil }
func (m *memStore) ListByBusiness(context.Context, int64) ([]Payment, error) { return nil, nil }

func (m *memStore) Transactions(_ context.Context, id int64) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.ledger {
		if t.PaymentID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ApplySettlement(_ context.Context, u SettlementUpdate) (Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[u.PaymentID]
	if !slices.Contains(u.From, p.Status) {
		return p, false, nil
	}
	if u.To == StatusCompleted {
		for _, other := range m.payments {
			if other.ID != p.ID && other.OrderID == p.OrderID && other.Status == StatusCompleted {
				return Payment{}, false, ErrCompletedConflict
			}
		}
	}
	p.Status = u.To
	if u.GatewayPaymentID != "" {
		p.GatewayPaymentID = u.GatewayPaymentID
	}
	if u.To == StatusFailed {
		p.FailureReason = u.FailureReason
	}
	m.payments[p.ID] = p
	if u.Entry != nil {
		e := *u.Entry
		e.PaymentID = p.ID
		m.ledger = append(m.ledger, e)
	}
	return p, true, nil
}

func (m *memStore) ApplyRefund(_ context.Context, u RefundUpdate) (Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[u.PaymentID]
	if (p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded) || p.RefundedAmount+u.Amount > p.Amount {
		return p, false, nil
	}
	p.RefundedAmount += u.Amount
	p.Status = StatusPartiallyRefunded
	if p.RefundedAmount == p.Amount {
		p.Status = StatusRefunded
	}
	p.RefundReason = u.Reason
	m.payments[p.ID] = p
	m.ledger = append(m.ledger, Transaction{PaymentID: p.ID, Type: TxRefund, Status: TxSuccess, Amount: u.Amount})
	return p, true, nil
}

func (m *memStore) count(typ TxType, status TxStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.ledger {
		if t.Type == typ && t.Status == status {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu         sync.Mutex
	intents    int
	refunds    []money.Amount
	refundKeys []string
	intentErr  error
	refundErr  error
	nextCorrID int
}

func (g *fakeGateway) Name() string { return "stripe" }

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents++
	if g.intentErr != nil {
		return Intent{}, g.intentErr
	}
	g.nextCorrID++
	id := fmt.Sprintf("pi_%d", g.nextCorrID)
	return Intent{CorrelationID: id, ClientToken: id + "_secret"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req RefundRequest) (RefundReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundKeys = append(g.refundKeys, req.IdempotencyKey)
	if g.refundErr != nil {
		return RefundReceipt{}, g.refundErr
	}
	g.refunds = append(g.refunds, req.Amount)
	return RefundReceipt{GatewayRefundID: "re_1", Status: "succeeded"}, nil
}

type fakeOrders struct {
	summary orders.Summary
	err     error
}

func (f *fakeOrders) OrderTotal(context.Context, int64) (orders.Summary, error) {
	return f.summary, f.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []orders.PaymentOutcome
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, _ int64, out orders.PaymentOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
	return r.err
}

var errBoom = errors.New("boom")
