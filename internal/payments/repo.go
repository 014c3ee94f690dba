package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/postgres"
)

// Store is the payment persistence the service drives. *Repo implements it.
type Store interface {
	InsertPending(ctx context.Context, p Payment) (Payment, error)
	HasCompleted(ctx context.Context, orderID int64) (bool, error)
	Get(ctx context.Context, id int64) (Payment, error)
	GetByReference(ctx context.Context, ref string) (Payment, error)
	GetByCorrelation(ctx context.Context, gateway, correlationID string) (Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error)
	ListByBusiness(ctx context.Context, businessID int64) ([]Payment, error)
	Transactions(ctx context.Context, paymentID int64) ([]Transaction, error)
	ApplySettlement(ctx context.Context, u SettlementUpdate) (Payment, bool, error)
	ApplyRefund(ctx context.Context, u RefundUpdate) (Payment, bool, error)
}

// SettlementUpdate moves a payment from one of From to To and appends Entry
// when set. Applied is false when the row was no longer in From.
type SettlementUpdate struct {
	PaymentID        int64
	From             []Status
	To               Status
	GatewayPaymentID string
	FailureReason    string
	Entry            *Transaction
}

type RefundUpdate struct {
	PaymentID       int64
	Amount          money.Amount
	Reason          string
	GatewayRefundID string
}

// ErrCompletedConflict reports that another payment of the same order is
// already COMPLETED.
var ErrCompletedConflict = errors.New("order already has a completed payment row")

type Repo struct{ DB *pgxpool.Pool }

const paymentCols = `id, payment_reference, order_id, customer_id, business_id, amount, currency,
	method, gateway, gateway_correlation_id, gateway_payment_id, status, refunded_amount,
	description, customer_email, customer_phone, failure_reason, refund_reason, paid_at,
	failed_at, refunded_at, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.PaymentReference, &p.OrderID, &p.CustomerID, &p.BusinessID, &p.Amount,
		&p.Currency, &p.Method, &p.Gateway, &p.GatewayCorrelationID, &p.GatewayPaymentID, &p.Status,
		&p.RefundedAmount, &p.Description, &p.CustomerEmail, &p.CustomerPhone, &p.FailureReason,
		&p.RefundReason, &p.PaidAt, &p.FailedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrPaymentNotFound
	}
	return p, err
}

func (r *Repo) InsertPending(ctx context.Context, p Payment) (Payment, error) {
	var out Payment
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		out, err = scanPayment(tx.QueryRow(ctx, `
			INSERT INTO payments (payment_reference, order_id, customer_id, business_id, amount,
				currency, method, gateway, gateway_correlation_id, status, description,
				customer_email, customer_phone)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			RETURNING `+paymentCols,
			p.PaymentReference, p.OrderID, p.CustomerID, p.BusinessID, int64(p.Amount), p.Currency,
			string(p.Method), p.Gateway, p.GatewayCorrelationID, string(StatusPending), p.Description,
			p.CustomerEmail, p.CustomerPhone))
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return appendEntry(ctx, tx, Transaction{
			PaymentID:            out.ID,
			Type:                 TxPayment,
			Status:               TxInitiated,
			Amount:               out.Amount,
			GatewayTransactionID: out.GatewayCorrelationID,
			Description:          "payment initiated",
		})
	})
	return out, err
}

func appendEntry(ctx context.Context, db postgres.DBTX, t Transaction) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payment_transactions (payment_id, type, status, amount, gateway_transaction_id, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.PaymentID, string(t.Type), string(t.Status), int64(t.Amount), t.GatewayTransactionID, t.Description)
	if err != nil {
		return fmt.Errorf("append payment transaction: %w", err)
	}
	return nil
}

func (r *Repo) HasCompleted(ctx context.Context, orderID int64) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status IN ('COMPLETED','PARTIALLY_REFUNDED','REFUNDED'))`,
		orderID).Scan(&ok)
	return ok, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
}

func (r *Repo) GetByReference(ctx context.Context, ref string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE payment_reference = $1`, ref))
}

func (r *Repo) GetByCorrelation(ctx context.Context, gateway, correlationID string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE gateway = $1 AND gateway_correlation_id = $2`, gateway, correlationID))
}

func (r *Repo) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return r.list(ctx, "order_id", orderID)
}

func (r *Repo) ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error) {
	return r.list(ctx, "customer_id", customerID)
}

func (r *Repo) ListByBusiness(ctx context.Context, businessID int64) ([]Payment, error) {
	return r.list(ctx, "business_id", businessID)
}

func (r *Repo) list(ctx context.Context, col string, id int64) ([]Payment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+paymentCols+` FROM payments WHERE `+col+` = $1
		ORDER BY created_at DESC, id DESC LIMIT 200`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Transactions(ctx context.Context, paymentID int64) ([]Transaction, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, payment_id, type, status, amount, gateway_transaction_id, description, created_at
		FROM payment_transactions WHERE payment_id = $1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.Type, &t.Status, &t.Amount,
			&t.GatewayTransactionID, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) ApplySettlement(ctx context.Context, u SettlementUpdate) (Payment, bool, error) {
	from := make([]string, 0, len(u.From))
	for _, s := range u.From {
		from = append(from, string(s))
	}

	var (
		out     Payment
		applied bool
	)
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx, `
			UPDATE payments SET
				status = $2,
				gateway_payment_id = CASE WHEN $4::text <> '' THEN $4::text ELSE gateway_payment_id END,
				paid_at = CASE WHEN $2::text = 'COMPLETED' THEN now() ELSE paid_at END,
				failed_at = CASE WHEN $2::text = 'FAILED' THEN now() ELSE failed_at END,
				failure_reason = CASE WHEN $2::text = 'FAILED' THEN $5::text ELSE failure_reason END,
				updated_at = now()
			WHERE id = $1 AND status = ANY($3)
			RETURNING `+paymentCols,
			u.PaymentID, string(u.To), from, u.GatewayPaymentID, u.FailureReason))
		if errors.Is(err, ErrPaymentNotFound) {
			out, err = scanPayment(tx.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, u.PaymentID))
			return err
		}
		if err != nil {
			if isUniqueViolation(err, "uq_payments_order_completed") {
				return ErrCompletedConflict
			}
			return err
		}
		if u.Entry != nil {
			e := *u.Entry
			e.PaymentID = p.ID
			if err := appendEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		out, applied = p, true
		return nil
	})
	return out, applied, err
}

func (r *Repo) ApplyRefund(ctx context.Context, u RefundUpdate) (Payment, bool, error) {
	var (
		out     Payment
		applied bool
	)
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx, `
			UPDATE payments SET
				refunded_amount = refunded_amount + $2,
				status = CASE WHEN refunded_amount + $2 = amount THEN 'REFUNDED' ELSE 'PARTIALLY_REFUNDED' END,
				refund_reason = $3,
				refunded_at = now(),
				updated_at = now()
			WHERE id = $1
			  AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED')
			  AND refunded_amount + $2 <= amount
			RETURNING `+paymentCols,
			u.PaymentID, int64(u.Amount), u.Reason))
		if errors.Is(err, ErrPaymentNotFound) {
			out, err = scanPayment(tx.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, u.PaymentID))
			return err
		}
		if err != nil {
			return err
		}
		if err := appendEntry(ctx, tx, Transaction{
			PaymentID:            p.ID,
			Type:                 TxRefund,
			Status:               TxSuccess,
			Amount:               u.Amount,
			GatewayTransactionID: u.GatewayRefundID,
			Description:          u.Reason,
		}); err != nil {
			return err
		}
		out, applied = p, true
		return nil
	})
	return out, applied, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
