package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/inventory"
	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/postgres"
)

type Repo struct {
	DB     *pgxpool.Pool
	Ledger *inventory.Ledger
	Log    *zap.Logger
}

const orderCols = `id, order_number, customer_id, business_id, order_type, delivery_type, status,
	payment_status, subtotal, tax_amount, discount_amount, delivery_charges, total_amount,
	refunded_amount, special_instructions, scheduled_at, confirmed_at, dispatched_at,
	delivered_at, cancelled_at, cancellation_reason, assigned_delivery_person_id,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.BusinessID, &o.OrderType, &o.DeliveryType,
		&o.Status, &o.PaymentStatus, &o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.DeliveryCharges,
		&o.TotalAmount, &o.RefundedAmount, &o.SpecialInstructions, &o.ScheduledAt, &o.ConfirmedAt,
		&o.DispatchedAt, &o.DeliveredAt, &o.CancelledAt, &o.CancellationReason,
		&o.AssignedDeliveryPersonID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrOrderNotFound
	}
	return o, err
}

// Create persists the aggregate and reserves stock for every line in one
// transaction. Any shortage rolls the whole order back.
func (r *Repo) Create(ctx context.Context, o Order) (Order, error) {
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO orders (order_number, customer_id, business_id, order_type, delivery_type,
				status, payment_status, subtotal, tax_amount, discount_amount, delivery_charges,
				total_amount, special_instructions, scheduled_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING `+orderCols,
			o.OrderNumber, o.CustomerID, o.BusinessID, string(o.OrderType), string(o.DeliveryType),
			string(StatusPending), string(PaymentPending), int64(o.Subtotal), int64(o.TaxAmount),
			int64(o.DiscountAmount), int64(o.DeliveryCharges), int64(o.TotalAmount),
			o.SpecialInstructions, o.ScheduledAt)
		created, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		qty := make([]inventory.ItemQty, 0, len(o.Items))
		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = created.ID
			it.Status = ItemPending
			err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, product_sku, unit,
					quantity, unit_price, discount_amount, total_price, status)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				RETURNING id`,
				created.ID, it.ProductID, it.ProductName, it.ProductSKU, it.Unit, it.Quantity,
				int64(it.UnitPrice), int64(it.DiscountAmount), int64(it.TotalPrice), string(it.Status)).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			qty = append(qty, inventory.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
		}

		if a := o.DeliveryAddress; a != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_delivery_addresses (order_id, recipient_name, recipient_phone,
					recipient_email, address_line1, address_line2, city, state, pincode, landmark,
					latitude, longitude)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				created.ID, a.RecipientName, a.RecipientPhone, a.RecipientEmail, a.AddressLine1,
				a.AddressLine2, a.City, a.State, a.Pincode, a.Landmark, a.Latitude, a.Longitude); err != nil {
				return fmt.Errorf("insert address: %w", err)
			}
		}

		if err := insertEvent(ctx, tx, created.ID, StatusPending, "Order placed", nil); err != nil {
			return err
		}
		if err := r.Ledger.ReserveForOrder(ctx, tx, created.ID, qty); err != nil {
			return err
		}

		created.Items = o.Items
		created.DeliveryAddress = o.DeliveryAddress
		o = created
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func insertEvent(ctx context.Context, db postgres.DBTX, orderID int64, s Status, desc string, actor *int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO order_events (order_id, status, description, actor_id)
		VALUES ($1, $2, $3, $4)`, orderID, string(s), desc, actor)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

// TransitionRequest describes one state-machine step. DeliveryPersonID is
// used by dispatch and Reason by cancel.
type TransitionRequest struct {
	OrderID          int64
	To               Status
	DeliveryPersonID int64
	Reason           string
	ActorID          *int64
}

var transitionSQL = map[Status]struct {
	set   string
	item  ItemStatus
	event string
}{
	StatusConfirmed:      {set: "confirmed_at = now()", item: ItemConfirmed, event: "Order confirmed"},
	StatusOutForDelivery: {set: "dispatched_at = now(), assigned_delivery_person_id = $4", event: "Order out for delivery"},
	StatusDelivered:      {set: "delivered_at = now()", item: ItemDelivered, event: "Order delivered"},
	StatusCancelled:      {set: "cancelled_at = now(), cancellation_reason = $4", item: ItemCancelled, event: "Order cancelled"},
}

// Transition applies one conditional status change together with its item,
// reservation and tracking side effects. When the row is not in a legal
// source state nothing is written and a *TransitionError is returned.
func (r *Repo) Transition(ctx context.Context, req TransitionRequest) (Order, error) {
	step, ok := transitionSQL[req.To]
	if !ok {
		return Order{}, fmt.Errorf("no transition into %s: %w", req.To, ErrInvalidStateTransition)
	}
	from := make([]string, 0, 3)
	for _, s := range SourcesOf(req.To) {
		from = append(from, string(s))
	}
	args := []any{req.OrderID, string(req.To), from}
	switch req.To {
	case StatusOutForDelivery:
		args = append(args, req.DeliveryPersonID)
	case StatusCancelled:
		args = append(args, req.Reason)
	}

	var out Order
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, updated_at = now(), `+step.set+`
			WHERE id = $1 AND status = ANY($3)
			RETURNING `+orderCols, args...))
		if errors.Is(err, ErrOrderNotFound) {
			var cur Status
			err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, req.OrderID).Scan(&cur)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			if err != nil {
				return err
			}
			return &TransitionError{OrderID: req.OrderID, From: cur, To: req.To}
		}
		if err != nil {
			return err
		}

		if step.item != "" {
			if _, err := tx.Exec(ctx, `UPDATE order_items SET status = $2 WHERE order_id = $1`, o.ID, string(step.item)); err != nil {
				return fmt.Errorf("update items: %w", err)
			}
		}
		if req.To != StatusCancelled {
			// A failed payment on a PENDING order released its stock; an order
			// moving forward anyway must hold it again before it can ship.
			if err := r.Ledger.ReacquireForOrder(ctx, tx, o.ID); err != nil {
				return fmt.Errorf("reacquire reservations: %w", err)
			}
		}
		switch req.To {
		case StatusCancelled:
			if _, err := r.Ledger.ReleaseForOrder(ctx, tx, o.ID); err != nil {
				return fmt.Errorf("release reservations: %w", err)
			}
		case StatusDelivered:
			if _, err := r.Ledger.CommitForOrder(ctx, tx, o.ID); err != nil {
				return fmt.Errorf("commit reservations: %w", err)
			}
		}

		desc := step.event
		if req.Reason != "" {
			desc += ": " + req.Reason
		}
		if err := insertEvent(ctx, tx, o.ID, req.To, desc, req.ActorID); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// ApplyPaymentOutcome folds a settlement result into the order. Every branch
// is conditional on current state so replays change nothing.
func (r *Repo) ApplyPaymentOutcome(ctx context.Context, orderID int64, out PaymentOutcome) (Order, bool, error) {
	var (
		result    Order
		confirmed bool
	)
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if err != nil {
			return err
		}

		switch out.PaymentStatus {
		case PaymentCompleted:
			if o.PaymentStatus.Settled() {
				break
			}
			if o.PaymentStatus == PaymentFailed && !o.Status.Terminal() {
				r.reacquire(ctx, tx, o.ID)
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status = 'COMPLETED', updated_at = now() WHERE id = $1`, o.ID); err != nil {
				return err
			}
			if out.OrderStatus != nil && *out.OrderStatus == StatusConfirmed && o.Status == StatusPending {
				ct, err := tx.Exec(ctx, `
					UPDATE orders SET status = 'CONFIRMED', confirmed_at = now(), updated_at = now()
					WHERE id = $1 AND status = 'PENDING'`, o.ID)
				if err != nil {
					return err
				}
				if ct.RowsAffected() == 1 {
					if _, err := tx.Exec(ctx, `UPDATE order_items SET status = 'CONFIRMED' WHERE order_id = $1`, o.ID); err != nil {
						return err
					}
					if err := insertEvent(ctx, tx, o.ID, StatusConfirmed, "Payment received, order confirmed "+out.PaymentRef, nil); err != nil {
						return err
					}
					confirmed = true
				}
			}
			if o.Status == StatusCancelled {
				r.Log.Error("payment completed for cancelled order",
					logx.Anomaly("paid_cancelled_order"), zap.Int64("order_id", o.ID), zap.String("payment_reference", out.PaymentRef))
			}

		case PaymentFailed:
			if o.PaymentStatus.Settled() {
				break
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status = 'FAILED', updated_at = now() WHERE id = $1`, o.ID); err != nil {
				return err
			}
			// Only an unconfirmed order gives its stock back. Past PENDING
			// the reservation belongs to fulfilment and is consumed on delivery.
			if o.Status == StatusPending {
				if _, err := r.Ledger.ReleaseForOrder(ctx, tx, o.ID); err != nil {
					return fmt.Errorf("release reservations: %w", err)
				}
			}

		case PaymentRefunded, PaymentPartiallyRefunded:
			var refunded money.Amount
			if out.RefundedAmount != nil {
				refunded = *out.RefundedAmount
			}
			if _, err := tx.Exec(ctx, `
				UPDATE orders
				SET payment_status = CASE WHEN payment_status = 'REFUNDED' THEN 'REFUNDED' ELSE $2 END,
				    refunded_amount = GREATEST(refunded_amount, LEAST($3, total_amount)),
				    updated_at = now()
				WHERE id = $1`, o.ID, string(out.PaymentStatus), int64(refunded)); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unsupported payment status %q", out.PaymentStatus)
		}

		result, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, orderID))
		return err
	})
	return result, confirmed, err
}

// reacquire re-reserves stock released by an earlier failed payment. It runs
// in a savepoint: a shortage is an anomaly to follow up, not a reason to
// refuse money the gateway already collected.
func (r *Repo) reacquire(ctx context.Context, tx pgx.Tx, orderID int64) {
	sp, err := tx.Begin(ctx)
	if err == nil {
		if err = r.Ledger.ReacquireForOrder(ctx, sp, orderID); err == nil {
			err = sp.Commit(ctx)
		} else {
			_ = sp.Rollback(ctx)
		}
	}
	if err != nil {
		r.Log.Error("re-reservation after late payment failed",
			logx.Anomaly("reacquire_failed"), zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return o, err
	}
	return r.withDetails(ctx, o)
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE order_number = $1`, number))
	if err != nil {
		return o, err
	}
	return r.withDetails(ctx, o)
}

func (r *Repo) withDetails(ctx context.Context, o Order) (Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_sku, unit, quantity,
		       unit_price, discount_amount, total_price, status
		FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return o, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductSKU, &it.Unit,
			&it.Quantity, &it.UnitPrice, &it.DiscountAmount, &it.TotalPrice, &it.Status); err != nil {
			return o, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return o, err
	}

	var a DeliveryAddress
	err = r.DB.QueryRow(ctx, `
		SELECT recipient_name, recipient_phone, recipient_email, address_line1, address_line2,
		       city, state, pincode, landmark, latitude, longitude
		FROM order_delivery_addresses WHERE order_id = $1`, o.ID).
		Scan(&a.RecipientName, &a.RecipientPhone, &a.RecipientEmail, &a.AddressLine1, &a.AddressLine2,
			&a.City, &a.State, &a.Pincode, &a.Landmark, &a.Latitude, &a.Longitude)
	switch {
	case err == nil:
		o.DeliveryAddress = &a
	case !errors.Is(err, pgx.ErrNoRows):
		return o, err
	}
	return o, nil
}

func (r *Repo) ListByCustomer(ctx context.Context, customerID int64, f Filter) ([]Order, error) {
	return r.list(ctx, "customer_id", customerID, f)
}

func (r *Repo) ListByBusiness(ctx context.Context, businessID int64, f Filter) ([]Order, error) {
	return r.list(ctx, "business_id", businessID, f)
}

func (r *Repo) list(ctx context.Context, col string, id int64, f Filter) ([]Order, error) {
	f = f.normalized()
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE `+col+` = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, id, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) Tracking(ctx context.Context, orderID int64) ([]TrackingEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, status, description, actor_id, created_at
		FROM order_events WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackingEvent
	for rows.Next() {
		var e TrackingEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Description, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrOrderNotFound
	}
	return out, nil
}

func (r *Repo) StatusView(ctx context.Context, orderID int64) (StatusView, error) {
	v := StatusView{OrderID: orderID}
	err := r.DB.QueryRow(ctx, `SELECT status, payment_status, updated_at FROM orders WHERE id = $1`, orderID).
		Scan(&v.Status, &v.PaymentStatus, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, ErrOrderNotFound
	}
	return v, err
}

func (r *Repo) Summary(ctx context.Context, orderID int64) (Summary, error) {
	s := Summary{OrderID: orderID}
	err := r.DB.QueryRow(ctx, `
		SELECT order_number, customer_id, business_id, status, payment_status, total_amount
		FROM orders WHERE id = $1`, orderID).
		Scan(&s.OrderNumber, &s.CustomerID, &s.BusinessID, &s.Status, &s.PaymentStatus, &s.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrOrderNotFound
	}
	return s, err
}

func (r *Repo) CountByBusiness(ctx context.Context, businessID int64, status Status) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE business_id = $1 AND ($2::text = '' OR status = $2::text)`, businessID, string(status)).Scan(&n)
	return n, err
}

// RevenueByBusiness sums delivered orders net of refunds.
func (r *Repo) RevenueByBusiness(ctx context.Context, businessID int64) (money.Amount, error) {
	var total int64
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount - refunded_amount), 0)::BIGINT FROM orders
		WHERE business_id = $1 AND status = 'DELIVERED'`, businessID).Scan(&total)
	return money.Amount(total), err
}
