package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/postgres"
)

// Ledger owns the per-product stock counters. Every counter change is a single
// conditional UPDATE so concurrent callers on the same product cannot race.
type Ledger struct {
	DB  *pgxpool.Pool
	Log *zap.Logger
}

func NewLedger(db *pgxpool.Pool, log *zap.Logger) *Ledger {
	return &Ledger{DB: db, Log: log}
}

// Reserve moves qty units from current to reserved, or fails without mutating.
func (l *Ledger) Reserve(ctx context.Context, db postgres.DBTX, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ct, err := db.Exec(ctx, `
		UPDATE inventory
		SET current_stock = current_stock - $2,
		    reserved_stock = reserved_stock + $2,
		    updated_at = now()
		WHERE product_id = $1 AND current_stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = db.QueryRow(ctx, `SELECT current_stock FROM inventory WHERE product_id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
	return &InsufficientStockError{ProductID: productID, Available: available, Requested: qty}
}

// Release moves reserved units back to current. An underflow is clamped at
// zero and logged as an anomaly; the returned result carries the detail.
func (l *Ledger) Release(ctx context.Context, db postgres.DBTX, productID int64, qty int) (MoveResult, error) {
	return l.move(ctx, db, productID, qty, `
		WITH prev AS (
			SELECT product_id, reserved_stock FROM inventory WHERE product_id = $1 FOR UPDATE
		)
		UPDATE inventory i
		SET current_stock = i.current_stock + LEAST(i.reserved_stock, $2),
		    reserved_stock = i.reserved_stock - LEAST(i.reserved_stock, $2),
		    updated_at = now()
		FROM prev
		WHERE i.product_id = prev.product_id
		RETURNING prev.reserved_stock`, "release")
}

// Commit consumes reserved units permanently (delivery).
func (l *Ledger) Commit(ctx context.Context, db postgres.DBTX, productID int64, qty int) (MoveResult, error) {
	return l.move(ctx, db, productID, qty, `
		WITH prev AS (
			SELECT product_id, reserved_stock FROM inventory WHERE product_id = $1 FOR UPDATE
		)
		UPDATE inventory i
		SET reserved_stock = i.reserved_stock - LEAST(i.reserved_stock, $2),
		    updated_at = now()
		FROM prev
		WHERE i.product_id = prev.product_id
		RETURNING prev.reserved_stock`, "commit")
}

func (l *Ledger) move(ctx context.Context, db postgres.DBTX, productID int64, qty int, sql, op string) (MoveResult, error) {
	res := MoveResult{ProductID: productID, Requested: qty}
	if qty <= 0 {
		return res, ErrInvalidQuantity
	}
	err := db.QueryRow(ctx, sql, productID, qty).Scan(&res.ReservedBefore)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("%s product %d: %w", op, productID, err)
	}
	res.Moved = min(res.ReservedBefore, qty)
	if res.Underflow() {
		l.Log.Error("reserved stock underflow",
			logx.Anomaly("reserved_underflow"),
			zap.String("op", op),
			zap.Int64("product_id", productID),
			zap.Int("requested", qty),
			zap.Int("reserved_before", res.ReservedBefore))
	}
	return res, nil
}

// Adjust applies a direct stock correction (restock, shrinkage). It does not
// touch reserved_stock. A positive delta creates the record if missing.
func (l *Ledger) Adjust(ctx context.Context, productID int64, delta int) (Record, error) {
	var rec Record
	if delta == 0 {
		return l.Get(ctx, productID)
	}
	if delta > 0 {
		err := l.DB.QueryRow(ctx, `
			INSERT INTO inventory (product_id, current_stock)
			VALUES ($1, $2)
			ON CONFLICT (product_id) DO UPDATE
			SET current_stock = inventory.current_stock + EXCLUDED.current_stock,
			    updated_at = now()
			RETURNING product_id, current_stock, reserved_stock, reorder_point, updated_at`,
			productID, delta).Scan(&rec.ProductID, &rec.CurrentStock, &rec.ReservedStock, &rec.ReorderPoint, &rec.UpdatedAt)
		if err != nil {
			return rec, fmt.Errorf("adjust product %d: %w", productID, err)
		}
		return rec, nil
	}

	err := l.DB.QueryRow(ctx, `
		UPDATE inventory
		SET current_stock = current_stock + $2, updated_at = now()
		WHERE product_id = $1 AND current_stock + $2 >= 0
		RETURNING product_id, current_stock, reserved_stock, reorder_point, updated_at`,
		productID, delta).Scan(&rec.ProductID, &rec.CurrentStock, &rec.ReservedStock, &rec.ReorderPoint, &rec.UpdatedAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("adjust product %d: %w", productID, err)
	}
	cur, gerr := l.Get(ctx, productID)
	if gerr != nil {
		return rec, gerr
	}
	return rec, &InsufficientStockError{ProductID: productID, Available: cur.CurrentStock, Requested: -delta}
}

func (l *Ledger) SetReorderPoint(ctx context.Context, productID int64, point int) error {
	if point < 0 {
		return ErrInvalidQuantity
	}
	ct, err := l.DB.Exec(ctx, `UPDATE inventory SET reorder_point = $2, updated_at = now() WHERE product_id = $1`, productID, point)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, productID int64) (Record, error) {
	var rec Record
	err := l.DB.QueryRow(ctx, `
		SELECT product_id, current_stock, reserved_stock, reorder_point, updated_at
		FROM inventory WHERE product_id = $1`, productID).
		Scan(&rec.ProductID, &rec.CurrentStock, &rec.ReservedStock, &rec.ReorderPoint, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrProductNotFound
	}
	return rec, err
}

// LowStock lists products at or below their reorder point.
func (l *Ledger) LowStock(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.DB.Query(ctx, `
		SELECT product_id, current_stock, reserved_stock, reorder_point, updated_at
		FROM inventory
		WHERE current_stock <= reorder_point
		ORDER BY current_stock, product_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ProductID, &rec.CurrentStock, &rec.ReservedStock, &rec.ReorderPoint, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReserveForOrder reserves every line of an order and records the
// reservations. Lines for the same product are merged and products are locked
// in ascending id order. Must run inside the order's transaction.
func (l *Ledger) ReserveForOrder(ctx context.Context, tx pgx.Tx, orderID int64, items []ItemQty) error {
	for _, it := range Merge(items) {
		if err := l.Reserve(ctx, tx, it.ProductID, it.Qty); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (order_id, product_id, quantity, status)
			VALUES ($1, $2, $3, 'RESERVED')`, orderID, it.ProductID, it.Qty); err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
	}
	return nil
}

// ReacquireForOrder re-reserves reservations that an earlier payment failure
// released. Any shortage fails the whole call; the caller's tx rolls back.
func (l *Ledger) ReacquireForOrder(ctx context.Context, tx pgx.Tx, orderID int64) error {
	items, err := flip(ctx, tx, orderID, ReservationReleased, ReservationReserved)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := l.Reserve(ctx, tx, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseForOrder returns all RESERVED units of an order to sellable stock.
// Calling it twice is a no-op.
func (l *Ledger) ReleaseForOrder(ctx context.Context, tx pgx.Tx, orderID int64) ([]MoveResult, error) {
	return l.settleForOrder(ctx, tx, orderID, ReservationReleased, l.Release)
}

// CommitForOrder consumes all RESERVED units of an order.
func (l *Ledger) CommitForOrder(ctx context.Context, tx pgx.Tx, orderID int64) ([]MoveResult, error) {
	return l.settleForOrder(ctx, tx, orderID, ReservationCommitted, l.Commit)
}

func (l *Ledger) settleForOrder(
	ctx context.Context,
	tx pgx.Tx,
	orderID int64,
	to ReservationStatus,
	op func(context.Context, postgres.DBTX, int64, int) (MoveResult, error),
) ([]MoveResult, error) {
	items, err := flip(ctx, tx, orderID, ReservationReserved, to)
	if err != nil {
		return nil, err
	}
	out := make([]MoveResult, 0, len(items))
	for _, it := range items {
		res, err := op(ctx, tx, it.ProductID, it.Qty)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// flip moves an order's reservations between states and returns the rows it
// touched, sorted by product id.
func flip(ctx context.Context, tx pgx.Tx, orderID int64, from, to ReservationStatus) ([]ItemQty, error) {
	rows, err := tx.Query(ctx, `
		UPDATE reservations SET status = $3, updated_at = now()
		WHERE order_id = $1 AND status = $2
		RETURNING product_id, quantity`, orderID, string(from), string(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemQty
	for rows.Next() {
		var it ItemQty
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

// Merge sums quantities per product and sorts by product id.
func Merge(items []ItemQty) []ItemQty {
	byID := make(map[int64]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Qty
	}
	out := make([]ItemQty, 0, len(byID))
	for id, q := range byID {
		out = append(out, ItemQty{ProductID: id, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
