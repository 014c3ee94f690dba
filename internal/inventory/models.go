package inventory

import "time"

type Record struct {
	ProductID     int64     `json:"product_id"`
	CurrentStock  int       `json:"current_stock"`
	ReservedStock int       `json:"reserved_stock"`
	ReorderPoint  int       `json:"reorder_point"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// MoveResult reports what a release or commit actually moved. Moved < Requested
// means the reserved counter would have gone negative.
type MoveResult struct {
	ProductID      int64
	Requested      int
	Moved          int
	ReservedBefore int
}

func (r MoveResult) Underflow() bool { return r.Moved < r.Requested }

// Err returns ErrReservedUnderflow when the move was clamped.
func (r MoveResult) Err() error {
	if r.Underflow() {
		return ErrReservedUnderflow
	}
	return nil
}
