package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("inventory record not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservedUnderflow marks a release/commit of more units than are
	// reserved. It is reported, never corrected silently.
	ErrReservedUnderflow = errors.New("reserved stock underflow")
)

type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d requested=%d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
