package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/inventory"
)

// StockLedger is what *inventory.Ledger exposes outside an order transaction.
type StockLedger interface {
	Get(ctx context.Context, productID int64) (inventory.Record, error)
	Adjust(ctx context.Context, productID int64, delta int) (inventory.Record, error)
	SetReorderPoint(ctx context.Context, productID int64, point int) error
	LowStock(ctx context.Context, limit int) ([]inventory.Record, error)
}

type InventoryHandler struct {
	Ledger StockLedger
	Log    *zap.Logger
}

type AdjustReq struct {
	Delta int `json:"delta"`
	// ReorderPoint is applied after the delta when present.
	ReorderPoint *int `json:"reorder_point,omitempty"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/low-stock", h.lowStock)
	r.Get("/inventory/{productId}", h.get)
	r.Post("/inventory/{productId}/adjust", h.adjust)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Ledger.Get(ctx, pid)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	var req AdjustReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ledger.Adjust(ctx, pid, req.Delta)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.ReorderPoint != nil {
		if err := h.Ledger.SetReorderPoint(ctx, pid, *req.ReorderPoint); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		rec.ReorderPoint = *req.ReorderPoint
	}
	h.Log.Info("stock adjusted",
		zap.Int64("product_id", pid),
		zap.Int("delta", req.Delta),
		zap.Int("current_stock", rec.CurrentStock))
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	recs, err := h.Ledger.LowStock(ctx, limit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if recs == nil {
		recs = []inventory.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
