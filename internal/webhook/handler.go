package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/payments"
	"github.com/ariefcatur/go-order-settlement/internal/redisx"
)

// MaxBodyBytes caps how much of a webhook body is read before verification.
const MaxBodyBytes = 1 << 20

type Settler interface {
	Settle(ctx context.Context, out payments.Outcome) (payments.SettleResult, error)
}

// Handler receives POST /webhooks/{gateway}. Redis is optional and only
// short-circuits deliveries already processed; the payment row decides
// idempotency.
type Handler struct {
	Verifiers map[string]Verifier
	Settler   Settler
	Redis     *redis.Client
	Log       *zap.Logger
}

func NewHandler(s Settler, rdb *redis.Client, log *zap.Logger, vs ...Verifier) *Handler {
	h := &Handler{Verifiers: map[string]Verifier{}, Settler: s, Redis: rdb, Log: log}
	for _, v := range vs {
		h.Verifiers[v.Gateway()] = v
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/{gateway}", h.receive)
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	v, ok := h.Verifiers[gateway]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"error": "unknown_gateway"})
		return
	}
	log := h.Log.With(zap.String("gateway", gateway))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.Warn("webhook body rejected", zap.Error(err))
		reply(w, http.StatusBadRequest, map[string]string{"error": "unreadable_body"})
		return
	}

	ev, err := v.Parse(r.Header, body)
	switch {
	case errors.Is(err, ErrSignature):
		log.Warn("webhook signature rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		reply(w, http.StatusBadRequest, map[string]string{"error": "invalid_signature"})
		return
	case errors.Is(err, ErrIgnoredEvent):
		log.Debug("webhook event ignored", zap.String("event_type", ev.Type), zap.String("event_id", ev.ID))
		reply(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		log.Warn("webhook payload rejected", zap.Error(err))
		reply(w, http.StatusBadRequest, map[string]string{"error": "malformed_payload"})
		return
	}
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	dedupKey := fmt.Sprintf(redisx.KeyWebhookDedup, gateway, ev.ID)
	if h.Redis != nil {
		if seen, err := redisx.Exists(ctx, h.Redis, dedupKey); err == nil && seen {
			log.Info("webhook duplicate short-circuited")
			reply(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	res, err := h.Settler.Settle(ctx, ev.Outcome)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		log.Warn("webhook for unknown payment", zap.String("correlation_id", ev.Outcome.CorrelationID))
		reply(w, http.StatusOK, map[string]string{"status": "unknown_payment"})
		return
	}
	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		reply(w, http.StatusInternalServerError, map[string]string{"error": "processing_failed"})
		return
	}

	if h.Redis != nil {
		if err := redisx.Mark(ctx, h.Redis, dedupKey, redisx.TTLDedup); err != nil {
			log.Warn("webhook dedup mark failed", zap.Error(err))
		}
	}
	reply(w, http.StatusOK, map[string]any{
		"status":  "processed",
		"applied": res.Applied,
		"payment": res.Payment.PaymentReference,
	})
}
