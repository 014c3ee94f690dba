package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/money"
	"github.com/ariefcatur/go-order-settlement/internal/redisx"
)

var ErrIdempotencyInFlight = errors.New("request with this idempotency key is still in progress")

// Store is the persistence the service drives. *Repo implements it.
type Store interface {
	Create(ctx context.Context, o Order) (Order, error)
	Transition(ctx context.Context, req TransitionRequest) (Order, error)
	ApplyPaymentOutcome(ctx context.Context, orderID int64, out PaymentOutcome) (Order, bool, error)
	Get(ctx context.Context, id int64) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	ListByCustomer(ctx context.Context, customerID int64, f Filter) ([]Order, error)
	ListByBusiness(ctx context.Context, businessID int64, f Filter) ([]Order, error)
	Tracking(ctx context.Context, orderID int64) ([]TrackingEvent, error)
	StatusView(ctx context.Context, orderID int64) (StatusView, error)
	Summary(ctx context.Context, orderID int64) (Summary, error)
	CountByBusiness(ctx context.Context, businessID int64, status Status) (int64, error)
	RevenueByBusiness(ctx context.Context, businessID int64) (money.Amount, error)
}

// Service is the order aggregate's entry point. Redis and Events are
// optional; without them caching and lifecycle publishing are skipped.
type Service struct {
	Store       Store
	Redis       *redis.Client
	Events      kafkax.Publisher
	Log         *zap.Logger
	ServiceName string
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// Create validates and persists a new order with its stock reservations.
// A non-empty idemKey makes repeats return the first order (existed=true).
func (s *Service) Create(ctx context.Context, idemKey string, in CreateOrderInput) (Order, bool, error) {
	if err := Validate(in, s.now()); err != nil {
		return Order{}, false, err
	}

	var rkey string
	if idemKey != "" && s.Redis != nil {
		rkey = fmt.Sprintf(redisx.KeyIdemOrderCreate, idemKey)
		ok, err := s.Redis.SetNX(ctx, rkey, "pending", redisx.TTLIdempotency).Result()
		if err != nil {
			s.Log.Warn("idempotency check failed", zap.String("key", idemKey), zap.Error(err))
			rkey = ""
		} else if !ok {
			return s.replay(ctx, rkey)
		}
	}

	o, err := s.Store.Create(ctx, buildOrder(in, NewOrderNumber(s.now())))
	if err != nil {
		if rkey != "" {
			_ = s.Redis.Del(ctx, rkey).Err()
		}
		return Order{}, false, err
	}
	if rkey != "" {
		_ = s.Redis.Set(ctx, rkey, strconv.FormatInt(o.ID, 10), redisx.TTLIdempotency).Err()
	}

	s.Log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.TotalAmount.String()))
	s.publish(o)
	return o, false, nil
}

func (s *Service) replay(ctx context.Context, rkey string) (Order, bool, error) {
	id, err := replayedOrderID(s.Redis.Get(ctx, rkey).Result())
	if err != nil {
		return Order{}, false, err
	}
	o, err := s.Store.Get(ctx, id)
	return o, true, err
}

// replayedOrderID reads the value behind a held idempotency key. A key that
// vanished after SetNX lost (the first attempt failed and released it, or it
// expired) is reported as in flight so the client retries and wins SetNX.
func replayedOrderID(v string, err error) (int64, error) {
	if errors.Is(err, redis.Nil) {
		return 0, ErrIdempotencyInFlight
	}
	if err != nil {
		return 0, fmt.Errorf("read idempotency key: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, ErrIdempotencyInFlight
	}
	return id, nil
}

func buildOrder(in CreateOrderInput, number string) Order {
	o := Order{
		OrderNumber:         number,
		CustomerID:          in.CustomerID,
		BusinessID:          in.BusinessID,
		OrderType:           in.OrderType,
		DeliveryType:        in.DeliveryType,
		Status:              StatusPending,
		PaymentStatus:       PaymentPending,
		Subtotal:            in.Subtotal,
		TaxAmount:           in.TaxAmount,
		DiscountAmount:      in.DiscountAmount,
		DeliveryCharges:     in.DeliveryCharges,
		TotalAmount:         in.TotalAmount,
		SpecialInstructions: in.SpecialInstructions,
		ScheduledAt:         in.ScheduledAt,
		DeliveryAddress:     in.DeliveryAddress,
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, Item{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			ProductSKU:     it.ProductSKU,
			Unit:           it.Unit,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			DiscountAmount: it.DiscountAmount,
			TotalPrice:     it.TotalPrice,
			Status:         ItemPending,
		})
	}
	return o
}

func (s *Service) Confirm(ctx context.Context, id int64) (Order, error) {
	return s.transition(ctx, TransitionRequest{OrderID: id, To: StatusConfirmed})
}

func (s *Service) Dispatch(ctx context.Context, id, deliveryPersonID int64) (Order, error) {
	if deliveryPersonID <= 0 {
		return Order{}, &ValidationError{Field: "delivery_person_id", Reason: "required"}
	}
	return s.transition(ctx, TransitionRequest{OrderID: id, To: StatusOutForDelivery, DeliveryPersonID: deliveryPersonID})
}

func (s *Service) Deliver(ctx context.Context, id int64) (Order, error) {
	return s.transition(ctx, TransitionRequest{OrderID: id, To: StatusDelivered})
}

func (s *Service) Cancel(ctx context.Context, id int64, reason string) (Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, &ValidationError{Field: "reason", Reason: "required"}
	}
	return s.transition(ctx, TransitionRequest{OrderID: id, To: StatusCancelled, Reason: reason})
}

func (s *Service) transition(ctx context.Context, req TransitionRequest) (Order, error) {
	o, err := s.Store.Transition(ctx, req)
	if err != nil {
		return Order{}, err
	}
	s.Log.Info("order transitioned", zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
	s.invalidate(ctx, o.ID)
	s.publish(o)
	return o, nil
}

// OrderTotal is the read-only view used to price a payment.
func (s *Service) OrderTotal(ctx context.Context, id int64) (Summary, error) {
	return s.Store.Summary(ctx, id)
}

// ApplyPaymentOutcome records a settlement result on the order. Safe to call
// repeatedly with the same outcome.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, id int64, out PaymentOutcome) error {
	o, confirmed, err := s.Store.ApplyPaymentOutcome(ctx, id, out)
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	if confirmed {
		s.publish(o)
	}
	if s.Events != nil {
		env := kafkax.NewEnvelope(EventOrderPaymentUpdated, s.ServiceName, PartitionKey(o.ID), lifecyclePayload(o))
		kafkax.PublishEnvelope(s.Events, PartitionKey(o.ID), env)
	}
	s.Log.Info("payment outcome applied",
		zap.Int64("order_id", id),
		zap.String("payment_status", string(o.PaymentStatus)),
		zap.String("status", string(o.Status)))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) { return s.Store.Get(ctx, id) }

func (s *Service) GetByNumber(ctx context.Context, number string) (Order, error) {
	return s.Store.GetByNumber(ctx, number)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID int64, f Filter) ([]Order, error) {
	return s.Store.ListByCustomer(ctx, customerID, f)
}

func (s *Service) ListByBusiness(ctx context.Context, businessID int64, f Filter) ([]Order, error) {
	return s.Store.ListByBusiness(ctx, businessID, f)
}

func (s *Service) Tracking(ctx context.Context, id int64) ([]TrackingEvent, error) {
	return s.Store.Tracking(ctx, id)
}

func (s *Service) BusinessOrderCount(ctx context.Context, businessID int64, status Status) (int64, error) {
	if status != "" && !status.Valid() {
		return 0, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", status)}
	}
	return s.Store.CountByBusiness(ctx, businessID, status)
}

func (s *Service) BusinessRevenue(ctx context.Context, businessID int64) (money.Amount, error) {
	return s.Store.RevenueByBusiness(ctx, businessID)
}

// Status serves the order's status from Redis when cached.
func (s *Service) Status(ctx context.Context, id int64) (StatusView, error) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, strconv.FormatInt(id, 10))
	if s.Redis != nil {
		if b, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
			var v StatusView
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}

	v, err := s.Store.StatusView(ctx, id)
	if err != nil {
		return v, err
	}
	if s.Redis != nil {
		b, _ := json.Marshal(v)
		_ = s.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	return v, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, strconv.FormatInt(id, 10))
	if err := s.Redis.Del(ctx, key).Err(); err != nil {
		s.Log.Warn("status cache invalidation failed", zap.Int64("order_id", id), zap.Error(err))
	}
}

func (s *Service) publish(o Order) {
	if s.Events == nil {
		return
	}
	env := kafkax.NewEnvelope(transitionEvents[o.Status], s.ServiceName, PartitionKey(o.ID), lifecyclePayload(o))
	kafkax.PublishEnvelope(s.Events, PartitionKey(o.ID), env)
}
