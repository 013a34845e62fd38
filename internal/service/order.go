package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/quicktab/self-order-api/internal/live"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrOrderCompleted    = errors.New("order already completed")
	ErrOrderNotCompleted = errors.New("order not completed yet")
	ErrAlreadyRated      = errors.New("order already rated")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
)

type OrderService struct {
	st      store.Store
	cartSvc *CartService
	amqpCh  *amqp.Channel
	log     *slog.Logger
}

func NewOrderService(st store.Store, cartSvc *CartService, amqpCh *amqp.Channel, log *slog.Logger) *OrderService {
	return &OrderService{st: st, cartSvc: cartSvc, amqpCh: amqpCh, log: log}
}

// PlaceOrder snapshots the current cart into a new order with status
// "new" and a service-assigned timestamp, then clears the cart. The
// two steps are sequential, not atomic: if the clear fails the order
// stands and the leftover cart is logged.
func (s *OrderService) PlaceOrder(ctx context.Context, uid string, customer model.Customer, restaurant *model.Restaurant) (*model.Order, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	if restaurant == nil {
		return nil, ErrRestaurantNotFound
	}

	cart, err := s.cartSvc.Cart(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, entry := range cart.Items {
		items = append(items, model.OrderItem{
			MenuItemID: entry.MenuItem.ID,
			Name:       entry.MenuItem.Name,
			Quantity:   entry.Quantity,
			Price:      entry.MenuItem.Price,
		})
		total = total.Add(entry.MenuItem.Price.Mul(decimal.NewFromInt(int64(entry.Quantity))))
	}

	order := &model.Order{
		ID:           uuid.NewString(),
		RestaurantID: restaurant.ID,
		CustomerUID:  uid,
		Customer:     customer,
		Items:        items,
		Total:        total,
		Status:       model.StatusNew,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.st.Set(ctx, ordersCollection, order.ID, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.publishPlaced(ctx, order)

	if err := s.cartSvc.ClearCart(ctx, uid); err != nil {
		s.log.Error("clear cart after order", "order_id", order.ID, "user_id", uid, "error", err)
	}
	return order, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderPlacedMessage{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerUID:  order.CustomerUID,
		Customer:     order.Customer.Name,
		Total:        order.Total,
	})
	err := s.amqpCh.PublishWithContext(ctx, "", "orders", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		s.log.Error("publish order placed", "order_id", order.ID, "error", err)
	}
}

// Advance moves the order one step forward: new → in-progress → ready
// → completed. No skips, no reversals; advancing a completed order
// fails. Exactly one field changes.
func (s *OrderService) Advance(ctx context.Context, restaurantID, orderID string) (model.OrderStatus, error) {
	order, err := s.get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.RestaurantID != restaurantID {
		return "", ErrOrderAccessDenied
	}
	next := order.Status.Next()
	if next == "" {
		return "", ErrOrderCompleted
	}
	if err := s.st.Update(ctx, ordersCollection, orderID, map[string]any{"status": next}); err != nil {
		return "", fmt.Errorf("update order status: %w", err)
	}
	return next, nil
}

// Rate sets rating and review in one update. Only the owning customer,
// only on a completed order, only once.
func (s *OrderService) Rate(ctx context.Context, uid, orderID string, rating int, review string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	order, err := s.get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CustomerUID != uid {
		return ErrOrderAccessDenied
	}
	if order.Status != model.StatusCompleted {
		return ErrOrderNotCompleted
	}
	if order.Rating != 0 {
		return ErrAlreadyRated
	}
	fields := map[string]any{"rating": rating, "review": review}
	if err := s.st.Update(ctx, ordersCollection, orderID, fields); err != nil {
		return fmt.Errorf("rate order: %w", err)
	}
	return nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID, uid string) (*model.Order, error) {
	order, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerUID != uid {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByCustomer(ctx context.Context, uid string) ([]model.Order, error) {
	return s.list(ctx, store.Where("customerUid", "==", uid))
}

func (s *OrderService) ListByRestaurant(ctx context.Context, restaurantID string) ([]model.Order, error) {
	return s.list(ctx, store.Where("restaurantId", "==", restaurantID))
}

// WatchCustomerOrders opens a live binding over the customer's orders.
func (s *OrderService) WatchCustomerOrders(ctx context.Context, uid string) *live.Collection[model.Order] {
	return live.NewCollection[model.Order](ctx, s.st, s.log, ordersCollection, store.Where("customerUid", "==", uid))
}

// WatchRestaurantOrders opens a live binding over the restaurant's
// incoming orders.
func (s *OrderService) WatchRestaurantOrders(ctx context.Context, restaurantID string) *live.Collection[model.Order] {
	return live.NewCollection[model.Order](ctx, s.st, s.log, ordersCollection, store.Where("restaurantId", "==", restaurantID))
}

func (s *OrderService) get(ctx context.Context, orderID string) (*model.Order, error) {
	doc, err := s.st.Get(ctx, ordersCollection, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	order, err := store.Decode[model.Order](doc)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) list(ctx context.Context, filter store.Filter) ([]model.Order, error) {
	docs, err := s.st.Query(ctx, ordersCollection, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := store.DecodeAll[model.Order](docs)
	if err != nil {
		return nil, err
	}
	SortOrdersDesc(orders)
	return orders, nil
}

// SortOrdersDesc orders newest first. The store has no ordering
// support, so history views sort after the fetch.
func SortOrdersDesc(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.After(orders[j].Timestamp)
	})
}
