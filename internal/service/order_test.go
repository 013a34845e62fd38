package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store/memstore"
)

func newOrderFixture(t *testing.T) (*OrderService, *CartService, *model.Restaurant) {
	t.Helper()
	st := memstore.New()
	cartSvc := NewCartService(st, testLogger())
	orderSvc := NewOrderService(st, cartSvc, nil, testLogger())
	restaurant := &model.Restaurant{ID: "rest-1", Name: "Tasty Spoon", Code: "TASTYX1A", OwnerUID: "rest-1"}
	return orderSvc, cartSvc, restaurant
}

func TestOrderService_PlaceOrder_EmptyCart(t *testing.T) {
	orderSvc, _, restaurant := newOrderFixture(t)
	_, err := orderSvc.PlaceOrder(context.Background(), "user-1", model.Customer{Name: "John"}, restaurant)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrderService_PlaceOrder_Unauthenticated(t *testing.T) {
	orderSvc, _, restaurant := newOrderFixture(t)
	_, err := orderSvc.PlaceOrder(context.Background(), "", model.Customer{}, restaurant)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestOrderService_PlaceOrder_NoRestaurant(t *testing.T) {
	orderSvc, _, _ := newOrderFixture(t)
	_, err := orderSvc.PlaceOrder(context.Background(), "user-1", model.Customer{}, nil)
	assert.ErrorIs(t, err, ErrRestaurantNotFound)
}

func TestOrderService_PlaceOrder(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	// A twice at 10.00, B once at 5.00.
	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-b", "Fries", 5)))

	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John", Email: "john@example.com"}, restaurant)
	require.NoError(t, err)

	assert.Equal(t, model.StatusNew, order.Status)
	assert.Equal(t, "rest-1", order.RestaurantID)
	assert.Equal(t, "user-1", order.CustomerUID)
	assert.Equal(t, "John", order.Customer.Name)
	assert.False(t, order.Timestamp.IsZero())
	assert.True(t, order.Total.Equal(decimal.NewFromInt(25)), "total = %s", order.Total)
	require.Len(t, order.Items, 2)

	byID := map[string]model.OrderItem{}
	for _, item := range order.Items {
		byID[item.MenuItemID] = item
	}
	assert.Equal(t, 2, byID["item-a"].Quantity)
	assert.Equal(t, 1, byID["item-b"].Quantity)

	// Cart is cleared after placement.
	view, err := cartSvc.Cart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	// The placed order is readable back by its owner.
	got, err := orderSvc.GetByID(ctx, order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestOrderService_SnapshotSurvivesMenuEdits(t *testing.T) {
	st := memstore.New()
	cartSvc := NewCartService(st, testLogger())
	orderSvc := NewOrderService(st, cartSvc, nil, testLogger())
	restaurantSvc := NewRestaurantService(st, nil, testLogger(), "http://localhost:8080")
	ctx := context.Background()

	restaurant, err := restaurantSvc.Create(ctx, "rest-1", "Tasty Spoon")
	require.NoError(t, err)
	item, err := restaurantSvc.AddMenuItem(ctx, restaurant.ID, menuItem("", "Burger", 10))
	require.NoError(t, err)

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", *item))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	// Staff edit after placement must not rewrite the snapshot.
	newPrice := decimal.NewFromInt(99)
	_, err = restaurantSvc.UpdateMenuItem(ctx, restaurant.ID, item.ID, map[string]any{
		"name": "Mega Burger", "price": newPrice,
	})
	require.NoError(t, err)

	got, err := orderSvc.GetByID(ctx, order.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Burger", got.Items[0].Name)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Total.Equal(decimal.NewFromInt(10)))
}

func TestOrderService_Advance_FullChain(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	want := []model.OrderStatus{model.StatusInProgress, model.StatusReady, model.StatusCompleted}
	for _, expected := range want {
		next, err := orderSvc.Advance(ctx, restaurant.ID, order.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, next)

		got, err := orderSvc.GetByID(ctx, order.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, expected, got.Status)
	}

	// Terminal state: no further transition.
	_, err = orderSvc.Advance(ctx, restaurant.ID, order.ID)
	assert.ErrorIs(t, err, ErrOrderCompleted)
}

func TestOrderService_Advance_WrongRestaurant(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	_, err = orderSvc.Advance(ctx, "other-restaurant", order.ID)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_Advance_NotFound(t *testing.T) {
	orderSvc, _, restaurant := newOrderFixture(t)
	_, err := orderSvc.Advance(context.Background(), restaurant.ID, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func placeAndComplete(t *testing.T, orderSvc *OrderService, cartSvc *CartService, restaurant *model.Restaurant) *model.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = orderSvc.Advance(ctx, restaurant.ID, order.ID)
		require.NoError(t, err)
	}
	return order
}

func TestOrderService_Rate(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()
	order := placeAndComplete(t, orderSvc, cartSvc, restaurant)

	require.NoError(t, orderSvc.Rate(ctx, "user-1", order.ID, 5, "great food"))

	got, err := orderSvc.GetByID(ctx, order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Rating)
	assert.Equal(t, "great food", got.Review)
}

func TestOrderService_Rate_OnlyWhenCompleted(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	err = orderSvc.Rate(ctx, "user-1", order.ID, 4, "")
	assert.ErrorIs(t, err, ErrOrderNotCompleted)
}

func TestOrderService_Rate_OnlyOnce(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()
	order := placeAndComplete(t, orderSvc, cartSvc, restaurant)

	require.NoError(t, orderSvc.Rate(ctx, "user-1", order.ID, 4, "good"))
	err := orderSvc.Rate(ctx, "user-1", order.ID, 1, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyRated)

	// First rating stands.
	got, err := orderSvc.GetByID(ctx, order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, "good", got.Review)
}

func TestOrderService_Rate_Validation(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()
	order := placeAndComplete(t, orderSvc, cartSvc, restaurant)

	for _, rating := range []int{0, -1, 6} {
		err := orderSvc.Rate(ctx, "user-1", order.ID, rating, "")
		assert.ErrorIs(t, err, ErrInvalidRating, "rating %d", rating)
	}

	err := orderSvc.Rate(ctx, "someone-else", order.ID, 3, "")
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_Listings(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	first, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond) // distinct timestamps for the sort

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-b", "Fries", 5)))
	second, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	byCustomer, err := orderSvc.ListByCustomer(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	// Newest first.
	assert.Equal(t, second.ID, byCustomer[0].ID)
	assert.Equal(t, first.ID, byCustomer[1].ID)

	byRestaurant, err := orderSvc.ListByRestaurant(ctx, restaurant.ID)
	require.NoError(t, err)
	assert.Len(t, byRestaurant, 2)

	other, err := orderSvc.ListByRestaurant(ctx, "other-restaurant")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOrderService_GetByID_AccessControl(t *testing.T) {
	orderSvc, cartSvc, restaurant := newOrderFixture(t)
	ctx := context.Background()

	require.NoError(t, cartSvc.AddToCart(ctx, "user-1", menuItem("item-a", "Burger", 10)))
	order, err := orderSvc.PlaceOrder(ctx, "user-1", model.Customer{Name: "John"}, restaurant)
	require.NoError(t, err)

	_, err = orderSvc.GetByID(ctx, order.ID, "someone-else")
	assert.ErrorIs(t, err, ErrOrderAccessDenied)

	_, err = orderSvc.GetByID(ctx, "missing", "user-1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
