package service

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store/memstore"
)

func newRestaurantService() *RestaurantService {
	return NewRestaurantService(memstore.New(), nil, testLogger(), "http://localhost:8080")
}

func TestRestaurantService_Create(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	restaurant, err := svc.Create(ctx, "owner-1", "The Tasty Spoon")
	require.NoError(t, err)

	assert.Equal(t, "owner-1", restaurant.ID)
	assert.Equal(t, "owner-1", restaurant.OwnerUID)
	assert.Equal(t, "The Tasty Spoon", restaurant.Name)
	// Name part capped at 6 chars plus 3 random base-36 chars, all
	// uppercase.
	assert.Regexp(t, regexp.MustCompile(`^THETAS[0-9A-Z]{3}$`), restaurant.Code)
}

func TestRestaurantService_Create_Duplicate(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", "The Tasty Spoon")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "owner-1", "Another Name")
	assert.ErrorIs(t, err, ErrRestaurantExists)
}

func TestRestaurantService_Create_ShortName(t *testing.T) {
	svc := newRestaurantService()
	restaurant, err := svc.Create(context.Background(), "owner-1", "Zé & Cia!")
	require.NoError(t, err)
	// Only the alphanumeric runes survive into the prefix.
	assert.Regexp(t, regexp.MustCompile(`^ZCIA[0-9A-Z]{3}$`), restaurant.Code)
}

func TestRestaurantService_ByCode(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", "The Tasty Spoon")
	require.NoError(t, err)

	found, err := svc.ByCode(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// Lookup is case-insensitive: codes normalize to uppercase.
	found, err = svc.ByCode(ctx, "  "+strings.ToLower(created.Code)+" ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.ByCode(ctx, "NOPE99XYZ")
	assert.ErrorIs(t, err, ErrRestaurantNotFound)

	_, err = svc.ByCode(ctx, "")
	assert.ErrorIs(t, err, ErrRestaurantNotFound)
}

func TestRestaurantService_AddMenuItem_Defaults(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	item, err := svc.AddMenuItem(ctx, "rest-1", menuItemNoCategory("Burger", 10))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Outros", item.Category)

	items, err := svc.Menu(ctx, "rest-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Outros", items[0].Category)
}

func TestRestaurantService_AddMenuItem_NegativePrice(t *testing.T) {
	svc := newRestaurantService()
	item := menuItemNoCategory("Burger", 10)
	item.Price = decimal.NewFromInt(-1)
	_, err := svc.AddMenuItem(context.Background(), "rest-1", item)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestRestaurantService_Menu_Sorted(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	add := func(name, category string) {
		item := menuItemNoCategory(name, 10)
		item.Category = category
		_, err := svc.AddMenuItem(ctx, "rest-1", item)
		require.NoError(t, err)
	}
	add("Coxinha", "Salgados")
	add("Suco", "Bebidas")
	add("Café", "Bebidas")

	items, err := svc.Menu(ctx, "rest-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Café", items[0].Name)
	assert.Equal(t, "Suco", items[1].Name)
	assert.Equal(t, "Coxinha", items[2].Name)
}

func TestRestaurantService_UpdateMenuItem(t *testing.T) {
	svc := newRestaurantService()
	ctx := context.Background()

	item, err := svc.AddMenuItem(ctx, "rest-1", menuItemNoCategory("Burger", 10))
	require.NoError(t, err)

	updated, err := svc.UpdateMenuItem(ctx, "rest-1", item.ID, map[string]any{
		"name":  "Cheeseburger",
		"price": decimal.NewFromFloat(12.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "Cheeseburger", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.NewFromFloat(12.5)))
	// Untouched fields survive the patch.
	assert.Equal(t, "Outros", updated.Category)

	_, err = svc.UpdateMenuItem(ctx, "rest-1", "missing", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrMenuItemNotFound)

	_, err = svc.UpdateMenuItem(ctx, "rest-1", item.ID, map[string]any{"price": decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestRestaurantService_Notifications(t *testing.T) {
	st := memstore.New()
	svc := NewRestaurantService(st, nil, testLogger(), "http://localhost:8080")
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"n1", "n2", "n3"} {
		n := model.Notification{
			ID:        id,
			OrderID:   "order-" + id,
			Customer:  "Ana",
			Total:     decimal.NewFromInt(25),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.Set(ctx, "restaurants/rest-1/notifications", id, n))
	}

	items, err := svc.Notifications(ctx, "rest-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	// Newest first.
	assert.Equal(t, "n3", items[0].ID)
	assert.Equal(t, "n1", items[2].ID)
	assert.Equal(t, "order-n3", items[0].OrderID)

	// Feeds are per restaurant.
	items, err = svc.Notifications(ctx, "rest-2")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRestaurantService_CodeQR(t *testing.T) {
	svc := newRestaurantService()
	png, err := svc.CodeQR("TASTYX1A")
	require.NoError(t, err)
	// PNG magic header.
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func menuItemNoCategory(name string, price float64) model.MenuItem {
	return model.MenuItem{Name: name, Price: decimal.NewFromFloat(price)}
}
