package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quicktab/self-order-api/internal/live"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store"
)

var ErrNotAuthenticated = errors.New("user not authenticated")

// CartEntry is the derived, denormalized cart row handed to consumers:
// the persisted line re-expanded into a menu item plus quantity.
type CartEntry struct {
	ID       string
	MenuItem model.MenuItem
	Quantity int
}

type CartView struct {
	Items     []CartEntry
	Total     decimal.Decimal
	ItemCount int
}

// BuildCartView derives the cart model from its lines: total is
// Σ price×quantity, itemCount is Σ quantity.
func BuildCartView(lines []model.CartLine) CartView {
	view := CartView{Total: decimal.Zero}
	for _, line := range lines {
		view.Items = append(view.Items, CartEntry{
			ID: line.ID,
			MenuItem: model.MenuItem{
				ID:          line.MenuItemID,
				Name:        line.Name,
				Price:       line.Price,
				ImageURL:    line.ImageURL,
				Description: line.Description,
				Category:    line.Category,
			},
			Quantity: line.Quantity,
		})
		view.Total = view.Total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		view.ItemCount += line.Quantity
	}
	sort.Slice(view.Items, func(i, j int) bool { return view.Items[i].MenuItem.Name < view.Items[j].MenuItem.Name })
	return view
}

type CartService struct {
	st  store.Store
	log *slog.Logger
}

func NewCartService(st store.Store, log *slog.Logger) *CartService {
	return &CartService{st: st, log: log}
}

// AddToCart increments the existing line for the menu item or inserts a
// new one with quantity 1. The check and the write run in one store
// transaction, so concurrent adds of the same item by the same user
// cannot produce duplicate lines.
func (s *CartService) AddToCart(ctx context.Context, uid string, item model.MenuItem) error {
	if uid == "" {
		return ErrNotAuthenticated
	}
	path := cartPath(uid)
	err := s.st.RunTransaction(ctx, func(tx store.Tx) error {
		docs, err := tx.Query(path, store.Where("menuItemId", "==", item.ID))
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			line, err := store.Decode[model.CartLine](docs[0])
			if err != nil {
				return err
			}
			return tx.Update(path, line.ID, map[string]any{"quantity": line.Quantity + 1})
		}
		line := model.CartLine{
			ID:          uuid.NewString(),
			MenuItemID:  item.ID,
			Name:        item.Name,
			Price:       item.Price,
			Quantity:    1,
			ImageURL:    item.ImageURL,
			Description: item.Description,
			Category:    item.Category,
		}
		return tx.Set(path, line.ID, line)
	})
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, uid, lineID string) error {
	if uid == "" {
		return nil
	}
	if err := s.st.Delete(ctx, cartPath(uid), lineID); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// UpdateQuantity sets the line's quantity; zero or negative removes the
// line instead.
func (s *CartService) UpdateQuantity(ctx context.Context, uid, lineID string, quantity int) error {
	if uid == "" {
		return nil
	}
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, uid, lineID)
	}
	if err := s.st.Update(ctx, cartPath(uid), lineID, map[string]any{"quantity": quantity}); err != nil {
		return fmt.Errorf("update cart quantity: %w", err)
	}
	return nil
}

// ClearCart deletes every line in one batch. Empty cart and missing
// user are no-ops.
func (s *CartService) ClearCart(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}
	lines, err := s.lines(ctx, uid)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ID)
	}
	if err := s.st.BatchDelete(ctx, cartPath(uid), ids); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) Cart(ctx context.Context, uid string) (CartView, error) {
	if uid == "" {
		return CartView{Total: decimal.Zero}, nil
	}
	lines, err := s.lines(ctx, uid)
	if err != nil {
		return CartView{}, err
	}
	return BuildCartView(lines), nil
}

// WatchCart opens a live binding over the user's cart lines.
func (s *CartService) WatchCart(ctx context.Context, uid string) *live.Collection[model.CartLine] {
	return live.NewCollection[model.CartLine](ctx, s.st, s.log, cartPath(uid))
}

func (s *CartService) lines(ctx context.Context, uid string) ([]model.CartLine, error) {
	docs, err := s.st.Query(ctx, cartPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return store.DecodeAll[model.CartLine](docs)
}
