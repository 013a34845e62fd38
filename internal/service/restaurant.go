package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/quicktab/self-order-api/internal/live"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrRestaurantExists   = errors.New("restaurant already exists for this account")
	ErrMenuItemNotFound   = errors.New("menu item not found")
	ErrInvalidPrice       = errors.New("price must be a non-negative number")
)

const (
	defaultCategory    = "Outros"
	codeCacheTTL       = 60 * time.Second
	codeGenMaxAttempts = 5
)

type RestaurantService struct {
	st          store.Store
	redisClient *redis.Client
	log         *slog.Logger
	baseURL     string
}

func NewRestaurantService(st store.Store, redisClient *redis.Client, log *slog.Logger, baseURL string) *RestaurantService {
	return &RestaurantService{st: st, redisClient: redisClient, log: log, baseURL: baseURL}
}

// Create registers the restaurant under the owner's uid, so one staff
// account owns exactly one restaurant. Code generation retries when the
// short code is already taken.
func (s *RestaurantService) Create(ctx context.Context, ownerUID, name string) (*model.Restaurant, error) {
	if _, err := s.st.Get(ctx, restaurantsCollection, ownerUID); err == nil {
		return nil, ErrRestaurantExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check restaurant: %w", err)
	}

	var code string
	for attempt := 0; ; attempt++ {
		code = generateCode(name)
		taken, err := s.codeTaken(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check code: %w", err)
		}
		if !taken {
			break
		}
		if attempt+1 >= codeGenMaxAttempts {
			return nil, fmt.Errorf("generate restaurant code: no free code after %d attempts", codeGenMaxAttempts)
		}
	}

	r := &model.Restaurant{ID: ownerUID, Name: name, Code: code, OwnerUID: ownerUID}
	if err := s.st.Set(ctx, restaurantsCollection, ownerUID, r); err != nil {
		return nil, fmt.Errorf("create restaurant: %w", err)
	}
	return r, nil
}

// generateCode derives a short public token: the lowercased
// alphanumeric part of the name (max 6 chars) plus 3 random base-36
// chars, uppercased.
func generateCode(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
		if sb.Len() >= 6 {
			break
		}
	}
	const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"
	for i := 0; i < 3; i++ {
		sb.WriteByte(base36[rand.Intn(len(base36))])
	}
	return strings.ToUpper(sb.String())
}

func (s *RestaurantService) codeTaken(ctx context.Context, code string) (bool, error) {
	docs, err := s.st.Query(ctx, restaurantsCollection, store.Where("code", "==", code))
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// ByCode resolves a public code to its restaurant. Resolution is
// read-through cached in Redis; restaurants are immutable after
// creation so the cache never goes stale.
func (s *RestaurantService) ByCode(ctx context.Context, code string) (*model.Restaurant, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrRestaurantNotFound
	}

	cacheKey := "restaurant_code:" + code
	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var r model.Restaurant
			if json.Unmarshal([]byte(cached), &r) == nil {
				return &r, nil
			}
		}
	}

	docs, err := s.st.Query(ctx, restaurantsCollection, store.Where("code", "==", code))
	if err != nil {
		return nil, fmt.Errorf("lookup restaurant: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrRestaurantNotFound
	}
	r, err := store.Decode[model.Restaurant](docs[0])
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(r); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, codeCacheTTL)
		}
	}
	return &r, nil
}

func (s *RestaurantService) ByID(ctx context.Context, id string) (*model.Restaurant, error) {
	doc, err := s.st.Get(ctx, restaurantsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	r, err := store.Decode[model.Restaurant](doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RestaurantService) AddMenuItem(ctx context.Context, restaurantID string, item model.MenuItem) (*model.MenuItem, error) {
	if item.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if item.Category == "" {
		item.Category = defaultCategory
	}
	item.ID = uuid.NewString()
	if err := s.st.Set(ctx, menuPath(restaurantID), item.ID, item); err != nil {
		return nil, fmt.Errorf("add menu item: %w", err)
	}
	return &item, nil
}

// UpdateMenuItem edits a menu item in place. Orders already placed keep
// their snapshots, so this never rewrites history.
func (s *RestaurantService) UpdateMenuItem(ctx context.Context, restaurantID, itemID string, fields map[string]any) (*model.MenuItem, error) {
	if price, ok := fields["price"].(decimal.Decimal); ok && price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	err := s.st.Update(ctx, menuPath(restaurantID), itemID, fields)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update menu item: %w", err)
	}
	doc, err := s.st.Get(ctx, menuPath(restaurantID), itemID)
	if err != nil {
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	item, err := store.Decode[model.MenuItem](doc)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Menu lists the restaurant's menu, ordered by category then name.
func (s *RestaurantService) Menu(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	docs, err := s.st.Query(ctx, menuPath(restaurantID))
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	items, err := store.DecodeAll[model.MenuItem](docs)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *RestaurantService) MenuItem(ctx context.Context, restaurantID, itemID string) (*model.MenuItem, error) {
	doc, err := s.st.Get(ctx, menuPath(restaurantID), itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	item, err := store.Decode[model.MenuItem](doc)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// WatchMenu opens a live binding over the restaurant's menu.
func (s *RestaurantService) WatchMenu(ctx context.Context, restaurantID string) *live.Collection[model.MenuItem] {
	return live.NewCollection[model.MenuItem](ctx, s.st, s.log, menuPath(restaurantID))
}

// Notifications lists the staff feed entries the worker writes when
// orders land, newest first.
func (s *RestaurantService) Notifications(ctx context.Context, restaurantID string) ([]model.Notification, error) {
	docs, err := s.st.Query(ctx, notificationsPath(restaurantID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items, err := store.DecodeAll[model.Notification](docs)
	if err != nil {
		return nil, err
	}
	SortNotificationsDesc(items)
	return items, nil
}

// WatchNotifications opens a live binding over the restaurant's feed.
func (s *RestaurantService) WatchNotifications(ctx context.Context, restaurantID string) *live.Collection[model.Notification] {
	return live.NewCollection[model.Notification](ctx, s.st, s.log, notificationsPath(restaurantID))
}

// SortNotificationsDesc orders newest first, like the order listings.
func SortNotificationsDesc(items []model.Notification) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// CodeQR renders the public menu URL for a code as a PNG QR.
func (s *RestaurantService) CodeQR(code string) ([]byte, error) {
	url := fmt.Sprintf("%s/m/%s", s.baseURL, strings.ToUpper(code))
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
