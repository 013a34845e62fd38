package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quicktab/self-order-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

type StaffRegisterRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	RestaurantName string `json:"restaurant_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// --- Restaurant / menu ---

type CreateRestaurantRequest struct {
	Name string `json:"name" binding:"required"`
}

type RestaurantResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type CreateMenuItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

type UpdateMenuItemRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"image_url"`
}

type MenuItemResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

type MenuResponse struct {
	Items []MenuItemResponse `json:"items"`
}

// --- Cart ---

type AddCartItemRequest struct {
	RestaurantCode string `json:"restaurant_code" binding:"required"`
	MenuItemID     string `json:"menu_item_id" binding:"required"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartItemResponse struct {
	ID       string           `json:"id"`
	MenuItem MenuItemResponse `json:"menu_item"`
	Quantity int              `json:"quantity"`
}

type CartResponse struct {
	Items     []CartItemResponse `json:"items"`
	Total     decimal.Decimal    `json:"total"`
	ItemCount int                `json:"item_count"`
}

// --- Notifications ---

type NotificationResponse struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Customer  string          `json:"customer"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}

// --- Orders ---

type PlaceOrderRequest struct {
	RestaurantCode string `json:"restaurant_code" binding:"required"`
}

type RateOrderRequest struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Review string `json:"review"`
}

type OrderItemResponse struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID           string              `json:"id"`
	RestaurantID string              `json:"restaurant_id"`
	Customer     string              `json:"customer"`
	Items        []OrderItemResponse `json:"items"`
	Total        decimal.Decimal     `json:"total"`
	Status       model.OrderStatus   `json:"status"`
	Timestamp    time.Time           `json:"timestamp"`
	Rating       int                 `json:"rating,omitempty"`
	Review       string              `json:"review,omitempty"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}
