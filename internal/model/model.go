package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

type Restaurant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	OwnerUID string `json:"ownerUid"`
}

type MenuItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
}

// CartLine is one persisted row in users/{uid}/cart. Display fields are
// denormalized copies of the menu item taken at add time.
type CartLine struct {
	ID          string          `json:"id"`
	MenuItemID  string          `json:"menuItemId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
}

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusInProgress OrderStatus = "in-progress"
	StatusReady      OrderStatus = "ready"
	StatusCompleted  OrderStatus = "completed"
)

// Next returns the single allowed forward transition, or "" when the
// status is terminal.
func (s OrderStatus) Next() OrderStatus {
	switch s {
	case StatusNew:
		return StatusInProgress
	case StatusInProgress:
		return StatusReady
	case StatusReady:
		return StatusCompleted
	}
	return ""
}

// OrderItem is a snapshot of a menu item at placement time; later menu
// edits do not touch it.
type OrderItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Order struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurantId"`
	CustomerUID  string          `json:"customerUid"`
	Customer     Customer        `json:"customer"`
	Items        []OrderItem     `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	Rating       int             `json:"rating,omitempty"`
	Review       string          `json:"review,omitempty"`
}

// Notification is written by the worker when an order lands, for the
// staff dashboard feed.
type Notification struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	Customer  string          `json:"customer"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

type OrderPlacedMessage struct {
	OrderID      string          `json:"order_id"`
	RestaurantID string          `json:"restaurant_id"`
	CustomerUID  string          `json:"customer_uid"`
	Customer     string          `json:"customer"`
	Total        decimal.Decimal `json:"total"`
}
