package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quicktab/self-order-api/internal/dto"
	"github.com/quicktab/self-order-api/internal/middleware"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/service"
)

type OrderHandler struct {
	orderSvc      *service.OrderService
	restaurantSvc *service.RestaurantService
}

func NewOrderHandler(orderSvc *service.OrderService, restaurantSvc *service.RestaurantService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, restaurantSvc: restaurantSvc}
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	restaurant, err := h.restaurantSvc.ByCode(ctx, req.RestaurantCode)
	if err != nil {
		if errors.Is(err, service.ErrRestaurantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "restaurant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	order, err := h.orderSvc.PlaceOrder(ctx, middleware.GetUserID(c), middleware.GetCustomer(c), restaurant)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		case errors.Is(err, service.ErrNotAuthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderSvc.ListByCustomer(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toOrderListResponse(orders))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderSvc.GetByID(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, service.ErrOrderAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// OrderStream pushes the customer's order list over SSE; each status
// transition made by staff shows up here without polling.
func (h *OrderHandler) OrderStream(c *gin.Context) {
	binding := h.orderSvc.WatchCustomerOrders(c.Request.Context(), middleware.GetUserID(c))
	streamOrders(c, binding)
}

func (h *OrderHandler) Rate(c *gin.Context) {
	var req dto.RateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.orderSvc.Rate(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Rating, req.Review)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, service.ErrOrderAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case errors.Is(err, service.ErrOrderNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": "order not completed yet"})
		case errors.Is(err, service.ErrAlreadyRated):
			c.JSON(http.StatusConflict, gin.H{"error": "order already rated"})
		case errors.Is(err, service.ErrInvalidRating):
			c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rating saved"})
}

// --- Staff side ---

func (h *OrderHandler) ListRestaurantOrders(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	orders, err := h.orderSvc.ListByRestaurant(c.Request.Context(), restaurantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toOrderListResponse(orders))
}

func (h *OrderHandler) RestaurantOrderStream(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	binding := h.orderSvc.WatchRestaurantOrders(c.Request.Context(), restaurantID)
	streamOrders(c, binding)
}

// Advance moves an order one status forward. The target state is
// computed server-side from the current one; clients cannot pick it.
func (h *OrderHandler) Advance(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	next, err := h.orderSvc.Advance(c.Request.Context(), restaurantID, c.Param("orderID"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, service.ErrOrderAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case errors.Is(err, service.ErrOrderCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": "order already completed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": next})
}

type orderBinding interface {
	Updates() <-chan []model.Order
	Close()
}

func streamOrders(c *gin.Context, binding orderBinding) {
	out := make(chan dto.OrderListResponse, 1)
	go func() {
		defer close(out)
		for orders := range binding.Updates() {
			service.SortOrdersDesc(orders)
			resp := toOrderListResponse(orders)
			select {
			case <-out:
			default:
			}
			out <- resp
		}
	}()
	streamUpdates(c, out, binding.Close)
}

func toOrderResponse(o *model.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, dto.OrderItemResponse{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}
	return dto.OrderResponse{
		ID:           o.ID,
		RestaurantID: o.RestaurantID,
		Customer:     o.Customer.Name,
		Items:        items,
		Total:        o.Total,
		Status:       o.Status,
		Timestamp:    o.Timestamp,
		Rating:       o.Rating,
		Review:       o.Review,
	}
}

func toOrderListResponse(orders []model.Order) dto.OrderListResponse {
	resp := dto.OrderListResponse{Orders: make([]dto.OrderResponse, 0, len(orders))}
	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i]))
	}
	resp.Total = len(resp.Orders)
	return resp
}
