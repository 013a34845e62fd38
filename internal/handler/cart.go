package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quicktab/self-order-api/internal/dto"
	"github.com/quicktab/self-order-api/internal/middleware"
	"github.com/quicktab/self-order-api/internal/service"
)

type CartHandler struct {
	cartSvc       *service.CartService
	restaurantSvc *service.RestaurantService
}

func NewCartHandler(cartSvc *service.CartService, restaurantSvc *service.RestaurantService) *CartHandler {
	return &CartHandler{cartSvc: cartSvc, restaurantSvc: restaurantSvc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	view, err := h.cartSvc.Cart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// CartStream pushes the derived cart view over SSE on every change.
func (h *CartHandler) CartStream(c *gin.Context) {
	binding := h.cartSvc.WatchCart(c.Request.Context(), middleware.GetUserID(c))
	views := make(chan dto.CartResponse, 1)
	go func() {
		defer close(views)
		for lines := range binding.Updates() {
			view := toCartResponse(service.BuildCartView(lines))
			select {
			case <-views:
			default:
			}
			views <- view
		}
	}()
	streamUpdates(c, views, binding.Close)
}

// AddItem resolves the menu item from the restaurant identified by its
// code, then runs the transactional add: an existing line for the item
// gains quantity, otherwise a new snapshot line is inserted.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
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
	item, err := h.restaurantSvc.MenuItem(ctx, restaurant.ID, req.MenuItemID)
	if err != nil {
		if errors.Is(err, service.ErrMenuItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if err := h.cartSvc.AddToCart(ctx, middleware.GetUserID(c), *item); err != nil {
		if errors.Is(err, service.ErrNotAuthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "item added"})
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.cartSvc.UpdateQuantity(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item updated"})
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	err := h.cartSvc.RemoveFromCart(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.cartSvc.ClearCart(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func toCartResponse(view service.CartView) dto.CartResponse {
	resp := dto.CartResponse{
		Items:     make([]dto.CartItemResponse, 0, len(view.Items)),
		Total:     view.Total,
		ItemCount: view.ItemCount,
	}
	for _, entry := range view.Items {
		resp.Items = append(resp.Items, dto.CartItemResponse{
			ID:       entry.ID,
			MenuItem: toMenuItemResponse(entry.MenuItem),
			Quantity: entry.Quantity,
		})
	}
	return resp
}
