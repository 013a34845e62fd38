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

type RestaurantHandler struct {
	svc *service.RestaurantService
}

func NewRestaurantHandler(svc *service.RestaurantService) *RestaurantHandler {
	return &RestaurantHandler{svc: svc}
}

// Lookup resolves a public restaurant code, the entry point of the
// customer flow (typed code or scanned QR).
func (h *RestaurantHandler) Lookup(c *gin.Context) {
	code := c.Query("code")
	restaurant, err := h.svc.ByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrRestaurantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "restaurant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toRestaurantResponse(restaurant))
}

func (h *RestaurantHandler) Create(c *gin.Context) {
	var req dto.CreateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	restaurant, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req.Name)
	if err != nil {
		if errors.Is(err, service.ErrRestaurantExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "restaurant already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, toRestaurantResponse(restaurant))
}

func (h *RestaurantHandler) Menu(c *gin.Context) {
	items, err := h.svc.Menu(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toMenuResponse(items))
}

// MenuStream pushes the menu over SSE whenever it changes.
func (h *RestaurantHandler) MenuStream(c *gin.Context) {
	binding := h.svc.WatchMenu(c.Request.Context(), c.Param("id"))
	streamUpdates(c, binding.Updates(), binding.Close)
}

func (h *RestaurantHandler) AddMenuItem(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	var req dto.CreateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.svc.AddMenuItem(c.Request.Context(), restaurantID, model.MenuItem{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPrice) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be non-negative"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, toMenuItemResponse(*item))
}

func (h *RestaurantHandler) UpdateMenuItem(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	var req dto.UpdateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		fields["price"] = *req.Price
	}
	if req.Category != nil {
		fields["category"] = *req.Category
	}
	if req.ImageURL != nil {
		fields["imageUrl"] = *req.ImageURL
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	item, err := h.svc.UpdateMenuItem(c.Request.Context(), restaurantID, c.Param("itemID"), fields)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMenuItemNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "menu item not found"})
		case errors.Is(err, service.ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be non-negative"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toMenuItemResponse(*item))
}

// Notifications serves the staff order feed the worker writes.
func (h *RestaurantHandler) Notifications(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	items, err := h.svc.Notifications(c.Request.Context(), restaurantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toNotificationListResponse(items))
}

func (h *RestaurantHandler) NotificationsStream(c *gin.Context) {
	restaurantID := c.Param("id")
	if restaurantID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your restaurant"})
		return
	}
	binding := h.svc.WatchNotifications(c.Request.Context(), restaurantID)
	out := make(chan dto.NotificationListResponse, 1)
	go func() {
		defer close(out)
		for items := range binding.Updates() {
			service.SortNotificationsDesc(items)
			resp := toNotificationListResponse(items)
			select {
			case <-out:
			default:
			}
			out <- resp
		}
	}()
	streamUpdates(c, out, binding.Close)
}

// CodeQR serves the printable QR customers scan to reach the menu.
func (h *RestaurantHandler) CodeQR(c *gin.Context) {
	restaurant, err := h.svc.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRestaurantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "restaurant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	png, err := h.svc.CodeQR(restaurant.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func toRestaurantResponse(r *model.Restaurant) dto.RestaurantResponse {
	return dto.RestaurantResponse{ID: r.ID, Name: r.Name, Code: r.Code}
}

func toMenuItemResponse(item model.MenuItem) dto.MenuItemResponse {
	return dto.MenuItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		ImageURL:    item.ImageURL,
	}
}

func toNotificationListResponse(items []model.Notification) dto.NotificationListResponse {
	resp := dto.NotificationListResponse{Notifications: make([]dto.NotificationResponse, 0, len(items))}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, dto.NotificationResponse{
			ID:        n.ID,
			OrderID:   n.OrderID,
			Customer:  n.Customer,
			Total:     n.Total,
			CreatedAt: n.CreatedAt,
		})
	}
	return resp
}

func toMenuResponse(items []model.MenuItem) dto.MenuResponse {
	resp := dto.MenuResponse{Items: make([]dto.MenuItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toMenuItemResponse(item))
	}
	return resp
}
